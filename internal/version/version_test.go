package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func stamp(t *testing.T, version, commit, date string) {
	t.Helper()
	prev := [3]string{Version, Commit, Date}
	t.Cleanup(func() { Version, Commit, Date = prev[0], prev[1], prev[2] })
	Version, Commit, Date = version, commit, date
}

func TestString(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    []string
	}{
		{
			name:    "release build",
			version: "0.4.0",
			want:    []string{"parla 0.4.0 (", "commit=1f2e3d", "date=2026-10-01", "go=go"},
		},
		{
			name:    "dev build still names the binary",
			version: "dev",
			want:    []string{"parla ", "commit=1f2e3d"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stamp(t, tc.version, "1f2e3d", "2026-10-01")
			got := String()
			for _, part := range tc.want {
				require.Contains(t, got, part)
			}
		})
	}
}

func TestResolvedVersionPrefersStamp(t *testing.T) {
	stamp(t, "1.0.0-rc1", Commit, Date)
	require.Equal(t, "1.0.0-rc1", resolvedVersion())

	stamp(t, "dev", Commit, Date)
	require.NotEmpty(t, resolvedVersion())
}
