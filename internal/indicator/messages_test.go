package indicator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLocale(t *testing.T) {
	require.Equal(t, localeEnglish, resolveLocale("en_US.UTF-8"))
	require.Equal(t, localeEnglish, resolveLocale("fr_FR.UTF-8"))
	require.Equal(t, localeSpanish, resolveLocale("es_MX.UTF-8"))
}

func TestIndicatorMessagesEnglish(t *testing.T) {
	msg := indicatorMessages(localeEnglish)
	require.Equal(t, "Listening…", msg.listening)
	require.Equal(t, "Dictation error", msg.errorText)
}

func TestMessagesOverrideKeepsDefaultsForBlankText(t *testing.T) {
	msg := indicatorMessages(localeEnglish).override("Dictating", "  ")
	require.Equal(t, "Dictating", msg.listening)
	require.Equal(t, "Dictation error", msg.errorText)
}
