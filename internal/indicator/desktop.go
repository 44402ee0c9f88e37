package indicator

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/beeep"
)

// desktopSurface posts freedesktop notifications. They expire on their own;
// dismiss is a no-op.
type desktopSurface struct {
	appName string
	post    func(title, message string) error
}

func newDesktopSurface(appName string) desktopSurface {
	appName = strings.TrimSpace(appName)
	if appName == "" {
		appName = "parla"
	}
	return desktopSurface{
		appName: appName,
		post: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

func (d desktopSurface) show(ctx context.Context, kind notice, _ int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	title := d.appName
	if kind == noticeError {
		title = d.appName + " error"
	}
	if err := d.post(title, text); err != nil {
		return fmt.Errorf("desktop notify failed: %w", err)
	}
	return nil
}

func (desktopSurface) dismiss(context.Context) error { return nil }
