// Package hypr wraps the hyprctl calls parla needs for paste targeting and notifications.
package hypr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ActiveWindow contains the fields needed for paste dispatch targeting.
type ActiveWindow struct {
	Address string `json:"address"`
	Class   string `json:"class"`
}

// Available reports whether a Hyprland session is reachable through hyprctl.
func Available() error {
	if strings.TrimSpace(os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")) == "" {
		return errors.New("HYPRLAND_INSTANCE_SIGNATURE is not set")
	}
	if _, err := exec.LookPath("hyprctl"); err != nil {
		return fmt.Errorf("hyprctl not found: %w", err)
	}
	return nil
}

// QueryActiveWindow returns the focused window; an empty address is an error.
func QueryActiveWindow(ctx context.Context) (ActiveWindow, error) {
	output, err := run(ctx, "-j", "activewindow")
	if err != nil {
		return ActiveWindow{}, err
	}

	var window ActiveWindow
	if err := json.Unmarshal(output, &window); err != nil {
		return ActiveWindow{}, fmt.Errorf("decode hyprctl activewindow json: %w", err)
	}
	window.Address = strings.TrimSpace(window.Address)
	window.Class = strings.TrimSpace(window.Class)
	if window.Address == "" {
		return ActiveWindow{}, errors.New("hyprctl activewindow returned empty address")
	}
	return window, nil
}

// SendShortcut sends a literal sendshortcut payload such as "CTRL,V,address:0xabc".
func SendShortcut(ctx context.Context, payload string) error {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return errors.New("sendshortcut requires a non-empty payload")
	}
	_, err := run(ctx, "--quiet", "dispatch", "sendshortcut", payload)
	return err
}

// Notify shows a Hyprland notification.
func Notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	if strings.TrimSpace(color) == "" {
		color = "rgb(89b4fa)"
	}
	_, err := run(ctx, "--quiet", "dispatch", "notify", strconv.Itoa(icon), strconv.Itoa(timeoutMS), color, text)
	return err
}

// DismissNotify dismisses active Hyprland notifications.
func DismissNotify(ctx context.Context) error {
	_, err := run(ctx, "--quiet", "dispatch", "dismissnotify")
	return err
}

func run(ctx context.Context, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "hyprctl", args...).CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("hyprctl %v failed: %w", args, err)
		}
		return nil, fmt.Errorf("hyprctl %v failed: %w (%s)", args, err, trimmed)
	}
	return out, nil
}
