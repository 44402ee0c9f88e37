package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

var (
	keyBondingOnce sync.Once
	keyBonding     keybd_event.KeyBonding
	keyBondingErr  error
)

// sendCtrlV presses Ctrl+V through a virtual uinput keyboard.
func sendCtrlV() error {
	keyBondingOnce.Do(func() {
		keyBonding, keyBondingErr = keybd_event.NewKeyBonding()
		if keyBondingErr == nil {
			// The kernel needs a moment to register a fresh uinput device before it
			// delivers events to the focused window.
			time.Sleep(2 * time.Second)
		}
	})
	if keyBondingErr != nil {
		return fmt.Errorf("create virtual keyboard: %w", keyBondingErr)
	}

	keyBonding.Clear()
	keyBonding.HasCTRL(true)
	keyBonding.SetKeys(keybd_event.VK_V)
	if err := keyBonding.Launching(); err != nil {
		return fmt.Errorf("send ctrl+v: %w", err)
	}
	return nil
}
