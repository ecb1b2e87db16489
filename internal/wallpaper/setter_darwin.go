//go:build darwin

package wallpaper

import (
	"fmt"
	"os/exec"
	"strings"
)

type darwinSetter struct{}

// NewSetter returns the macOS wallpaper setter (System Events via osascript)
func NewSetter() Setter {
	return darwinSetter{}
}

func (darwinSetter) Set(absPath string) error {
	escaped := strings.ReplaceAll(absPath, `"`, `\"`)
	script := fmt.Sprintf(`tell application "System Events" to tell every desktop to set picture to "%s"`, escaped)

	if out, err := exec.Command("osascript", "-e", script).CombinedOutput(); err != nil {
		return fmt.Errorf("osascript failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
