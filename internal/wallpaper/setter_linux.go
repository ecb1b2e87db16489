//go:build linux

package wallpaper

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

type gnomeSetter struct{}

// NewSetter returns the GNOME wallpaper setter (gsettings)
func NewSetter() Setter {
	return gnomeSetter{}
}

func (gnomeSetter) Set(absPath string) error {
	if _, err := exec.LookPath("gsettings"); err != nil {
		return fmt.Errorf("%w: gsettings not found", ErrUnsupportedPlatform)
	}

	uri := (&url.URL{Scheme: "file", Path: absPath}).String()
	for _, key := range []string{"picture-uri", "picture-uri-dark"} {
		out, err := exec.Command("gsettings", "set", "org.gnome.desktop.background", key, uri).CombinedOutput()
		if err != nil && key == "picture-uri" {
			return fmt.Errorf("gsettings failed: %w: %s", err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}
