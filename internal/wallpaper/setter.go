package wallpaper

import "errors"

// ErrUnsupportedPlatform is returned by the setter on platforms without a wallpaper API
var ErrUnsupportedPlatform = errors.New("setting the wallpaper is not supported on this platform")

// Setter applies an image file as the desktop wallpaper
type Setter interface {
	Set(absPath string) error
}

// SetterFunc adapts a function to Setter
type SetterFunc func(absPath string) error

// Set calls f(absPath)
func (f SetterFunc) Set(absPath string) error {
	return f(absPath)
}
