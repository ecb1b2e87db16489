//go:build !windows && !darwin && !linux

package wallpaper

// NewSetter returns a setter that always fails on this platform
func NewSetter() Setter {
	return SetterFunc(func(string) error { return ErrUnsupportedPlatform })
}
