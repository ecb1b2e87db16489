//go:build windows

package wallpaper

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	spiSetDeskWallpaper = 0x0014
	spifUpdateINIFile   = 0x01
	spifSendChange      = 0x02
)

var procSystemParametersInfoW = windows.NewLazySystemDLL("user32.dll").NewProc("SystemParametersInfoW")

type windowsSetter struct{}

// NewSetter returns the Windows wallpaper setter
func NewSetter() Setter {
	return windowsSetter{}
}

func (windowsSetter) Set(absPath string) error {
	p, err := windows.UTF16PtrFromString(absPath)
	if err != nil {
		return fmt.Errorf("failed to encode wallpaper path: %w", err)
	}

	ret, _, callErr := procSystemParametersInfoW.Call(
		spiSetDeskWallpaper,
		0,
		uintptr(unsafe.Pointer(p)),
		spifUpdateINIFile|spifSendChange,
	)
	if ret == 0 {
		return fmt.Errorf("SystemParametersInfoW failed: %w", callErr)
	}
	return nil
}
