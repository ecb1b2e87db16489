package config

import (
	"os"
	"path/filepath"
	goruntime "runtime"
)

const appDirName = "himawari-desktop"

// GetDataDir returns the OS-specific directory holding the archive, scratch tiles and logs
func GetDataDir() string {
	homeDir, _ := os.UserHomeDir()

	switch goruntime.GOOS {
	case "darwin": // macOS
		return filepath.Join(homeDir, "Library", "Application Support", appDirName)
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		return filepath.Join(appData, appDirName)
	default: // Linux and others
		dataHome := os.Getenv("XDG_DATA_HOME")
		if dataHome == "" {
			dataHome = filepath.Join(homeDir, ".local", "share")
		}
		return filepath.Join(dataHome, appDirName)
	}
}

// GetSettingsPath returns the default settings file path
func GetSettingsPath() string {
	return filepath.Join(GetDataDir(), "settings.yaml")
}
