package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"himawari-desktop/internal/config"

	"gopkg.in/yaml.v3"
)

const redacted = "********"

// GetSettings returns a copy of the effective settings (file merged with environment)
func (a *App) GetSettings() config.Config {
	return *a.cfg
}

// GetSettingsPath returns the settings file this app was started with
func (a *App) GetSettingsPath() string {
	return a.settingsPath
}

// RenderSettings returns the effective settings as YAML with credentials redacted
func (a *App) RenderSettings() (string, error) {
	settings := a.GetSettings()
	if settings.Publish.SecretKey != "" {
		settings.Publish.SecretKey = redacted
	}
	if settings.Telemetry.PostHogKey != "" {
		settings.Telemetry.PostHogKey = redacted
	}

	data, err := yaml.Marshal(&settings)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settings: %w", err)
	}
	return string(data), nil
}

// InitSettings writes the default settings to path, refusing to overwrite unless force is set
func InitSettings(path string, force bool) (string, error) {
	if path == "" {
		path = config.GetSettingsPath()
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("settings file already exists: %s (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return path, fmt.Errorf("failed to check settings file: %w", err)
		}
	}
	return path, config.Save(path, config.Default())
}
