package common

// Provider name constants for consistent naming across the application
const (
	// ProviderHimawari is the metrics and analytics identifier for the Himawari full-disk imagery
	ProviderHimawari = "himawari"

	// DisplayNameHimawari is the human-readable name used in logs and the viewer page
	DisplayNameHimawari = "Himawari 8"
)
