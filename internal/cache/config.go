package cache

// Config describes what the janitor looks after
type Config struct {
	ScratchDir    string // holds tile_<col>_<row>.png between fetch and stitch
	ArchiveRoot   string // holds <YYYYMMDD>/ day directories
	GridSize      int
	RetentionDays int
}

// DefaultConfig returns the retention and grid of the reference deployment
func DefaultConfig(scratchDir, archiveRoot string) *Config {
	return &Config{
		ScratchDir:    scratchDir,
		ArchiveRoot:   archiveRoot,
		GridSize:      4,
		RetentionDays: 1,
	}
}
