package config

// Config is the full bot configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "30m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Tracker  TrackerConfig  `json:"tracker"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Driver values:
//   - "file" (default): pretty-printed JSON documents in Path (a directory)
//   - "sqlite": a single SQLite database file at Path (build tag "sqlite")
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// TrackerConfig controls price polling and catalog synchronization.
type TrackerConfig struct {
	// Interval between poll rounds. Default "30m".
	Interval string `json:"interval"`

	// CatalogResync is how often the full catalog is refreshed. Default "24h".
	CatalogResync string `json:"catalog_resync,omitempty"`

	// Region is the store country code used for new subscriptions (e.g. "us").
	Region string `json:"region"`

	// Locale passed to the store API for localized names. Default "en".
	Locale string `json:"locale,omitempty"`

	// APIKey is the Steam Web API key used for the app list endpoint.
	APIKey string `json:"api_key"`

	// PageSize is the max_results per app list page. Default 50000.
	PageSize int `json:"page_size,omitempty"`
}

func (c *Config) ApplyDefaults() {
	if c.Tracker.Interval == "" {
		c.Tracker.Interval = "30m"
	}
	if c.Tracker.CatalogResync == "" {
		c.Tracker.CatalogResync = "24h"
	}
	if c.Tracker.Region == "" {
		c.Tracker.Region = "us"
	}
	if c.Tracker.Locale == "" {
		c.Tracker.Locale = "en"
	}
	if c.Tracker.PageSize <= 0 {
		c.Tracker.PageSize = 50000
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data"
	}
}
