package geobases

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/andreiashu/geobases/internal/grid"
)

// BaseConfig contains configuration options for a Base.
type BaseConfig struct {
	Logger      *zerolog.Logger // Defaults to warnings of the global logger
	CellRadius  float64         // Grid cell edge in km (default: 50)
	LatField    string          // Latitude field (default: "lat")
	LngField    string          // Longitude field (default: "lng")
	CacheSize   int             // Fuzzy result cache capacity, 0 for unbounded
	CacheTTL    time.Duration   // Fuzzy result lifetime, 0 for no expiry
	SourcesFile string          // Sources catalogue used by Open (default: embedded)
}

// Option is a functional option for configuring a Base.
type Option func(*BaseConfig)

// WithLogger sets the logger used while loading and querying.
func WithLogger(l zerolog.Logger) Option {
	return func(c *BaseConfig) {
		c.Logger = &l
	}
}

// WithCellRadius sets the grid cell edge in kilometers.
func WithCellRadius(km float64) Option {
	return func(c *BaseConfig) {
		c.CellRadius = km
	}
}

// WithGeoFields sets the fields holding latitude and longitude.
func WithGeoFields(lat, lng string) Option {
	return func(c *BaseConfig) {
		c.LatField = lat
		c.LngField = lng
	}
}

// WithCacheSize bounds the number of cached fuzzy results.
func WithCacheSize(n int) Option {
	return func(c *BaseConfig) {
		c.CacheSize = n
	}
}

// WithCacheTTL expires cached fuzzy results after d.
func WithCacheTTL(d time.Duration) Option {
	return func(c *BaseConfig) {
		c.CacheTTL = d
	}
}

// WithSourcesFile makes Open read datasets from the catalogue at path
// instead of the embedded one.
func WithSourcesFile(path string) Option {
	return func(c *BaseConfig) {
		c.SourcesFile = path
	}
}

// defaultConfig returns the default configuration.
func defaultConfig() *BaseConfig {
	return &BaseConfig{
		CellRadius: grid.DefaultCellRadius,
		LatField:   "lat",
		LngField:   "lng",
	}
}

func newConfig(opts []Option) *BaseConfig {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// logger returns the configured logger tagged with the base name. Without
// WithLogger only warnings and errors reach the global logger.
func (c *BaseConfig) logger(name string) zerolog.Logger {
	l := log.Logger.Level(zerolog.WarnLevel)
	if c.Logger != nil {
		l = *c.Logger
	}
	if name == "" {
		return l
	}
	return l.With().Str("base", name).Logger()
}
