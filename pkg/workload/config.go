package workload

import (
	"time"

	"github.com/marmos91/fhasched/internal/bytesize"
)

// Default workload shape: a handful of large files read sequentially by
// several clients, with some writes and metadata traffic mixed in.
const (
	DefaultFiles         = 16
	DefaultCalls         = 10000
	DefaultClients       = 8
	DefaultReadRatio     = 0.8
	DefaultMetadataRatio = 0.1
	DefaultIOSize        = 32 * bytesize.KiB
	DefaultFileSize      = 64 * bytesize.MiB
	DefaultServiceTime   = 200 * time.Microsecond
	DefaultSeed          = 1
)

// Config describes a synthetic NFSv3 request stream.
//
// Zero values select the defaults, so a ratio of exactly 0 cannot be
// expressed; use a very small value instead.
type Config struct {
	// Files is the number of distinct file handles.
	Files int `mapstructure:"files" validate:"gte=1" yaml:"files" json:"files"`

	// Calls is the total number of calls issued across all clients.
	Calls int `mapstructure:"calls" validate:"gte=1" yaml:"calls" json:"calls"`

	// Clients is the number of concurrent submitters.
	Clients int `mapstructure:"clients" validate:"gte=1,lte=10000" yaml:"clients" json:"clients"`

	// ReadRatio is the share of data calls that are READs; the rest are WRITEs.
	ReadRatio float64 `mapstructure:"read_ratio" validate:"gte=0,lte=1" yaml:"read_ratio" json:"read_ratio"`

	// MetadataRatio is the share of calls that carry no offset
	// (GETATTR, LOOKUP, ACCESS, SETATTR).
	MetadataRatio float64 `mapstructure:"metadata_ratio" validate:"gte=0,lte=1" yaml:"metadata_ratio" json:"metadata_ratio"`

	// IOSize is the byte count of each READ or WRITE.
	IOSize bytesize.ByteSize `mapstructure:"io_size" yaml:"io_size" json:"io_size"`

	// FileSize bounds offsets; a sequential stream wraps at the end.
	FileSize bytesize.ByteSize `mapstructure:"file_size" yaml:"file_size" json:"file_size"`

	// ServiceTime is how long the simulated handler spends on a data call.
	// Metadata calls take a quarter of it.
	ServiceTime time.Duration `mapstructure:"service_time" yaml:"service_time" json:"service_time"`

	// Seed makes runs reproducible. Each client derives its own stream from it.
	Seed int64 `mapstructure:"seed" yaml:"seed" json:"seed"`
}

// DefaultConfig returns the default workload.
func DefaultConfig() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.Files == 0 {
		c.Files = DefaultFiles
	}
	if c.Calls == 0 {
		c.Calls = DefaultCalls
	}
	if c.Clients == 0 {
		c.Clients = DefaultClients
	}
	if c.ReadRatio == 0 {
		c.ReadRatio = DefaultReadRatio
	}
	if c.MetadataRatio == 0 {
		c.MetadataRatio = DefaultMetadataRatio
	}
	if c.IOSize == 0 {
		c.IOSize = DefaultIOSize
	}
	if c.FileSize == 0 {
		c.FileSize = DefaultFileSize
	}
	if c.FileSize < c.IOSize {
		c.FileSize = c.IOSize
	}
	if c.ServiceTime == 0 {
		c.ServiceTime = DefaultServiceTime
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
}
