package historical

import (
	"time"

	"github.com/yanun0323/errors"
)

const (
	defaultQueueSize  = 4096
	defaultBufferSize = 64 * 1024
	// DefaultTimeFormat renders millisecond timestamps, e.g. 2024-01-02 15:04:05.123.
	DefaultTimeFormat = "2006-01-02 15:04:05.000"
)

// Config controls the archive writer.
type Config struct {
	Dir           string
	QueueSize     int
	BufferSize    int
	FlushInterval time.Duration
	TimeFormat    string
	// Truncate empties the archive files on open instead of appending.
	Truncate bool
	// DropWhenFull makes Append drop and count an entry instead of waiting
	// for room in the queue.
	DropWhenFull bool
}

// DefaultConfig returns a baseline configuration writing into dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:        dir,
		QueueSize:  defaultQueueSize,
		BufferSize: defaultBufferSize,
		TimeFormat: DefaultTimeFormat,
	}
}

func (c Config) withDefaults() Config {
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.TimeFormat == "" {
		c.TimeFormat = DefaultTimeFormat
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.New("invalid archive config: Dir is empty")
	}
	if c.QueueSize <= 0 {
		return errors.New("invalid archive config: QueueSize must be > 0")
	}
	if c.BufferSize <= 0 {
		return errors.New("invalid archive config: BufferSize must be > 0")
	}
	if c.FlushInterval < 0 {
		return errors.New("invalid archive config: FlushInterval must be >= 0")
	}
	return nil
}
