package gui

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"bondpipe/internal/historical"
	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
	"bondpipe/internal/store"
)

const (
	sinkName = "gui"

	DefaultThrottle = 300 * time.Millisecond
	DefaultFileName = "gui.txt"
)

// Config controls the GUI snapshot sink.
type Config struct {
	Dir        string
	FileName   string
	Throttle   time.Duration
	TimeFormat string
	Truncate   bool
}

func (c Config) withDefaults() Config {
	if c.FileName == "" {
		c.FileName = DefaultFileName
	}
	if c.Throttle == 0 {
		c.Throttle = DefaultThrottle
	}
	if c.TimeFormat == "" {
		c.TimeFormat = historical.DefaultTimeFormat
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.New("invalid gui config: Dir is empty")
	}
	if c.Throttle < 0 {
		return errors.New("invalid gui config: Throttle must be >= 0")
	}
	return nil
}

// Service keeps the latest price per instrument and writes a price line to the
// GUI file at most once per throttle interval. Prices arriving inside the
// interval are kept but not written.
type Service struct {
	cfg     Config
	clock   obs.Clock
	metrics *obs.Metrics
	store   *store.Store[string, schema.Quote]

	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	last    time.Time
	written int
	dropped int
}

// NewService opens the GUI file for appending.
func NewService(cfg Config, clock obs.Clock, metrics *obs.Metrics) (*Service, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = obs.SystemClock()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if cfg.Truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	file, err := os.OpenFile(filepath.Join(cfg.Dir, cfg.FileName), flags, 0o644)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:     cfg,
		clock:   clock,
		metrics: metrics,
		store:   store.New(sinkName, schema.Quote.Key),
		file:    file,
		buf:     bufio.NewWriter(file),
	}, nil
}

// OnAdd receives prices from the pricing stage.
func (s *Service) OnAdd(ctx context.Context, q schema.Quote) error {
	return s.OnMessage(ctx, q)
}

// OnMessage records q and writes it if the throttle interval has elapsed.
func (s *Service) OnMessage(_ context.Context, q schema.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return errors.New("gui sink closed")
	}
	s.store.Upsert(q)

	now := s.clock.Now()
	if !s.last.IsZero() && now.Sub(s.last) < s.cfg.Throttle {
		s.dropped++
		s.metrics.IncQueueDrop(sinkName)
		return nil
	}
	s.last = now

	line := historical.Entry{Time: now, Fields: q.Fields()}.Line(s.cfg.TimeFormat)
	if _, err := s.buf.WriteString(line); err != nil {
		return errors.Wrap(err, "write gui line")
	}
	s.written++
	return nil
}

// Get returns the latest price seen for an instrument.
func (s *Service) Get(id string) (schema.Quote, error) {
	return s.store.Get(id)
}

// Stats returns the number of written and throttled prices.
func (s *Service) Stats() (written, dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written, s.dropped
}

// Close flushes and closes the GUI file.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.buf.Flush()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	return err
}
