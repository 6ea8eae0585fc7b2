package chaos

import (
	"bufio"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yanun0323/errors"
)

// Config controls fault injection on feed lines.
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	CorruptRate   float64
	ReorderWindow int
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	for name, rate := range map[string]float64{
		"dropRate":      c.DropRate,
		"duplicateRate": c.DuplicateRate,
		"corruptRate":   c.CorruptRate,
	} {
		if rate < 0 || rate > 1 {
			return errors.Errorf("%s must be between 0 and 1, got %v", name, rate)
		}
	}
	if c.ReorderWindow < 0 {
		return errors.New("reorderWindow must be >= 0")
	}
	return nil
}

// Enabled reports whether any rule would change the input.
func (c Config) Enabled() bool {
	return c.DropRate > 0 || c.DuplicateRate > 0 || c.CorruptRate > 0 || c.ReorderWindow > 1
}

// Stats counts what the engine did.
type Stats struct {
	In         int
	Out        int
	Dropped    int
	Duplicated int
	Corrupted  int
}

// Engine applies chaos rules to feed lines.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []string
	stats   Stats
}

// NewEngine creates a chaos engine. A zero seed picks one from the clock.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(uint64(cfg.Seed), 0)),
	}, nil
}

// Process applies chaos to a single line and returns the lines to emit.
func (e *Engine) Process(line string) []string {
	if e == nil {
		return []string{line}
	}
	e.stats.In++
	if e.hit(e.cfg.DropRate) {
		e.stats.Dropped++
		return nil
	}
	if e.hit(e.cfg.CorruptRate) {
		line = corrupt(line)
		e.stats.Corrupted++
	}
	if e.cfg.ReorderWindow <= 1 {
		return e.emit(line)
	}
	e.pending = append(e.pending, line)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	return e.emit(e.take())
}

// Flush returns any buffered lines after processing completes.
func (e *Engine) Flush() []string {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	var out []string
	for len(e.pending) > 0 {
		out = append(out, e.emit(e.take())...)
	}
	return out
}

// Stats returns the counts so far.
func (e *Engine) Stats() Stats {
	if e == nil {
		return Stats{}
	}
	return e.stats
}

// Apply copies r to w line by line through the engine.
func (e *Engine) Apply(r io.Reader, w io.Writer) error {
	bw := bufio.NewWriter(w)
	write := func(lines []string) {
		for _, l := range lines {
			bw.WriteString(l)
			bw.WriteByte('\n')
		}
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		write(e.Process(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return err
	}
	write(e.Flush())
	return bw.Flush()
}

// ApplyFile rewrites the file at path through a new engine.
func ApplyFile(path string, cfg Config) (Stats, error) {
	e, err := NewEngine(cfg)
	if err != nil {
		return Stats{}, err
	}
	in, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".chaos-*")
	if err != nil {
		return Stats{}, err
	}
	if err := e.Apply(in, tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return Stats{}, errors.Wrapf(err, "chaos %s", path)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return Stats{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Stats{}, err
	}
	return e.Stats(), nil
}

func (e *Engine) hit(rate float64) bool {
	return rate > 0 && e.rng.Float64() < rate
}

func (e *Engine) take() string {
	idx := e.rng.IntN(len(e.pending))
	line := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return line
}

func (e *Engine) emit(line string) []string {
	out := []string{line}
	if e.hit(e.cfg.DuplicateRate) {
		out = append(out, line)
		e.stats.Duplicated++
	}
	e.stats.Out += len(out)
	return out
}

// corrupt keeps only the first field, which no feed accepts.
func corrupt(line string) string {
	first, _, _ := strings.Cut(line, ",")
	return first + ",?"
}
