package historical

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bondpipe/internal/bus"
	"bondpipe/internal/obs"
)

var (
	ErrQueueFull      = errors.New("archive queue full")
	ErrClosed         = errors.New("archive writer closed")
	ErrNotStarted     = errors.New("archive writer not started")
	ErrAlreadyStarted = errors.New("archive writer already started")
	ErrUnknownKind    = errors.New("unknown archive kind")
)

const sinkName = "archive"

// Entry is one archived event.
type Entry struct {
	Kind   Kind
	Time   time.Time
	Fields []string
}

// Line renders the entry as "timestamp,field1,field2,...,".
func (e Entry) Line(timeFormat string) string {
	var sb strings.Builder
	sb.WriteString(e.Time.Format(timeFormat))
	sb.WriteByte(',')
	for _, f := range e.Fields {
		sb.WriteString(f)
		sb.WriteByte(',')
	}
	sb.WriteByte('\n')
	return sb.String()
}

// Writer appends entries to the fixed-name archive files from a bounded queue.
// Files are opened lazily by the writer goroutine.
type Writer struct {
	cfg     Config
	queue   *bus.Queue[Entry]
	metrics *obs.Metrics
	wg      sync.WaitGroup
	err     atomic.Value

	files     map[Kind]*archiveFile
	lastFlush time.Time

	started uint32
	closed  uint32
}

type archiveFile struct {
	file *os.File
	buf  *bufio.Writer
}

// NewWriter creates an archive writer and ensures the target directory exists.
func NewWriter(cfg Config, metrics *obs.Metrics) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg:     cfg,
		queue:   bus.NewQueue[Entry](cfg.QueueSize),
		metrics: metrics,
		files:   make(map[Kind]*archiveFile),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops accepting entries, waits until queued entries are written and
// closes every file.
func (w *Writer) Close() error {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		w.queue.Close()
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(errBox).err
	}
	return nil
}

// Path returns the file path of kind.
func (w *Writer) Path(kind Kind) string {
	return filepath.Join(w.cfg.Dir, kind.FileName())
}

// Append enqueues an entry, waiting for room until ctx is done. With
// DropWhenFull set it behaves like TryAppend.
func (w *Writer) Append(ctx context.Context, e Entry) error {
	if w.cfg.DropWhenFull {
		return w.TryAppend(e)
	}
	if err := w.admit(e); err != nil {
		return err
	}
	if err := w.queue.Publish(ctx, e); err != nil {
		if errors.Is(err, bus.ErrQueueClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// TryAppend enqueues an entry without blocking. Dropped entries are counted.
func (w *Writer) TryAppend(e Entry) error {
	if err := w.admit(e); err != nil {
		return err
	}
	switch err := w.queue.TryPublish(e); {
	case err == nil:
		return nil
	case errors.Is(err, bus.ErrQueueFull):
		w.metrics.IncQueueDrop(sinkName)
		return ErrQueueFull
	case errors.Is(err, bus.ErrQueueClosed):
		return ErrClosed
	default:
		return err
	}
}

func (w *Writer) admit(e Entry) error {
	if !e.Kind.IsAvailable() {
		return ErrUnknownKind
	}
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	return w.Err()
}

func (w *Writer) run(ctx context.Context) {
	defer func() {
		if err := w.closeFiles(); err != nil {
			w.setErr(err)
		}
	}()

	err := w.queue.Run(ctx, w.write)
	if err != nil && !errors.Is(err, context.Canceled) {
		w.setErr(err)
	}
}

func (w *Writer) write(e Entry) error {
	f, err := w.open(e.Kind)
	if err != nil {
		return err
	}
	if _, err := f.buf.WriteString(e.Line(w.cfg.TimeFormat)); err != nil {
		return err
	}
	if w.cfg.FlushInterval > 0 && time.Since(w.lastFlush) >= w.cfg.FlushInterval {
		w.lastFlush = time.Now()
		return w.flushFiles()
	}
	return nil
}

func (w *Writer) open(kind Kind) (*archiveFile, error) {
	if f, ok := w.files[kind]; ok {
		return f, nil
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if w.cfg.Truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	file, err := os.OpenFile(w.Path(kind), flags, 0o644)
	if err != nil {
		return nil, err
	}
	f := &archiveFile{file: file, buf: bufio.NewWriterSize(file, w.cfg.BufferSize)}
	w.files[kind] = f
	return f, nil
}

func (w *Writer) flushFiles() error {
	for _, f := range w.files {
		if err := f.buf.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) closeFiles() error {
	var errs []error
	for kind, f := range w.files {
		if err := f.buf.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := f.file.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(w.files, kind)
	}
	return errors.Join(errs...)
}

func (w *Writer) setErr(err error) {
	if err == nil {
		return
	}
	if w.err.Load() != nil {
		return
	}
	w.err.Store(errBox{err})
}

// errBox keeps the atomic.Value type stable across error types.
type errBox struct{ err error }
