package connector

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"bondpipe/internal/obs"
)

// DefaultMaxRetries is the retry budget configured when none is given.
const DefaultMaxRetries = 3

const (
	defaultRetryDelay = 10 * time.Millisecond
	defaultBufferSize = 64 * 1024
)

// Options controls a feed run.
type Options struct {
	// MaxRetries bounds consecutive retries of a failing read. Zero fails on
	// the first read error.
	MaxRetries int
	RetryDelay time.Duration
	BufferSize int
	Metrics    *obs.Metrics
}

func (o Options) withDefaults() Options {
	if o.RetryDelay == 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.BufferSize == 0 {
		o.BufferSize = defaultBufferSize
	}
	return o
}

// Stats summarizes a feed run.
type Stats struct {
	Read    int
	Skipped int
	Failed  int
	Retries int
}

// Run reads r line by line, parses each line with feed and hands the record to
// handle. Lines that fail to parse are logged, counted and skipped. Errors from
// handle are counted as failed and do not stop the run. Read errors other than
// io.EOF are retried up to MaxRetries times in a row.
func Run[T any](ctx context.Context, feed Feed[T], r io.Reader, handle func(context.Context, T) error, opts Options) (Stats, error) {
	opts = opts.withDefaults()
	var (
		stats   Stats
		br      = bufio.NewReaderSize(r, opts.BufferSize)
		pending strings.Builder
		retries int
		lineNo  int
	)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		chunk, err := br.ReadString('\n')
		pending.WriteString(chunk)
		if err != nil && !errors.Is(err, io.EOF) {
			if retries >= opts.MaxRetries {
				return stats, errors.Wrapf(err, "%s: read line %d after %d retries", feed.Name, lineNo+1, retries)
			}
			retries++
			stats.Retries++
			logs.Errorf("%s: read error, retry %d/%d, err: %+v", feed.Name, retries, opts.MaxRetries, err)
			if err := sleep(ctx, opts.RetryDelay); err != nil {
				return stats, err
			}
			continue
		}
		retries = 0

		eof := errors.Is(err, io.EOF)
		line := pending.String()
		pending.Reset()
		if strings.TrimSpace(line) != "" {
			lineNo++
			stats.Read++
			opts.Metrics.IncLineRead(feed.Name)
			start := time.Now()
			process(ctx, feed, line, lineNo, handle, &stats, opts.Metrics)
			opts.Metrics.ObserveRecord(feed.Name, time.Since(start))
		}
		if eof {
			return stats, nil
		}
	}
}

func process[T any](ctx context.Context, feed Feed[T], line string, lineNo int, handle func(context.Context, T) error, stats *Stats, metrics *obs.Metrics) {
	record, err := feed.ParseLine(line)
	if err != nil {
		stats.Skipped++
		metrics.IncLineSkipped(feed.Name)
		logs.Errorf("%s: skip line %d, err: %+v", feed.Name, lineNo, err)
		return
	}
	if err := handle(ctx, record); err != nil {
		stats.Failed++
		logs.Errorf("%s: handle line %d, err: %+v", feed.Name, lineNo, err)
	}
}

// RunFile opens path and runs feed over it.
func RunFile[T any](ctx context.Context, feed Feed[T], path string, handle func(context.Context, T) error, opts Options) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, errors.Wrapf(err, "open %s feed", feed.Name)
	}
	defer f.Close()

	stats, err := Run(ctx, feed, f, handle, opts)
	if err != nil {
		return stats, err
	}
	logs.Infof("%s: read=%d skipped=%d failed=%d retries=%d", feed.Name, stats.Read, stats.Skipped, stats.Failed, stats.Retries)
	return stats, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
