package main

import (
	"context"
	"errors"
	"flag"
	"os"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"

	"bondpipe/internal/obs"
	"bondpipe/internal/ops"
	"bondpipe/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("pipeline: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to a YAML, JSON or TOML config file")
	envFile := flag.String("env", ".env", "Env file loaded before the config (ignored if missing)")
	generate := flag.Bool("generate", false, "Generate input feeds before running")
	recoverFlag := flag.Bool("recover", false, "Seed positions from the snapshot file")
	flag.Parse()

	loaded, err := ops.Load(ops.Options{Path: *configPath, EnvFile: *envFile})
	if err != nil {
		return err
	}
	if *generate {
		loaded.Generate.Enabled = true
	}
	if *recoverFlag {
		loaded.Recover = true
	}

	if loaded.Profiling.ServerAddress != "" {
		profiler, err := startProfiler(loaded.Profiling)
		if err != nil {
			return err
		}
		defer func() {
			if err := profiler.Stop(); err != nil {
				logs.Errorf("stop profiler, err: %+v", err)
			}
		}()
	}

	p, err := pipeline.New(loaded, pipeline.Options{Metrics: obs.NewMetrics()})
	if err != nil {
		return err
	}
	if loaded.Generate.Enabled {
		if err := p.Generate(); err != nil {
			_ = p.Close()
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown signal received")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		report, err := p.Run(gctx)
		for name, stats := range report.Feeds {
			logs.Infof("feed %s, read: %d, skipped: %d, failed: %d", name, stats.Read, stats.Skipped, stats.Failed)
		}
		return err
	})

	runErr := g.Wait()
	closeErr := p.Close()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return errors.Join(runErr, closeErr)
	}
	if closeErr != nil {
		return closeErr
	}
	logs.Infof("pipeline finished, output: %s", loaded.Output.Dir)
	return nil
}

func startProfiler(cfg ops.ProfilingConfig) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Tags: map[string]string{
			"service": "bondpipe",
		},
		Logger: profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{}) { logs.Infof(format, args...) }
func (profilerLogger) Debugf(string, ...interface{}) {}
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
