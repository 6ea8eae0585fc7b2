package pipeline

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/yanun0323/logs"

	"bondpipe/internal/algoexec"
	"bondpipe/internal/algostream"
	"bondpipe/internal/booking"
	"bondpipe/internal/chaos"
	"bondpipe/internal/connector"
	"bondpipe/internal/datagen"
	"bondpipe/internal/execution"
	"bondpipe/internal/gui"
	"bondpipe/internal/historical"
	"bondpipe/internal/inquiry"
	"bondpipe/internal/marketdata"
	"bondpipe/internal/obs"
	"bondpipe/internal/ops"
	"bondpipe/internal/pricing"
	"bondpipe/internal/risk"
	"bondpipe/internal/schema"
	"bondpipe/internal/state"
	"bondpipe/internal/streaming"
	"bondpipe/pkg/conn"
)

// Options carries the collaborators tests replace. A non-nil OrderIDs takes
// precedence over algo.order_ids.
type Options struct {
	Metrics  *obs.Metrics
	Clock    obs.Clock
	OrderIDs algoexec.IDGenerator
	Quoter   inquiry.Quoter
}

// Pipeline owns every stage and sink of one run.
type Pipeline struct {
	cfg     ops.Loaded
	metrics *obs.Metrics

	Pricing    *pricing.Service
	MarketData *marketdata.Service
	AlgoExec   *algoexec.Engine
	AlgoStream *algostream.Engine
	Execution  *execution.Service
	Streaming  *streaming.Service
	Booking    *booking.Engine
	Positions  *state.PositionAggregator
	Risk       *risk.Engine
	Inquiry    *inquiry.Service
	GUI        *gui.Service

	batcher *marketdata.Batcher
	archive *historical.Writer
	db      *conn.Client
}

// Report summarizes the feeds of one run.
type Report struct {
	Feeds   map[string]connector.Stats
	Buckets []schema.PV01
}

// New builds every stage and links the listener graph:
//
//	prices     -> pricing -> {gui, algostream -> streaming -> archive}
//	marketdata -> algoexec -> execution -> {archive, booking}
//	trades     -> booking -> positions -> {risk -> archive, archive}
//	inquiries  -> inquiry -> archive
func New(cfg ops.Loaded, opts Options) (*Pipeline, error) {
	metrics := opts.Metrics
	clock := opts.Clock
	if clock == nil {
		clock = obs.SystemClock()
	}

	positions, err := state.RecoverPositions(state.RecoverConfig{
		SnapshotPath: recoverPath(cfg),
		AllowMissing: true,
	}, cfg.Registry, metrics)
	if err != nil {
		return nil, err
	}

	orderIDs := opts.OrderIDs
	if orderIDs == nil && cfg.Algo.OrderIDs == ops.OrderIDsSequence {
		orderIDs = obs.NewSequence("ORD", 0)
	}

	p := &Pipeline{
		cfg:        cfg,
		metrics:    metrics,
		Pricing:    pricing.NewService(metrics),
		MarketData: marketdata.NewService(metrics),
		AlgoExec: algoexec.NewEngine(algoexec.Config{
			SpreadLimit:   cfg.SpreadLimit,
			ParentOrderID: cfg.Algo.ParentOrderID,
			IDs:           orderIDs,
		}, metrics),
		AlgoStream: algostream.NewEngine(metrics),
		Execution:  execution.NewService(metrics),
		Streaming:  streaming.NewService(metrics),
		Booking: booking.NewEngine(booking.Config{
			Books:      cfg.Booking.Books,
			NotifyOnce: cfg.Booking.NotifyOnce,
		}, metrics),
		Positions: positions,
		Risk:      risk.NewEngine(risk.Config{MaxAbsPV01: cfg.MaxAbsPV01}, cfg.Registry, metrics),
		Inquiry:   inquiry.NewService(opts.Quoter, metrics),
	}
	p.batcher = marketdata.NewBatcher(cfg.MarketData.Depth, p.MarketData)

	p.GUI, err = gui.NewService(gui.Config{
		Dir:      cfg.Output.Dir,
		Throttle: cfg.GUI.Throttle,
		Truncate: cfg.Output.Truncate,
	}, clock, metrics)
	if err != nil {
		return nil, err
	}

	archiveCfg := historical.DefaultConfig(cfg.Output.Dir)
	archiveCfg.QueueSize = cfg.Archive.QueueSize
	archiveCfg.FlushInterval = cfg.Archive.FlushInterval
	archiveCfg.Truncate = cfg.Output.Truncate
	archiveCfg.DropWhenFull = cfg.Archive.DropWhenFull
	if p.archive, err = historical.NewWriter(archiveCfg, metrics); err != nil {
		_ = p.GUI.Close()
		return nil, err
	}

	var sql *historical.SQLSink
	if cfg.Archive.DB.Driver != "" {
		if p.db, err = conn.New(conn.Option{Driver: cfg.Archive.DB.Driver, ConnString: cfg.Archive.DB.DSN}); err != nil {
			_ = p.GUI.Close()
			return nil, err
		}
		if sql, err = historical.NewSQLSink(p.db.DB()); err != nil {
			_ = p.GUI.Close()
			_ = p.db.Close()
			return nil, err
		}
		logs.Infof("sql archive enabled, driver: %s", p.db.Driver())
	}

	p.Pricing.AddListener(p.GUI)
	p.Pricing.AddListener(p.AlgoStream)
	p.AlgoStream.AddListener(p.Streaming)
	p.Streaming.AddListener(historical.NewService[schema.PriceStream](historical.KindStreaming, p.archive, sql, clock))

	p.MarketData.AddListener(p.AlgoExec)
	p.AlgoExec.AddListener(p.Execution)
	p.Execution.AddListener(historical.NewService[schema.ExecutionOrder](historical.KindExecution, p.archive, sql, clock))
	p.Execution.AddListener(p.Booking)

	p.Booking.AddListener(p.Positions)
	p.Positions.AddListener(p.Risk)
	p.Positions.AddListener(historical.NewService[schema.Position](historical.KindPosition, p.archive, sql, clock))
	p.Risk.AddListener(historical.NewService[schema.PV01](historical.KindRisk, p.archive, sql, clock))

	p.Inquiry.AddListener(historical.NewService[schema.Inquiry](historical.KindInquiry, p.archive, sql, clock))

	if recovered := p.Positions.Positions(); len(recovered) > 0 {
		if err := p.Risk.Seed(recovered...); err != nil {
			_ = p.GUI.Close()
			_ = p.db.Close()
			return nil, err
		}
		logs.Infof("risk seeded from recovered positions: %d", len(recovered))
	}

	logs.Infof("pipeline linked, instruments: %d, sectors: %d", cfg.Registry.Len(), len(cfg.Sectors))
	return p, nil
}

func recoverPath(cfg ops.Loaded) string {
	if !cfg.Recover {
		return ""
	}
	return cfg.Snapshot.Path
}

// Generate writes synthetic feeds into the input directory and, when
// configured, mangles them through the chaos engine.
func (p *Pipeline) Generate() error {
	gen := p.cfg.Generate
	g, err := datagen.NewGenerator(p.cfg.Registry, gen.Seed)
	if err != nil {
		return err
	}
	if err := g.GenerateAll(p.cfg.Input.Dir, datagen.Sizes{
		Prices:     gen.Prices,
		MarketData: gen.MarketData,
		Trades:     gen.Trades,
		Inquiries:  gen.Inquiries,
	}); err != nil {
		return err
	}

	cfg := chaos.Config{
		DropRate:      gen.Chaos.DropRate,
		DuplicateRate: gen.Chaos.DuplicateRate,
		CorruptRate:   gen.Chaos.CorruptRate,
		ReorderWindow: gen.Chaos.ReorderWindow,
	}
	if !cfg.Enabled() {
		return nil
	}
	for i, name := range []string{datagen.PricesFile, datagen.TradesFile, datagen.MarketDataFile, datagen.InquiriesFile} {
		cfg.Seed = gen.Seed + int64(i) + 1
		stats, err := chaos.ApplyFile(filepath.Join(p.cfg.Input.Dir, name), cfg)
		if err != nil {
			return err
		}
		logs.Infof("chaos %s, in: %d, out: %d, dropped: %d, duplicated: %d, corrupted: %d",
			name, stats.In, stats.Out, stats.Dropped, stats.Duplicated, stats.Corrupted)
	}
	return nil
}

// Run processes the feeds in order: prices, trades, market data, inquiries.
// The archive writer runs until Close.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	if err := p.archive.Start(ctx); err != nil {
		return Report{}, err
	}

	report := Report{Feeds: make(map[string]connector.Stats)}
	opts := connector.Options{MaxRetries: p.cfg.Connector.MaxRetries, Metrics: p.metrics}
	input := func(name string) string { return filepath.Join(p.cfg.Input.Dir, name) }
	reg := p.cfg.Registry

	steps := []struct {
		name string
		run  func() (connector.Stats, error)
	}{
		{connector.FeedPrices, func() (connector.Stats, error) {
			return connector.RunFile(ctx, connector.PriceFeed(reg), input(datagen.PricesFile), p.Pricing.OnMessage, opts)
		}},
		{connector.FeedTrades, func() (connector.Stats, error) {
			return connector.RunFile(ctx, connector.TradeFeed(reg), input(datagen.TradesFile), p.Booking.OnMessage, opts)
		}},
		{connector.FeedMarketData, func() (connector.Stats, error) {
			stats, err := connector.RunFile(ctx, connector.MarketDataFeed(reg), input(datagen.MarketDataFile),
				func(ctx context.Context, row connector.MarketDataRow) error {
					return p.batcher.Add(ctx, row.Instrument, row.Order)
				}, opts)
			if err != nil {
				return stats, err
			}
			return stats, p.batcher.Flush(ctx)
		}},
		{connector.FeedInquiries, func() (connector.Stats, error) {
			return connector.RunFile(ctx, connector.InquiryFeed(reg), input(datagen.InquiriesFile), p.Inquiry.OnMessage, opts)
		}},
	}

	for _, step := range steps {
		stats, err := step.run()
		report.Feeds[step.name] = stats
		if err != nil {
			return report, err
		}
	}

	for _, sector := range p.cfg.Sectors {
		bucket, err := p.Risk.BucketedRisk(sector)
		if err != nil {
			return report, err
		}
		report.Buckets = append(report.Buckets, bucket)
		logs.Infof("bucketed risk, sector: %s, pv01: %s", bucket.Subject, bucket.PV01)
	}
	return report, nil
}

// Close drains the archive, closes the GUI file and writes the position
// snapshot and metrics.
func (p *Pipeline) Close() error {
	var errs []error
	if err := p.archive.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.GUI.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.cfg.Snapshot.Path != "" {
		if err := state.WriteSnapshot(p.cfg.Snapshot.Path, p.Positions.Snapshot()); err != nil {
			errs = append(errs, err)
		}
	}
	if p.cfg.Metrics.Path != "" && p.metrics != nil {
		if err := p.metrics.WriteTextfile(p.cfg.Metrics.Path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
