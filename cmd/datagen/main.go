package main

import (
	"flag"
	"os"

	"github.com/yanun0323/logs"

	"bondpipe/internal/datagen"
	"bondpipe/internal/ops"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML, JSON or TOML config file")
	dir := flag.String("dir", "", "Output directory (default: input.dir from config)")
	seed := flag.Int64("seed", 0, "Random seed (default: generate.seed from config)")
	prices := flag.Int("prices", -1, "Prices per instrument")
	marketData := flag.Int("marketdata", -1, "Market data rows per instrument")
	trades := flag.Int("trades", -1, "Trades per instrument")
	inquiries := flag.Int("inquiries", -1, "Inquiries per instrument")
	flag.Parse()

	loaded, err := ops.Load(ops.Options{Path: *configPath})
	if err != nil {
		logs.Errorf("config load failed, err: %+v", err)
		os.Exit(1)
	}

	out := loaded.Input.Dir
	if *dir != "" {
		out = *dir
	}
	if *seed != 0 {
		loaded.Generate.Seed = *seed
	}
	sizes := datagen.Sizes{
		Prices:     pick(*prices, loaded.Generate.Prices),
		MarketData: pick(*marketData, loaded.Generate.MarketData),
		Trades:     pick(*trades, loaded.Generate.Trades),
		Inquiries:  pick(*inquiries, loaded.Generate.Inquiries),
	}

	generator, err := datagen.NewGenerator(loaded.Registry, loaded.Generate.Seed)
	if err != nil {
		logs.Errorf("generator init failed, err: %+v", err)
		os.Exit(1)
	}
	if err := generator.GenerateAll(out, sizes); err != nil {
		logs.Errorf("generate failed, err: %+v", err)
		os.Exit(1)
	}
}

func pick(flagValue, configValue int) int {
	if flagValue >= 0 {
		return flagValue
	}
	return configValue
}
