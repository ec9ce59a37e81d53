package main

import (
	"errors"
	"flag"
	"io/fs"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// config holds the workload knobs. Environment variables (optionally from
// a .env file) provide defaults; command-line flags override them.
type config struct {
	Capacity int `env:"BENCH_CAP" envDefault:"100000"`

	Workers  int           `env:"BENCH_WORKERS"`
	Duration time.Duration `env:"BENCH_DURATION" envDefault:"10s"`
	ReadPct  int           `env:"BENCH_READS" envDefault:"80"`
	Batch    int           `env:"BENCH_BATCH" envDefault:"8"`

	Keys    int     `env:"BENCH_KEYS" envDefault:"1000000"`
	ZipfS   float64 `env:"BENCH_ZIPF_S" envDefault:"1.1"`
	ZipfV   float64 `env:"BENCH_ZIPF_V" envDefault:"1.0"`
	Seed    int64   `env:"BENCH_SEED"`
	Preload int     `env:"BENCH_PRELOAD"`

	PprofAddr   string `env:"BENCH_PPROF"`
	MetricsAddr string `env:"BENCH_HTTP" envDefault:":8080"`
	LogLevel    string `env:"BENCH_LOG_LEVEL" envDefault:"info"`
}

// loadConfig reads .env (if present), then the environment, then flags.
func loadConfig(args []string) (config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config{}, err
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2 * runtime.GOMAXPROCS(0)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	fset := flag.NewFlagSet("bench", flag.ContinueOnError)
	fset.IntVar(&cfg.Capacity, "cap", cfg.Capacity, "cache capacity (entries)")
	fset.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of worker goroutines")
	fset.DurationVar(&cfg.Duration, "duration", cfg.Duration, "benchmark duration")
	fset.IntVar(&cfg.ReadPct, "reads", cfg.ReadPct, "read percentage [0..100]")
	fset.IntVar(&cfg.Batch, "batch", cfg.Batch, "references held per read scope")
	fset.IntVar(&cfg.Keys, "keys", cfg.Keys, "keyspace size")
	fset.Float64Var(&cfg.ZipfS, "zipf_s", cfg.ZipfS, "Zipf s > 1 (skew)")
	fset.Float64Var(&cfg.ZipfV, "zipf_v", cfg.ZipfV, "Zipf v")
	fset.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	fset.IntVar(&cfg.Preload, "preload", cfg.Preload, "preload entries (0 = cap/2)")
	fset.StringVar(&cfg.PprofAddr, "pprof", cfg.PprofAddr, "serve pprof at addr (e.g. :6060); empty = disabled")
	fset.StringVar(&cfg.MetricsAddr, "http", cfg.MetricsAddr, "serve Prometheus metrics at addr")
	fset.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "log level: debug | info | warn | error")
	if err := fset.Parse(args); err != nil {
		return config{}, err
	}

	if cfg.Preload == 0 {
		cfg.Preload = cfg.Capacity / 2
	}
	if cfg.Batch < 1 {
		cfg.Batch = 1
	}
	if cfg.Keys < 1 {
		return config{}, errors.New("keys must be > 0")
	}
	if cfg.ZipfS <= 1 {
		return config{}, errors.New("zipf_s must be > 1")
	}
	return cfg, nil
}
