package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sarchlab/cachesim/mem/cache"
)

// settings are the resolved options of a run.
type settings struct {
	Cache  cache.Config
	Memory uint64

	Workload   string
	Random     int
	WriteRatio float64

	Trace      bool
	Record     bool
	RecordFile string
	Report     bool

	Monitor     bool
	MonitorPort int
	OpenBrowser bool

	LogLevel  logrus.Level
	LogFormat string
}

func addRunFlags(flags *pflag.FlagSet) {
	flags.Int("lines", 4, "number of cache lines")
	flags.Int("words", 4, "number of words per line")
	flags.String("mapping", "set-associative",
		"direct (1), fully-associative (2), or set-associative (3)")
	flags.Int("associativity", 2, "lines per set of a set associative cache")
	flags.String("policy", "lru", "random (1), fifo (2), lfu (3), or lru (4)")
	flags.Uint64("memory", 1024, "number of words of the main memory")
	flags.Uint64("seed", 1, "seed of the random policy and random workloads")

	flags.String("workload", "-",
		"workload file, - reads from the standard input")
	flags.Int("random", 0,
		"generate this many random accesses instead of reading a workload")
	flags.Float64("write-ratio", 0.3, "share of writes in random workloads")

	flags.Bool("trace", true, "log every access")
	flags.Bool("record", false, "record every access into an SQLite database")
	flags.String("record-file", "",
		"database name without extension, a unique name when empty")
	flags.Bool("report", true, "print the cache content after the run")

	flags.Bool("monitor", false,
		"serve a monitoring web page until interrupted")
	flags.Int("monitor-port", 0, "port of the monitoring server, 0 for any")
	flags.Bool("open-browser", false, "open the monitoring page in a browser")
}

func readSettings(v *viper.Viper) (settings, error) {
	mapping, err := cache.ParseMapping(v.GetString("mapping"))
	if err != nil {
		return settings{}, err
	}

	policy, err := cache.ParsePolicy(v.GetString("policy"))
	if err != nil {
		return settings{}, err
	}

	level, err := logrus.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return settings{}, err
	}

	s := settings{
		Cache: cache.Config{
			NumLines:      v.GetInt("lines"),
			WordsPerLine:  v.GetInt("words"),
			Mapping:       mapping,
			Associativity: v.GetInt("associativity"),
			Policy:        policy,
			RandSeed:      v.GetUint64("seed"),
		},
		Memory:      v.GetUint64("memory"),
		Workload:    v.GetString("workload"),
		Random:      v.GetInt("random"),
		WriteRatio:  v.GetFloat64("write-ratio"),
		Trace:       v.GetBool("trace"),
		Record:      v.GetBool("record"),
		RecordFile:  v.GetString("record-file"),
		Report:      v.GetBool("report"),
		Monitor:     v.GetBool("monitor"),
		MonitorPort: v.GetInt("monitor-port"),
		OpenBrowser: v.GetBool("open-browser"),
		LogLevel:    level,
		LogFormat:   v.GetString("log-format"),
	}

	if err := s.validate(); err != nil {
		return settings{}, err
	}

	return s, nil
}

func (s settings) validate() error {
	if err := s.Cache.Validate(); err != nil {
		return err
	}

	if s.Memory == 0 {
		return fmt.Errorf("%w: the memory has no words", cache.ErrConfiguration)
	}

	if s.Random < 0 {
		return fmt.Errorf("%w: negative number of random accesses %d",
			cache.ErrConfiguration, s.Random)
	}

	if s.WriteRatio < 0 || s.WriteRatio > 1 {
		return fmt.Errorf("%w: write ratio %g is not in [0, 1]",
			cache.ErrConfiguration, s.WriteRatio)
	}

	switch s.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q",
			cache.ErrConfiguration, s.LogFormat)
	}

	return nil
}
