package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sarchlab/cachesim/datarecording"
	"github.com/sarchlab/cachesim/mem"
	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/monitoring"
	"github.com/sarchlab/cachesim/tracing"
	"github.com/sarchlab/cachesim/workload"
)

const cacheName = "L1"

func newRunCmd(v *viper.Viper) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workload on a cache.",
		Long: "Run reads accesses from a workload file, or generates random " +
			"ones, and sends them to the cache. Every read and write goes " +
			"through to the main memory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := readSettings(v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(
				cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sim := &simulation{
				settings: s,
				in:       cmd.InOrStdin(),
				out:      cmd.OutOrStdout(),
				logger:   newLogger(s, cmd.ErrOrStderr()),
			}

			return sim.run(ctx)
		},
	}

	addRunFlags(runCmd.Flags())

	return runCmd
}

// A simulation wires a cache, its memory, and the optional tracers together.
type simulation struct {
	settings settings
	in       io.Reader
	out      io.Writer
	logger   *logrus.Logger

	memory   *mem.Storage
	cache    *cache.Comp
	recorder datarecording.DataRecorder
	monitor  *monitoring.Monitor
}

func (s *simulation) run(ctx context.Context) error {
	defer s.close()

	if err := s.build(); err != nil {
		return err
	}

	requests, err := s.loadWorkload()
	if err != nil {
		return err
	}

	if err := s.replay(ctx, requests); err != nil {
		return err
	}

	if s.settings.Report {
		report, err := renderReport(s.cache, s.memory)
		if err != nil {
			return err
		}

		fmt.Fprint(s.out, report)
	}

	if s.monitor != nil {
		s.logger.Info("Workload finished, press Ctrl-C to stop monitoring")
		<-ctx.Done()
	}

	return nil
}

func (s *simulation) build() error {
	s.memory = mem.NewStorageWithPattern(s.settings.Memory,
		func(address uint64) uint64 { return address })

	builder := cache.MakeBuilder().
		WithConfig(s.settings.Cache).
		WithMemory(s.memory)

	if s.settings.Trace {
		builder = builder.WithHook(tracing.NewLogTracer(s.logger))
	}

	if s.settings.Record {
		recorder, err := datarecording.New(s.settings.RecordFile)
		if err != nil {
			return err
		}

		s.recorder = recorder
		builder = builder.WithHook(tracing.NewDBTracer(recorder))
	}

	if s.settings.Monitor {
		metrics := monitoring.NewMetrics()
		builder = builder.WithHook(metrics)

		s.monitor = monitoring.NewMonitor().
			WithLogger(s.logger).
			WithPortNumber(s.settings.MonitorPort).
			WithBrowser(s.settings.OpenBrowser).
			WithMetrics(metrics)
	}

	c, err := builder.Build(cacheName)
	if err != nil {
		return err
	}

	s.cache = c

	s.logger.WithFields(logrus.Fields{
		"cache":         cacheName,
		"lines":         s.settings.Cache.NumLines,
		"words":         s.settings.Cache.WordsPerLine,
		"mapping":       s.settings.Cache.Mapping.String(),
		"associativity": s.settings.Cache.Associativity,
		"policy":        s.settings.Cache.Policy.String(),
	}).Debug("Cache built")

	if s.monitor == nil {
		return nil
	}

	s.monitor.RegisterCache(c)

	_, err = s.monitor.StartServer()

	return err
}

func (s *simulation) loadWorkload() ([]workload.Request, error) {
	if s.settings.Random > 0 {
		return workload.Random(s.settings.Random, s.settings.Memory,
			s.settings.WriteRatio, s.settings.Cache.RandSeed)
	}

	if s.settings.Workload == "" || s.settings.Workload == "-" {
		return workload.Parse(s.in)
	}

	f, err := os.Open(s.settings.Workload)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return workload.Parse(f)
}

func (s *simulation) replay(
	ctx context.Context,
	requests []workload.Request,
) error {
	var bar *monitoring.ProgressBar
	if s.monitor != nil {
		bar = s.monitor.CreateProgressBar("Workload", uint64(len(requests)))
		defer s.monitor.CompleteProgressBar(bar)
	}

	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := s.cache.Access(req.Mode, req.Address, req.Value)
		if err != nil {
			if req.Line > 0 {
				return fmt.Errorf("workload line %d: %w", req.Line, err)
			}

			return err
		}

		if bar != nil {
			bar.IncrementFinished(1)
		}
	}

	return nil
}

func (s *simulation) close() {
	if s.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := s.monitor.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Warn("Cannot stop the monitoring server")
		}
	}

	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			s.logger.WithError(err).Warn("Cannot close the recording database")
		}
	}
}
