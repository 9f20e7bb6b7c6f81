package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/signalsfoundry/fso-downlink/core"
	"github.com/signalsfoundry/fso-downlink/internal/logging"
	"github.com/signalsfoundry/fso-downlink/internal/observability"
	"github.com/signalsfoundry/fso-downlink/timectrl"
)

type options struct {
	configPath  string
	seed        uint64
	run         uint64
	duration    time.Duration
	realtime    bool
	metricsAddr string
	output      string
}

func main() {
	log := logging.New(logging.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
		Output: os.Stderr,
	})

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Error(context.Background(), "invalid flags", logging.Err(err))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout, log); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("simulator", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "YAML scenario file (built-in reference downlink when empty)")
	fs.Uint64Var(&opts.seed, "seed", 0, "override the scenario RNG seed")
	fs.Uint64Var(&opts.run, "run", 0, "override the scenario run number")
	fs.DurationVar(&opts.duration, "duration", 0, "override the simulated duration")
	fs.BoolVar(&opts.realtime, "realtime", false, "pace simulated time against the wall clock")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics (disabled when empty)")
	fs.StringVarP(&opts.output, "output", "o", "-", "CSV file for reception samples, - for stdout")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func loadScenario(opts options) (*core.Scenario, error) {
	sc := core.DefaultScenario()
	if opts.configPath != "" {
		loaded, err := core.LoadScenarioFile(opts.configPath)
		if err != nil {
			return nil, err
		}
		sc = loaded
	}
	if opts.seed != 0 {
		sc.Seed = opts.seed
	}
	if opts.run != 0 {
		sc.Run = opts.run
	}
	if opts.duration > 0 {
		sc.Duration = opts.duration
	}
	return sc, sc.Validate()
}

func run(ctx context.Context, opts options, stdout io.Writer, log logging.Logger) error {
	sc, err := loadScenario(opts)
	if err != nil {
		return err
	}

	tracing := observability.TracingConfigFromEnv()
	tracing.Identity = observability.RunIdentity{Scenario: sc.Name, Seed: sc.Seed, Run: sc.Run}
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	link, err := observability.NewLinkCollector(reg)
	if err != nil {
		return fmt.Errorf("link metrics: %w", err)
	}
	loop, err := observability.NewEventLoopCollector(reg)
	if err != nil {
		return fmt.Errorf("event loop metrics: %w", err)
	}
	if srv := serveMetrics(opts.metricsAddr, link, log); srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	out := stdout
	if opts.output != "" && opts.output != "-" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer f.Close()
		out = f
	}
	samples := newSampleWriter(out)
	if err := samples.WriteHeader(); err != nil {
		return err
	}

	mode := timectrl.Accelerated
	if opts.realtime {
		mode = timectrl.RealTime
	}

	simulation, err := core.NewDownlinkSimulation(sc,
		core.WithSimulationLogger(log),
		core.WithLinkMetrics(link),
		core.WithEventLoopObserver(loop),
		core.WithClockMode(mode),
		core.WithReceptionSink(samples.Write),
	)
	if err != nil {
		return err
	}

	log.Info(ctx, "starting downlink simulation",
		logging.String("scenario", sc.Name),
		logging.Int64("seed", int64(sc.Seed)),
		logging.Duration("duration", sc.Duration),
		logging.String("mode", mode.String()),
	)
	report, runErr := simulation.Run(ctx)
	if err := samples.Flush(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}

	log.Info(ctx, "simulation complete",
		logging.Int("transmitted", report.Transmitted),
		logging.Int("delivered", report.Delivered),
		logging.Int("lost", report.Lost),
		logging.Int("tx_busy", report.TxBusy),
		logging.Int("no_los", report.NoLOS),
		logging.Float64("success_ratio", report.SuccessRatio()),
	)
	return nil
}

func serveMetrics(addr string, collector *observability.LinkCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

var sampleHeader = []string{
	"time", "node", "packet_id",
	"scintillation_index", "normalized_irradiance", "path_loss_db",
	"rx_power_w", "success_rate", "delivered",
}

// sampleWriter renders reception samples as CSV rows. The first write error
// is kept and reported by Flush.
type sampleWriter struct {
	w   *csv.Writer
	err error
}

func newSampleWriter(out io.Writer) *sampleWriter {
	return &sampleWriter{w: csv.NewWriter(out)}
}

func (s *sampleWriter) WriteHeader() error {
	return s.w.Write(sampleHeader)
}

func (s *sampleWriter) Write(sample core.ReceptionSample) {
	if s.err != nil {
		return
	}
	s.err = s.w.Write([]string{
		sample.Time.UTC().Format(time.RFC3339Nano),
		sample.Node,
		strconv.FormatUint(sample.PacketID, 10),
		formatFloat(sample.ScintillationIndex),
		formatFloat(sample.NormalizedIrradiance),
		formatFloat(sample.PathLossDB),
		formatFloat(sample.RxPowerWatts),
		formatFloat(sample.SuccessRate),
		strconv.FormatBool(sample.Delivered),
	})
}

func (s *sampleWriter) Flush() error {
	s.w.Flush()
	if s.err != nil {
		return s.err
	}
	return s.w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
