// pmcore discovers process models from event logs and checks how well
// models and logs agree.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/pmcore/pkg/analysis"
	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/defaults/metrics"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/petri"
	"github.com/logflow/pmcore/pkg/ptree"
	"github.com/logflow/pmcore/pkg/telemetry"
	"github.com/logflow/pmcore/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	configFile     string
	verbose        bool
	quiet          bool
	metricsAddr    string
	metricsSummary bool

	inputFile     string
	modelFile     string
	algorithmFlag string
	outputFile    string

	diagnosticsFile string
	compressionFlag string
	batchSize       int

	topK int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pmcore",
	Short: "pmcore - process discovery and conformance checking",
	Long: `pmcore mines process models (Petri nets, process trees) from event logs and
measures how well a model and a log agree.

Event logs are read from XES, CSV, JSONL or XLSX files; the format follows the
file extension. Models are read from PNML or PTML files, or discovered on the fly.

Configuration is merged from /etc/pmcore/config.yaml, ~/.pmcore/config.yaml,
./.pmcore.yaml, the --config file and PMCORE_* environment variables.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file merged over the search path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress and metrics to stderr")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Print results only")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")
	rootCmd.PersistentFlags().BoolVar(&metricsSummary, "metrics-summary", false, "With --verbose, log one aggregated line per metric at exit instead of every timer")
}

// addModelFlags registers the flags of commands that need a log and a model.
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Event log file (required)")
	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "Model file (.pnml, .ptml); discovered from the log when empty")
	cmd.Flags().StringVarP(&algorithmFlag, "algorithm", "a", "inductive",
		"Discovery algorithm when no model is given ("+strings.Join(analysis.Algorithms(), ", ")+")")
	cmd.MarkFlagRequired("input")
}

// session bundles the analysis context and output of one command run.
type session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	an      *analysis.Context
	out     *tui.Printer
	metrics *http.Server
}

func loadConfig() (*config.Config, error) {
	m := config.NewManager()
	if err := m.Load(); err != nil {
		return nil, err
	}
	if configFile != "" {
		if err := m.LoadFile(configFile); err != nil {
			return nil, err
		}
	}
	return m.Get(), nil
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	s := &session{ctx: ctx, cancel: cancel, out: tui.NewPrinter(cmd.OutOrStdout())}

	logger := log.New(cmd.ErrOrStderr(), "[pmcore] ", log.LstdFlags)
	if !verbose {
		logger.SetOutput(io.Discard)
	}
	opts := []analysis.Option{analysis.WithLogger(logger)}

	addr := metricsAddr
	if addr == "" {
		addr = cfg.Telemetry.PrometheusAddr
	}
	switch {
	case addr != "":
		prom := metrics.NewPrometheusMetrics("pmcore")
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		s.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := s.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("metrics server: %v", err)
			}
		}()
		opts = append(opts, analysis.WithMetrics(prom))
	case verbose:
		opts = append(opts, analysis.WithMetrics(logMetrics(logger)))
	}

	if cfg.Telemetry.Enabled {
		tr, err := telemetry.NewOTLPTracer(ctx, telemetry.OTLPConfigFrom(cfg.Telemetry))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		opts = append(opts, analysis.WithTracer(tr))
	}

	s.an = analysis.New(cfg, opts...)
	if !quiet {
		s.out.Header(version)
	}
	return s, nil
}

// logMetrics streams timers, or summarizes every metric when
// --metrics-summary is set.
func logMetrics(logger *log.Logger) *metrics.LogMetrics {
	lm := []metrics.LogMetricsOption{metrics.WithPrefix("metrics:")}
	if metricsSummary {
		lm = append(lm, metrics.WithSummary())
	} else {
		lm = append(lm, metrics.WithMinLevel(metrics.LogLevelTimers))
	}
	return metrics.NewLogMetrics(logger, lm...)
}

func (s *session) Close() error {
	defer s.cancel()
	err := s.an.Close()
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := s.metrics.Shutdown(ctx); err == nil {
			err = serr
		}
	}
	return err
}

// readLog parses the input file and reports its size.
func (s *session) readLog(path string) (*eventlog.EventLog, error) {
	start := time.Now()
	l, err := s.an.ReadLog(s.ctx, path)
	if err != nil {
		return nil, err
	}
	if !quiet {
		s.out.Section("event log")
		s.out.KeyValues([]tui.KV{
			{Key: "File", Value: filepath.Base(path)},
			{Key: "Cases", Value: tui.Number(int64(l.Len()))},
			{Key: "Events", Value: tui.Number(int64(l.EventCount()))},
			{Key: "Variants", Value: tui.Number(int64(s.an.Variants(l).Len()))},
			{Key: "Parsed in", Value: tui.Duration(time.Since(start))},
		})
	}
	return l, nil
}

// model reads the model file or, when none is given, discovers one from l.
func (s *session) model(l *eventlog.EventLog) (*analysis.Model, error) {
	if modelFile == "" {
		algo, err := analysis.ParseAlgorithm(algorithmFlag)
		if err != nil {
			return nil, err
		}
		return s.an.Discover(s.ctx, l, algo)
	}
	f, err := os.Open(modelFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(modelFile)) {
	case ".pnml":
		an, err := petri.ReadPNML(f)
		if err != nil {
			return nil, err
		}
		return &analysis.Model{Net: an}, nil
	case ".ptml":
		tree, err := ptree.ReadPTML(f)
		if err != nil {
			return nil, err
		}
		an, err := ptree.ToPetriNet(tree)
		if err != nil {
			return nil, err
		}
		return &analysis.Model{Net: an, Tree: tree}, nil
	default:
		return nil, fmt.Errorf("unsupported model file %s (want .pnml or .ptml)", modelFile)
	}
}
