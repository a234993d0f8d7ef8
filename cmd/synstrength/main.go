// Command synstrength rebuilds the pulse response strength features and
// connection summaries, and inspects the stored results.
//
//	synstrength --rebuild [--config file] [--workers N] [--metrics-addr :9100]
//	synstrength                      list stored connection summaries
//	synstrength pair --experiment E --pre P --post Q [--clamp-mode ic]
//	synstrength reports              list archived rebuild reports
//	synstrength seed                 load a synthetic dataset (development)
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"synstrength/internal/blob"
	"synstrength/internal/config"
	"synstrength/internal/fixture"
	"synstrength/internal/observability"
	"synstrength/internal/pipeline"
	"synstrength/internal/report"
	"synstrength/pkg/domain"
)

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitPartial = 2
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

type rootOptions struct {
	configPath  string
	rebuild     bool
	workers     int
	metricsAddr string
}

// app carries state shared by the commands of one invocation.
type app struct {
	opts   rootOptions
	stdout io.Writer
	stderr io.Writer
	code   int
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "synstrength: %v\n", err)
		return exitError
	}
	return a.code
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "synstrength",
		Short:         "Compute synaptic strength features and connection summaries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.opts.rebuild {
				return a.runRebuild(cmd.Context())
			}
			return a.listSummaries(cmd.Context())
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&a.opts.configPath, "config", "", "YAML configuration file")
	f.IntVar(&a.opts.workers, "workers", 0, "processor workers (overrides config)")
	root.Flags().BoolVar(&a.opts.rebuild, "rebuild", false, "drop and recompute the derived tables")
	root.Flags().StringVar(&a.opts.metricsAddr, "metrics-addr", "", "serve /metrics on this address during the rebuild")

	root.AddCommand(a.pairCommand(), a.reportsCommand(), a.seedCommand())
	return root
}

func (a *app) loadConfig() (config.Config, error) {
	cfg, err := config.Load(a.opts.configPath, os.Getenv)
	if err != nil {
		return cfg, err
	}
	if a.opts.workers > 0 {
		cfg.Workers = a.opts.workers
	}
	if a.opts.metricsAddr != "" {
		cfg.MetricsAddr = a.opts.metricsAddr
	}
	return cfg, nil
}

func (a *app) open(ctx context.Context, metrics *observability.Metrics, withArtifacts bool) (*pipeline.Service, config.Config, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	logger, err := observability.NewLogger(a.stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, cfg, err
	}
	svc, err := pipeline.Open(ctx, cfg, logger, metrics, withArtifacts)
	return svc, cfg, err
}

func (a *app) runRebuild(ctx context.Context) error {
	metrics := observability.NewMetrics(nil)
	svc, cfg, err := a.open(ctx, metrics, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	if cfg.MetricsAddr != "" {
		srv, err := observability.ListenMetrics(cfg.MetricsAddr, metrics)
		if err != nil {
			return fmt.Errorf("serve metrics: %w", err)
		}
		fmt.Fprintf(a.stderr, "serving metrics on http://%s/metrics\n", srv.Addr())
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	rep, err := svc.Rebuild(ctx)
	printReport(a.stdout, rep)
	if err != nil {
		return err
	}
	if rep.Status == report.StatusPartial {
		a.code = exitPartial
	}
	return nil
}

func printReport(w io.Writer, rep report.Report) {
	fmt.Fprintf(w, "run %s status %s\n", rep.RunID, rep.Status)
	fmt.Fprintf(w, "responses %d/%d, summaries %d, failed ranges %d, skipped pairs %d\n",
		rep.ResponsesProcessed, rep.ResponsesTotal, rep.SummariesWritten, len(rep.FailedRanges), len(rep.SkippedPairs))
	for _, f := range rep.FailedRanges {
		fmt.Fprintf(w, "  failed [%d, %d): %s\n", f.Start, f.Stop, f.Error)
	}
	for _, art := range rep.Artifacts {
		fmt.Fprintf(w, "  artifact %s (%d bytes)\n", art.Key, art.Size)
	}
}

func (a *app) listSummaries(ctx context.Context) error {
	svc, _, err := a.open(ctx, nil, false)
	if err != nil {
		return err
	}
	defer svc.Close()
	summaries, err := svc.Summaries(ctx)
	if err != nil {
		return fmt.Errorf("list summaries (run --rebuild first?): %w", err)
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXPERIMENT\tPRE\tPOST\tTYPE\tN\tAMP_MEAN\tDECONV_AMP_MEAN\tKS_D\tKS_P")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%d\t%.4g\t%.4g\t%.3f\t%.3g\n",
			s.ExperimentID, s.Pre, s.Post, s.SynapseType, s.SampleCount,
			s.AmpMean, s.DeconvAmpMean, s.AmpComparisonStat, s.AmpComparisonPValue)
	}
	return tw.Flush()
}

func (a *app) pairCommand() *cobra.Command {
	var (
		experiment int64
		pre, post  int
		clampMode  string
	)
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Print the feature rows of one channel pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := a.open(cmd.Context(), nil, false)
			if err != nil {
				return err
			}
			defer svc.Close()
			rows, err := svc.GetPairFeatures(cmd.Context(), experiment, pre, post, clampMode)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RESPONSE\tPOS_AMP\tNEG_AMP\tPOS_BASE\tNEG_BASE\tPOS_DEC\tNEG_DEC\tPOS_DEC_BASE\tNEG_DEC_BASE")
			for _, r := range rows {
				fmt.Fprintf(tw, "%d\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\n",
					r.ResponseID, r.PosAmp, r.NegAmp, r.PosBaseAmp, r.NegBaseAmp,
					r.PosDecAmp, r.NegDecAmp, r.PosDecBaseAmp, r.NegDecBaseAmp)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int64Var(&experiment, "experiment", 0, "experiment id")
	cmd.Flags().IntVar(&pre, "pre", 0, "presynaptic device key")
	cmd.Flags().IntVar(&post, "post", 0, "postsynaptic device key")
	cmd.Flags().StringVar(&clampMode, "clamp-mode", domain.ClampModeCurrent, "clamp mode of the postsynaptic recording")
	for _, name := range []string{"experiment", "pre", "post"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *app) reportsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "List archived rebuild reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			store, err := blob.Open(cmd.Context(), cfg.Blob)
			if err != nil {
				return err
			}
			infos, err := store.List(cmd.Context(), "reports/")
			if err != nil {
				return err
			}
			exp := report.Exporter{Store: store}
			for _, info := range infos {
				if !strings.HasSuffix(info.Key, "/report.json") {
					continue
				}
				runID := strings.TrimSuffix(strings.TrimPrefix(info.Key, "reports/"), "/report.json")
				rep, err := exp.Load(cmd.Context(), runID)
				if err != nil {
					if errors.Is(err, blob.ErrNotFound) {
						continue
					}
					return err
				}
				fmt.Fprintf(a.stdout, "%s\t%s\t%s\t%d summaries\n", rep.RunID, rep.FinishedAt.Format(time.RFC3339), rep.Status, rep.SummariesWritten)
			}
			return nil
		},
	}
}

func (a *app) seedCommand() *cobra.Command {
	var opts fixture.Options
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the source tables and load a synthetic dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, cfg, err := a.open(cmd.Context(), nil, false)
			if err != nil {
				return err
			}
			defer svc.Close()
			if opts.SampleRate == 0 {
				opts.SampleRate = cfg.SampleRate
			}
			ds, err := fixture.Generate(opts)
			if err != nil {
				return err
			}
			if err := pipeline.Seed(cmd.Context(), svc.Store(), ds); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			fmt.Fprintf(a.stdout, "seeded %d experiments, %d recordings, %d pulse responses\n",
				len(ds.Experiments), len(ds.Recordings), len(ds.PulseResponses))
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.Experiments, "experiments", fixture.Defaults.Experiments, "experiments to generate")
	f.IntVar(&opts.Channels, "channels", fixture.Defaults.Channels, "channels per experiment")
	f.IntVar(&opts.RecordingsPerChannel, "recordings", fixture.Defaults.RecordingsPerChannel, "recordings per channel")
	f.IntVar(&opts.PulsesPerRecording, "pulses", fixture.Defaults.PulsesPerRecording, "stimulus pulses per recording")
	f.Uint64Var(&opts.Seed, "seed", fixture.Defaults.Seed, "random seed")
	return cmd
}
