// Package cli implements the worksizing command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/me/worksizing/internal/config"
	"github.com/me/worksizing/internal/logging"
	"github.com/me/worksizing/internal/metrics"
	"github.com/me/worksizing/internal/scheduler"
	"github.com/spf13/cobra"
)

// rootOptions holds the flags of the root command. Search settings are bound
// to a SearchConfig so they can be layered over a config file.
type rootOptions struct {
	search     config.SearchConfig
	configPath string
	logFormat  string
	metrics    bool
}

// NewRootCmd creates the root cobra command for the worksizing CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{search: config.DefaultSearchConfig()}

	root := &cobra.Command{
		Use:   "worksizing <n>",
		Short: "Find the smallest multiple of 1..n-1 with a pool of block searches",
		Long: `worksizing searches for the smallest positive integer evenly divisible by
every integer from 1 to n-1. Candidates are split into blocks of block_size
that are searched concurrently by up to max_workers workers.

Examples:
  worksizing 20
  worksizing 20 -b 1000 -w 8 -v
  worksizing 20 --unordered --metrics
  worksizing serve --addr :8080`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts, args[0])
		},
	}

	f := root.Flags()
	f.Int64VarP(&opts.search.BlockSize, "block_size", "b", opts.search.BlockSize, "Size of a block distributed to a worker")
	f.IntVarP(&opts.search.MaxWorkers, "max_workers", "w", opts.search.MaxWorkers, "Number of concurrent workers")
	f.IntVarP(&opts.search.MaxJobs, "max_jobs", "j", opts.search.MaxJobs, "Max blocks outstanding at once (0 = max_workers)")
	f.Float64VarP(&opts.search.Timeout, "timeout", "t", opts.search.Timeout, "Seconds to wait before checking status")
	f.BoolVarP(&opts.search.Verbose, "verbose", "v", false, "Verbose log output")
	f.BoolVar(&opts.search.Unordered, "unordered", false, "Accept the first block to report instead of the smallest value")
	f.StringVar(&opts.search.Wait, "wait", opts.search.Wait, "Poll mode: first or all")
	f.Int64Var(&opts.search.Limit, "limit", 0, "Largest candidate to search (0 = unbounded)")
	f.StringVar(&opts.search.Deadline, "deadline", "", "Give up after this long, e.g. 30s (empty = never)")
	f.StringVar(&opts.search.Rule, "rule", "", "JavaScript divisor expression over n and i (default n % i == 0)")
	f.BoolVar(&opts.metrics, "metrics", false, "Print a run summary to stderr")

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML or JSON config file")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(newServeCmd(opts))

	return root
}

// searchFlags maps flag names to the SearchConfig field they set.
var searchFlags = map[string]func(dst *config.SearchConfig, src config.SearchConfig){
	"block_size":  func(d *config.SearchConfig, s config.SearchConfig) { d.BlockSize = s.BlockSize },
	"max_workers": func(d *config.SearchConfig, s config.SearchConfig) { d.MaxWorkers = s.MaxWorkers },
	"max_jobs":    func(d *config.SearchConfig, s config.SearchConfig) { d.MaxJobs = s.MaxJobs },
	"timeout":     func(d *config.SearchConfig, s config.SearchConfig) { d.Timeout = s.Timeout },
	"verbose":     func(d *config.SearchConfig, s config.SearchConfig) { d.Verbose = s.Verbose },
	"unordered":   func(d *config.SearchConfig, s config.SearchConfig) { d.Unordered = s.Unordered },
	"wait":        func(d *config.SearchConfig, s config.SearchConfig) { d.Wait = s.Wait },
	"limit":       func(d *config.SearchConfig, s config.SearchConfig) { d.Limit = s.Limit },
	"deadline":    func(d *config.SearchConfig, s config.SearchConfig) { d.Deadline = s.Deadline },
	"rule":        func(d *config.SearchConfig, s config.SearchConfig) { d.Rule = s.Rule },
}

// resolveSearch layers explicitly set flags over the config file, if any.
func resolveSearch(cmd *cobra.Command, opts *rootOptions) (config.SearchConfig, error) {
	if opts.configPath == "" {
		return opts.search, nil
	}
	fc, err := config.LoadFile(opts.configPath)
	if err != nil {
		return config.SearchConfig{}, err
	}
	cfg := fc.Search
	for name, apply := range searchFlags {
		if cmd.Flags().Changed(name) {
			apply(&cfg, opts.search)
		}
	}
	return cfg, nil
}

func runSearch(cmd *cobra.Command, opts *rootOptions, arg string) error {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid n %q: must be an integer", arg)
	}

	cfg, err := resolveSearch(cmd, opts)
	if err != nil {
		return err
	}
	rule, err := cfg.Prepare(n)
	if err != nil {
		return err
	}

	logger := logging.NewLoggerWithWriter(logging.LevelFor(cfg.Verbose), opts.logFormat, cmd.ErrOrStderr())
	logger.Debug("starting up",
		"n", n,
		"block_size", cfg.BlockSize,
		"max_workers", cfg.MaxWorkers,
		"max_jobs", cfg.ResolvedMaxJobs(),
		"timeout", cfg.Timeout)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if d, _ := cfg.DeadlineDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	mc := metrics.NewCollector(opts.metrics, nil)
	res, err := scheduler.NewLoop(cfg.SchedulerConfig(), rule, logger).Run(ctx, n, mc)
	printSummary(cmd, logger, mc)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Smallest Multiple Found: %d in %ss\n", res.Value, formatElapsed(res.Elapsed.Seconds()))
	return nil
}

func printSummary(cmd *cobra.Command, logger *slog.Logger, mc *metrics.Collector) {
	m := mc.Finalize()
	if m == nil {
		return
	}
	logger.Debug("run metrics collected", "blocks", len(m.Blocks))
	metrics.PrintSummary(cmd.ErrOrStderr(), m)
}
