package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ggonzalez94/defi-keeper/internal/cache"
	"github.com/ggonzalez94/defi-keeper/internal/config"
	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/httpx"
	"github.com/ggonzalez94/defi-keeper/internal/logging"
	"github.com/ggonzalez94/defi-keeper/internal/metrics"
	"github.com/ggonzalez94/defi-keeper/internal/out"
	"github.com/ggonzalez94/defi-keeper/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	// ctx is the parent of every command context. Run replaces it with a
	// signal-aware context when nil.
	ctx  context.Context
	dial func(ctx context.Context, rpcURL string) (chainClient, error)
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	log         *zap.Logger
	metrics     *metrics.Metrics
	http        *httpx.Client
	cache       *cache.Store
	closers     []func()
	lastCommand string
	lastCycle   int
}

func (r *Runner) Run(args []string) int {
	ctx := r.ctx
	if ctx == nil {
		var stop context.CancelFunc
		ctx, stop = notifyContext()
		defer stop()
	}

	state := &runtimeState{runner: r}
	defer state.close()
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.ExecuteContext(ctx))
	if err == nil {
		return 0
	}
	state.renderError(err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Settle automation tasks and rebalance USDC across chains and lending protocols",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s.lastCommand = trimRootPath(cmd.CommandPath())
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return err
			}
			s.settings = settings
			if err := settings.ValidateFor(cmd.Name()); err != nil {
				return err
			}

			if s.log == nil {
				logger, err := logging.New(logging.Options{Level: settings.LogLevel, Format: settings.LogFormat, Writer: s.runner.stderr})
				if err != nil {
					return clierr.Wrap(clierr.CodeConfig, "build logger", err)
				}
				s.log = logger.With(zap.String("command", s.lastCommand))
				s.closers = append(s.closers, func() { _ = logger.Sync() })
			}
			if s.metrics == nil {
				s.metrics = metrics.New()
			}
			if s.http == nil {
				s.http = httpx.New(settings.Timeout, settings.Retries, s.log)
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.EnvFile, "env-file", "", "Path to a .env file (default ./.env when present)")
	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&s.flags.LogFormat, "log-format", "", "Log format (console|json)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Backend request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per backend request")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable the yield response cache")
	cmd.PersistentFlags().StringVar(&s.flags.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(s.newSettleCommand())
	cmd.AddCommand(s.newBalanceCommand())
	cmd.AddCommand(s.newYieldCommand())
	cmd.AddCommand(s.newSwapCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print keeper version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

// openCache returns the yield response cache: file-backed when a path is
// configured, in-memory otherwise, and nil when caching is disabled.
func (s *runtimeState) openCache() (*cache.Store, error) {
	if !s.settings.CacheEnabled {
		return nil, nil
	}
	if s.cache != nil {
		return s.cache, nil
	}
	var (
		store *cache.Store
		err   error
	)
	if s.settings.CachePath != "" {
		store, err = cache.Open(s.settings.CachePath, s.settings.CacheLockPath)
	} else {
		store, err = cache.OpenMemory()
	}
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open cache", err)
	}
	s.cache = store
	s.closers = append(s.closers, func() { _ = store.Close() })
	return store, nil
}

func (s *runtimeState) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *runtimeState) renderError(err error) {
	command := s.lastCommand
	if command == "" {
		command = version.CLIName
	}
	mode := s.settings.OutputMode
	if mode == "" {
		mode = "json"
		if s.flags.Plain && !s.flags.JSON {
			mode = "plain"
		}
	}
	_ = out.Render(s.runner.stderr, out.Failure(command, s.lastCycle, err), mode)
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}
