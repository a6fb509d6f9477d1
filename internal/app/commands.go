package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ggonzalez94/defi-keeper/internal/amount"
	"github.com/ggonzalez94/defi-keeper/internal/chain"
	"github.com/ggonzalez94/defi-keeper/internal/decision"
	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
	"github.com/ggonzalez94/defi-keeper/internal/providers/console"
	"github.com/ggonzalez94/defi-keeper/internal/providers/enso"
	"github.com/ggonzalez94/defi-keeper/internal/providers/openai"
	"github.com/ggonzalez94/defi-keeper/internal/rebalance"
	"github.com/ggonzalez94/defi-keeper/internal/registry"
	"github.com/ggonzalez94/defi-keeper/internal/settlement"
	"github.com/ggonzalez94/defi-keeper/internal/signer"
)

// chainClient is a chain reader holding an RPC connection.
type chainClient interface {
	providers.ChainReader
	Close()
}

func dialRPC(ctx context.Context, rpcURL string) (chainClient, error) {
	return chain.Dial(ctx, rpcURL)
}

// pipeline is the build, authorize and submit path shared by settlement and
// rebalance execution.
type pipeline struct {
	backend    *console.Client
	builder    *settlement.Builder
	authorizer *settlement.Authorizer
	submitter  *settlement.Submitter
}

func (s *runtimeState) newPipeline() (*pipeline, error) {
	key, err := signer.NewLocalSignerFromEnv(s.settings.SignerKeySource)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load executor key", err)
	}
	backend := console.New(s.http, s.settings.ConsoleBaseURL, s.settings.ConsoleAPIKey)
	s.log.Info("executor loaded", zap.String("executor", key.Address().Hex()))
	return &pipeline{
		backend:    backend,
		builder:    settlement.NewBuilder(backend, common.HexToAddress(s.settings.MultiSendAddress)),
		authorizer: settlement.NewAuthorizer(backend, key, common.HexToAddress(s.settings.ExecutorPlugin)),
		submitter: settlement.NewSubmitter(backend, settlement.SubmitterConfig{
			RegistryID:  s.settings.RegistryID,
			Interval:    s.settings.StatusInterval,
			MaxAttempts: s.settings.StatusMaxAttempts,
			Deadline:    s.settings.StatusDeadline,
		}, s.log),
	}, nil
}

// dialChecked connects to chainID's RPC and verifies the node serves that
// chain.
func (s *runtimeState) dialChecked(ctx context.Context, chainID int64) (chainClient, error) {
	rpcURL, err := s.settings.RPCURL(chainID)
	if err != nil {
		return nil, err
	}
	dial := s.runner.dial
	if dial == nil {
		dial = dialRPC
	}
	client, err := dial(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, client.Close)
	if err := settlement.CheckNetwork(ctx, client, chainID); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *runtimeState) newGate() (*decision.Gate, error) {
	oracle, err := openai.New(s.http, openai.Config{
		APIKey:  s.settings.OracleAPIKey,
		BaseURL: s.settings.OracleBaseURL,
		Model:   s.settings.OracleModel,
	})
	if err != nil {
		return nil, err
	}
	return decision.NewGate(oracle, decision.Config{
		Timeout:       s.settings.OracleTimeout,
		MinConfidence: decimal.NewNullDecimal(s.settings.OracleMinConfidence),
	}, s.metrics, s.log), nil
}

func (s *runtimeState) newYieldSource() (*enso.Client, error) {
	store, err := s.openCache()
	if err != nil {
		return nil, err
	}
	return enso.New(s.http, store, enso.Config{
		APIKey:   s.settings.EnsoAPIKey,
		BaseURL:  s.settings.EnsoBaseURL,
		CacheTTL: s.settings.CacheTTL,
		MaxStale: s.settings.MaxStale,
	}), nil
}

func (s *runtimeState) newExecutor(p *pipeline, yields providers.YieldSource) *rebalance.Executor {
	return rebalance.NewExecutor(rebalance.ExecutorConfig{
		Account:           s.settings.Account,
		BridgeSlippage:    s.settings.BridgeSlippage,
		SwapSlippage:      s.settings.SwapSlippage,
		BundleSlippageBps: s.settings.BundleSlippage,
		Concurrency:       s.settings.ReadConcurrency,
		StatusInterval:    s.settings.BridgeStatusPoll,
		StatusDeadline:    s.settings.BridgeStatusWindow,
	}, p.backend, yields, p.builder, p.authorizer, p.submitter, s.metrics, s.log)
}

func addLoopFlags(cmd *cobra.Command, opts *loopOptions) {
	cmd.Flags().BoolVar(&opts.once, "once", false, "Run a single cycle and exit")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "Wait between cycles (default from config)")
}

func (o loopOptions) withDefault(d time.Duration) loopOptions {
	if o.interval <= 0 {
		o.interval = d
	}
	return o
}

func (s *runtimeState) newSettleCommand() *cobra.Command {
	var opts loopOptions
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle pending subscription transfer tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reader, err := s.dialChecked(ctx, s.settings.SettleChainID)
			if err != nil {
				return err
			}
			p, err := s.newPipeline()
			if err != nil {
				return err
			}
			settler := settlement.NewSettler(settlement.Config{
				RegistryID:    s.settings.RegistryID,
				ChainID:       s.settings.SettleChainID,
				Token:         s.settings.SettleToken,
				TokenDecimals: s.settings.TokenDecimals,
				PageSize:      s.settings.TaskPageSize,
				MaxPages:      s.settings.MaxTaskPages,
			}, p.backend, reader, p.builder, p.authorizer, p.submitter, s.metrics, s.log)
			return s.runLoop(ctx, s.lastCommand, opts.withDefault(s.settings.SettleInterval), settler.RunCycle)
		},
	}
	addLoopFlags(cmd, &opts)
	return cmd
}

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	var opts loopOptions
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Keep USDC evenly spread across chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			readers := make(map[int64]providers.ChainReader, len(s.settings.RebalanceChains))
			for _, c := range s.settings.RebalanceChains {
				reader, err := s.dialChecked(ctx, c.ID)
				if err != nil {
					return err
				}
				readers[c.ID] = reader
			}
			p, err := s.newPipeline()
			if err != nil {
				return err
			}
			gate, err := s.newGate()
			if err != nil {
				return err
			}
			yields, err := s.newYieldSource()
			if err != nil {
				return err
			}
			balancer := rebalance.NewBalancer(rebalance.BalancerConfig{
				Account:          s.settings.Account,
				Chains:           s.settings.RebalanceChains,
				ThresholdPercent: s.settings.ThresholdPercent,
				ReadConcurrency:  s.settings.ReadConcurrency,
				TokenDecimals:    s.settings.TokenDecimals,
			}, readers, gate, s.newExecutor(p, yields), s.metrics, s.log)
			return s.runLoop(ctx, s.lastCommand, opts.withDefault(s.settings.BalanceInterval), balancer.RunCycle)
		},
	}
	addLoopFlags(cmd, &opts)
	return cmd
}

func (s *runtimeState) newYieldCommand() *cobra.Command {
	var opts loopOptions
	cmd := &cobra.Command{
		Use:   "yield",
		Short: "Move lending positions to the best-yielding protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := s.newPipeline()
			if err != nil {
				return err
			}
			gate, err := s.newGate()
			if err != nil {
				return err
			}
			yields, err := s.newYieldSource()
			if err != nil {
				return err
			}
			optimizer := rebalance.NewOptimizer(rebalance.OptimizerConfig{
				Account:          s.settings.Account,
				ChainID:          s.settings.SettleChainID,
				Protocols:        s.settings.Protocols,
				MinAPYDifference: s.settings.MinAPYDifference,
				Threshold:        s.settings.YieldThreshold,
				ReadConcurrency:  s.settings.ReadConcurrency,
				TokenDecimals:    s.settings.TokenDecimals,
			}, yields, gate, s.newExecutor(p, yields), s.metrics, s.log)
			return s.runLoop(ctx, s.lastCommand, opts.withDefault(s.settings.YieldInterval), optimizer.RunCycle)
		},
	}
	addLoopFlags(cmd, &opts)
	return cmd
}

type swapOptions struct {
	chain    string
	tokenIn  string
	tokenOut string
	amount   string
	decimals int
	slippage int64
}

// resolveChainID accepts a registry chain name or a numeric chain id.
func resolveChainID(input string) (int64, error) {
	if c, ok := registry.ChainByName(input); ok {
		return c.ID, nil
	}
	id, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
	if err != nil || id <= 0 {
		return 0, clierr.New(clierr.CodeUsage, "unknown chain "+strconv.Quote(input))
	}
	return id, nil
}

func (o swapOptions) request(defaultChain int64) (providers.SwapRouteRequest, error) {
	chainID := defaultChain
	if strings.TrimSpace(o.chain) != "" {
		id, err := resolveChainID(o.chain)
		if err != nil {
			return providers.SwapRouteRequest{}, err
		}
		chainID = id
	}
	if !common.IsHexAddress(o.tokenIn) || !common.IsHexAddress(o.tokenOut) {
		return providers.SwapRouteRequest{}, clierr.New(clierr.CodeUsage, "--token-in and --token-out must be hex addresses")
	}
	if strings.EqualFold(o.tokenIn, o.tokenOut) {
		return providers.SwapRouteRequest{}, clierr.New(clierr.CodeUsage, "--token-in and --token-out must differ")
	}
	n, err := amount.Parse(o.amount, o.decimals)
	if err != nil {
		return providers.SwapRouteRequest{}, clierr.Wrap(clierr.CodeUsage, "--amount", err)
	}
	if n.Sign() <= 0 {
		return providers.SwapRouteRequest{}, clierr.New(clierr.CodeUsage, "--amount must be positive")
	}
	return providers.SwapRouteRequest{
		ChainID:  chainID,
		TokenIn:  common.HexToAddress(o.tokenIn).Hex(),
		TokenOut: common.HexToAddress(o.tokenOut).Hex(),
		AmountIn: n.String(),
		Slippage: o.slippage,
	}, nil
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	var opts swapOptions
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap tokens on one chain through the best quoted route",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req, err := opts.request(s.settings.SettleChainID)
			if err != nil {
				return err
			}
			p, err := s.newPipeline()
			if err != nil {
				return err
			}
			executor := s.newExecutor(p, nil)
			id := uuid.NewString()
			return s.runLoop(ctx, s.lastCommand, loopOptions{once: true}, func(ctx context.Context, cycle int) (model.CycleReport, error) {
				report := model.CycleReport{Loop: "swap", Cycle: cycle, StartedAt: time.Now().UTC()}
				report.Outcomes = []model.TaskOutcome{executor.Swap(ctx, id, req)}
				report.Duration = time.Since(report.StartedAt)
				return report, nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.chain, "chain", "", "Chain name or id (default settle chain)")
	cmd.Flags().StringVar(&opts.tokenIn, "token-in", "", "Token to sell")
	cmd.Flags().StringVar(&opts.tokenOut, "token-out", "", "Token to buy")
	cmd.Flags().StringVar(&opts.amount, "amount", "", "Amount in base units, or a decimal scaled by --decimals")
	cmd.Flags().IntVar(&opts.decimals, "decimals", 6, "Decimals of --token-in for decimal amounts")
	cmd.Flags().Int64Var(&opts.slippage, "slippage", 0, "Slippage percent (default from config)")
	_ = cmd.MarkFlagRequired("token-in")
	_ = cmd.MarkFlagRequired("token-out")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
