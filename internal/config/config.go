package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/defi-keeper/internal/amount"
	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/registry"
)

type GlobalFlags struct {
	ConfigPath  string
	EnvFile     string
	JSON        bool
	Plain       bool
	LogLevel    string
	LogFormat   string
	Timeout     string
	Retries     int
	NoCache     bool
	MetricsAddr string
}

type Settings struct {
	OutputMode  string
	LogLevel    string
	LogFormat   string
	Timeout     time.Duration
	Retries     int
	MetricsAddr string

	CacheEnabled  bool
	CachePath     string
	CacheLockPath string
	CacheTTL      time.Duration
	MaxStale      time.Duration

	ConsoleBaseURL   string
	ConsoleAPIKey    string
	RegistryID       string
	ExecutorPlugin   string
	MultiSendAddress string
	SignerKeySource  string

	SettleChainID     int64
	SettleToken       string
	TokenDecimals     int
	TaskPageSize      int
	MaxTaskPages      int
	SettleInterval    time.Duration
	StatusInterval    time.Duration
	StatusMaxAttempts int
	StatusDeadline    time.Duration

	Account            string
	RebalanceChains    []registry.Chain
	RPCURLs            map[int64]string
	ThresholdPercent   int64
	ReadConcurrency    int
	BridgeSlippage     int64
	SwapSlippage       int64
	BalanceInterval    time.Duration
	BridgeStatusPoll   time.Duration
	BridgeStatusWindow time.Duration

	EnsoBaseURL      string
	EnsoAPIKey       string
	Protocols        []registry.Protocol
	MinAPYDifference decimal.Decimal
	YieldThreshold   *big.Int
	BundleSlippage   int64
	YieldInterval    time.Duration

	OracleBaseURL       string
	OracleAPIKey        string
	OracleModel         string
	OracleTimeout       time.Duration
	OracleMinConfidence decimal.Decimal
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Log     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		TTL      string `yaml:"ttl"`
		MaxStale string `yaml:"max_stale"`
	} `yaml:"cache"`
	Console struct {
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
		Registry  string `yaml:"registry_id"`
		Plugin    string `yaml:"executor_plugin"`
		MultiSend string `yaml:"multisend"`
		KeySource string `yaml:"key_source"`
	} `yaml:"console"`
	Settle struct {
		ChainID           int64  `yaml:"chain_id"`
		Token             string `yaml:"token"`
		TokenDecimals     *int   `yaml:"token_decimals"`
		PageSize          int    `yaml:"page_size"`
		MaxTaskPages      int    `yaml:"max_task_pages"`
		Interval          string `yaml:"interval"`
		StatusInterval    string `yaml:"status_interval"`
		StatusMaxAttempts int    `yaml:"status_max_attempts"`
		StatusDeadline    string `yaml:"status_deadline"`
	} `yaml:"settle"`
	Rebalance struct {
		Account          string           `yaml:"account"`
		Chains           []string         `yaml:"chains"`
		RPCURLs          map[int64]string `yaml:"rpc_urls"`
		ThresholdPercent *int64           `yaml:"threshold_percent"`
		ReadConcurrency  int              `yaml:"read_concurrency"`
		BridgeSlippage   int64            `yaml:"bridge_slippage"`
		SwapSlippage     int64            `yaml:"swap_slippage"`
		Interval         string           `yaml:"interval"`
		StatusInterval   string           `yaml:"status_interval"`
		StatusDeadline   string           `yaml:"status_deadline"`
	} `yaml:"rebalance"`
	Yield struct {
		BaseURL          string   `yaml:"base_url"`
		APIKey           string   `yaml:"api_key"`
		APIKeyEnv        string   `yaml:"api_key_env"`
		Protocols        []string `yaml:"protocols"`
		MinAPYDifference string   `yaml:"min_apy_difference"`
		Threshold        string   `yaml:"rebalance_threshold"`
		SlippageBps      int64    `yaml:"slippage_bps"`
		Interval         string   `yaml:"interval"`
	} `yaml:"yield"`
	Oracle struct {
		BaseURL       string `yaml:"base_url"`
		APIKey        string `yaml:"api_key"`
		APIKeyEnv     string `yaml:"api_key_env"`
		Model         string `yaml:"model"`
		Timeout       string `yaml:"timeout"`
		MinConfidence string `yaml:"min_confidence"`
	} `yaml:"oracle"`
}

// Load resolves settings from defaults, the YAML file, a .env file, KEEPER_*
// env and flags, in increasing precedence.
func Load(flags GlobalFlags) (Settings, error) {
	settings := defaultSettings()

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}
	if err := loadDotEnv(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}
	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.CachePath != "" && settings.CacheLockPath == "" {
		settings.CacheLockPath = strings.TrimSuffix(settings.CachePath, filepath.Ext(settings.CachePath)) + ".lock"
	}
	return settings, nil
}

func defaultSettings() Settings {
	base, _ := registry.ChainByID(registry.BaseChainID)
	return Settings{
		OutputMode:          "json",
		LogLevel:            "info",
		LogFormat:           "console",
		Timeout:             10 * time.Second,
		Retries:             2,
		CacheEnabled:        true,
		CacheTTL:            5 * time.Minute,
		MaxStale:            15 * time.Minute,
		MultiSendAddress:    registry.MultiSendCallOnlyAddress,
		SignerKeySource:     "auto",
		SettleChainID:       registry.BaseChainID,
		SettleToken:         base.USDC,
		TokenDecimals:       6,
		TaskPageSize:        10,
		MaxTaskPages:        10,
		SettleInterval:      time.Minute,
		StatusInterval:      5 * time.Second,
		StatusDeadline:      10 * time.Minute,
		RebalanceChains:     registry.Chains(),
		RPCURLs:             map[int64]string{},
		ThresholdPercent:    15,
		ReadConcurrency:     4,
		BridgeSlippage:      1,
		SwapSlippage:        1,
		BalanceInterval:     5 * time.Minute,
		BridgeStatusPoll:    10 * time.Second,
		BridgeStatusWindow:  30 * time.Minute,
		EnsoBaseURL:         registry.EnsoBaseURL,
		Protocols:           registry.Protocols(),
		MinAPYDifference:    decimal.RequireFromString("0.5"),
		YieldThreshold:      big.NewInt(5_000_000),
		BundleSlippage:      100,
		YieldInterval:       5 * time.Minute,
		OracleBaseURL:       registry.OpenAIBaseURL,
		OracleModel:         "gpt-4o-mini",
		OracleTimeout:       30 * time.Second,
		OracleMinConfidence: decimal.RequireFromString("0.5"),
	}
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", clierr.Wrap(clierr.CodeConfig, "resolve home directory", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "keeper", "config.yaml"), nil
}

// loadDotEnv reads path (or ./.env when empty) without overriding variables
// that are already set. A missing default file is not an error.
func loadDotEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return clierr.Wrap(clierr.CodeConfig, "read env file", err)
	}
	if err := godotenv.Load(path); err != nil {
		return clierr.Wrap(clierr.CodeConfig, "parse env file", err)
	}
	return nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return clierr.Wrap(clierr.CodeConfig, "read config", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return clierr.Wrap(clierr.CodeConfig, "parse config yaml", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	setString(&settings.LogLevel, cfg.Log.Level)
	setString(&settings.LogFormat, cfg.Log.Format)
	setString(&settings.MetricsAddr, cfg.Metrics.Addr)
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	setString(&settings.CachePath, cfg.Cache.Path)
	setString(&settings.CacheLockPath, cfg.Cache.LockPath)

	setString(&settings.ConsoleBaseURL, cfg.Console.BaseURL)
	setString(&settings.ConsoleAPIKey, cfg.Console.APIKey)
	if cfg.Console.APIKeyEnv != "" {
		settings.ConsoleAPIKey = os.Getenv(cfg.Console.APIKeyEnv)
	}
	setString(&settings.RegistryID, cfg.Console.Registry)
	setString(&settings.ExecutorPlugin, cfg.Console.Plugin)
	setString(&settings.MultiSendAddress, cfg.Console.MultiSend)
	setString(&settings.SignerKeySource, cfg.Console.KeySource)

	if cfg.Settle.ChainID != 0 {
		settings.SettleChainID = cfg.Settle.ChainID
	}
	setString(&settings.SettleToken, cfg.Settle.Token)
	if cfg.Settle.TokenDecimals != nil {
		settings.TokenDecimals = *cfg.Settle.TokenDecimals
	}
	setInt(&settings.TaskPageSize, cfg.Settle.PageSize)
	setInt(&settings.MaxTaskPages, cfg.Settle.MaxTaskPages)
	setInt(&settings.StatusMaxAttempts, cfg.Settle.StatusMaxAttempts)

	setString(&settings.Account, cfg.Rebalance.Account)
	if len(cfg.Rebalance.Chains) > 0 {
		chains, err := parseChains(cfg.Rebalance.Chains)
		if err != nil {
			return err
		}
		settings.RebalanceChains = chains
	}
	for id, u := range cfg.Rebalance.RPCURLs {
		settings.RPCURLs[id] = u
	}
	if cfg.Rebalance.ThresholdPercent != nil {
		settings.ThresholdPercent = *cfg.Rebalance.ThresholdPercent
	}
	setInt(&settings.ReadConcurrency, cfg.Rebalance.ReadConcurrency)
	if cfg.Rebalance.BridgeSlippage != 0 {
		settings.BridgeSlippage = cfg.Rebalance.BridgeSlippage
	}
	if cfg.Rebalance.SwapSlippage != 0 {
		settings.SwapSlippage = cfg.Rebalance.SwapSlippage
	}

	setString(&settings.EnsoBaseURL, cfg.Yield.BaseURL)
	setString(&settings.EnsoAPIKey, cfg.Yield.APIKey)
	if cfg.Yield.APIKeyEnv != "" {
		settings.EnsoAPIKey = os.Getenv(cfg.Yield.APIKeyEnv)
	}
	if len(cfg.Yield.Protocols) > 0 {
		protocols, err := parseProtocols(cfg.Yield.Protocols)
		if err != nil {
			return err
		}
		settings.Protocols = protocols
	}
	if cfg.Yield.SlippageBps != 0 {
		settings.BundleSlippage = cfg.Yield.SlippageBps
	}

	setString(&settings.OracleBaseURL, cfg.Oracle.BaseURL)
	setString(&settings.OracleAPIKey, cfg.Oracle.APIKey)
	if cfg.Oracle.APIKeyEnv != "" {
		settings.OracleAPIKey = os.Getenv(cfg.Oracle.APIKeyEnv)
	}
	setString(&settings.OracleModel, cfg.Oracle.Model)

	durations := []struct {
		name  string
		raw   string
		field *time.Duration
	}{
		{"timeout", cfg.Timeout, &settings.Timeout},
		{"cache.ttl", cfg.Cache.TTL, &settings.CacheTTL},
		{"cache.max_stale", cfg.Cache.MaxStale, &settings.MaxStale},
		{"settle.interval", cfg.Settle.Interval, &settings.SettleInterval},
		{"settle.status_interval", cfg.Settle.StatusInterval, &settings.StatusInterval},
		{"settle.status_deadline", cfg.Settle.StatusDeadline, &settings.StatusDeadline},
		{"rebalance.interval", cfg.Rebalance.Interval, &settings.BalanceInterval},
		{"rebalance.status_interval", cfg.Rebalance.StatusInterval, &settings.BridgeStatusPoll},
		{"rebalance.status_deadline", cfg.Rebalance.StatusDeadline, &settings.BridgeStatusWindow},
		{"yield.interval", cfg.Yield.Interval, &settings.YieldInterval},
		{"oracle.timeout", cfg.Oracle.Timeout, &settings.OracleTimeout},
	}
	for _, d := range durations {
		if err := setDuration(d.field, d.raw, "config "+d.name); err != nil {
			return err
		}
	}
	if err := setDecimal(&settings.MinAPYDifference, cfg.Yield.MinAPYDifference, "config yield.min_apy_difference"); err != nil {
		return err
	}
	if err := setDecimal(&settings.OracleMinConfidence, cfg.Oracle.MinConfidence, "config oracle.min_confidence"); err != nil {
		return err
	}
	if err := setAmount(&settings.YieldThreshold, cfg.Yield.Threshold, settings.TokenDecimals, "config yield.rebalance_threshold"); err != nil {
		return err
	}
	return nil
}

func applyEnv(settings *Settings) error {
	setString(&settings.OutputMode, strings.ToLower(os.Getenv("KEEPER_OUTPUT")))
	setString(&settings.LogLevel, os.Getenv("KEEPER_LOG_LEVEL"))
	setString(&settings.LogFormat, os.Getenv("KEEPER_LOG_FORMAT"))
	setString(&settings.MetricsAddr, os.Getenv("KEEPER_METRICS_ADDR"))
	if v := os.Getenv("KEEPER_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("KEEPER_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	setString(&settings.CachePath, os.Getenv("KEEPER_CACHE_PATH"))
	setString(&settings.CacheLockPath, os.Getenv("KEEPER_CACHE_LOCK_PATH"))

	setString(&settings.ConsoleBaseURL, os.Getenv("KEEPER_CONSOLE_BASE_URL"))
	setString(&settings.ConsoleAPIKey, os.Getenv("KEEPER_CONSOLE_API_KEY"))
	setString(&settings.RegistryID, os.Getenv("KEEPER_REGISTRY_ID"))
	setString(&settings.ExecutorPlugin, os.Getenv("KEEPER_EXECUTOR_PLUGIN"))
	setString(&settings.MultiSendAddress, os.Getenv("KEEPER_MULTISEND_ADDRESS"))
	setString(&settings.SignerKeySource, os.Getenv("KEEPER_KEY_SOURCE"))
	setString(&settings.SettleToken, os.Getenv("KEEPER_SETTLE_TOKEN"))
	if v := os.Getenv("KEEPER_SETTLE_CHAIN_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return clierr.Wrap(clierr.CodeConfig, "parse KEEPER_SETTLE_CHAIN_ID", err)
		}
		settings.SettleChainID = n
	}

	setString(&settings.Account, os.Getenv("KEEPER_ACCOUNT"))
	if v := os.Getenv("KEEPER_CHAINS"); v != "" {
		chains, err := parseChains(splitList(v))
		if err != nil {
			return err
		}
		settings.RebalanceChains = chains
	}
	for _, c := range registry.Chains() {
		if v := os.Getenv(fmt.Sprintf("KEEPER_RPC_URL_%d", c.ID)); v != "" {
			settings.RPCURLs[c.ID] = v
		}
	}

	setString(&settings.EnsoBaseURL, os.Getenv("KEEPER_ENSO_BASE_URL"))
	setString(&settings.EnsoAPIKey, os.Getenv("KEEPER_ENSO_API_KEY"))
	if v := os.Getenv("KEEPER_PROTOCOLS"); v != "" {
		protocols, err := parseProtocols(splitList(v))
		if err != nil {
			return err
		}
		settings.Protocols = protocols
	}
	if err := setDecimal(&settings.MinAPYDifference, os.Getenv("KEEPER_MIN_APY_DIFFERENCE"), "KEEPER_MIN_APY_DIFFERENCE"); err != nil {
		return err
	}
	if err := setAmount(&settings.YieldThreshold, os.Getenv("KEEPER_REBALANCE_THRESHOLD"), settings.TokenDecimals, "KEEPER_REBALANCE_THRESHOLD"); err != nil {
		return err
	}

	setString(&settings.OracleBaseURL, os.Getenv("KEEPER_OPENAI_BASE_URL"))
	setString(&settings.OracleAPIKey, os.Getenv("KEEPER_OPENAI_API_KEY"))
	setString(&settings.OracleModel, os.Getenv("KEEPER_OPENAI_MODEL"))

	if err := setDuration(&settings.Timeout, os.Getenv("KEEPER_TIMEOUT"), "KEEPER_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&settings.StatusDeadline, os.Getenv("KEEPER_STATUS_DEADLINE"), "KEEPER_STATUS_DEADLINE"); err != nil {
		return err
	}
	return setDuration(&settings.OracleTimeout, os.Getenv("KEEPER_ORACLE_TIMEOUT"), "KEEPER_ORACLE_TIMEOUT")
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return clierr.New(clierr.CodeUsage, "cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	setString(&settings.LogLevel, flags.LogLevel)
	setString(&settings.LogFormat, flags.LogFormat)
	setString(&settings.MetricsAddr, flags.MetricsAddr)
	if err := setDuration(&settings.Timeout, flags.Timeout, "parse --timeout"); err != nil {
		return err
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return clierr.New(clierr.CodeUsage, "output must be json or plain")
	}
	return nil
}

// ValidateFor reports the first required setting that command cannot run
// without.
func (s Settings) ValidateFor(command string) error {
	var missing []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	requireBaseURL := func(name, value string) {
		if strings.TrimSpace(value) != "" && !registry.IsAllowedBaseURL(value) {
			missing = append(missing, name+" (https required)")
		}
	}

	switch command {
	case "settle", "balance", "yield", "swap":
		require("console.base_url", s.ConsoleBaseURL)
		require("console.api_key", s.ConsoleAPIKey)
		require("console.registry_id", s.RegistryID)
		require("console.executor_plugin", s.ExecutorPlugin)
		requireBaseURL("console.base_url", s.ConsoleBaseURL)
	default:
		return nil
	}
	if s.ExecutorPlugin != "" && !common.IsHexAddress(s.ExecutorPlugin) {
		missing = append(missing, "console.executor_plugin (hex address)")
	}
	if !common.IsHexAddress(s.MultiSendAddress) {
		missing = append(missing, "console.multisend (hex address)")
	}

	switch command {
	case "settle":
		if !common.IsHexAddress(s.SettleToken) {
			missing = append(missing, "settle.token (hex address)")
		}
	case "swap":
		if !common.IsHexAddress(s.Account) {
			missing = append(missing, "rebalance.account (hex address)")
		}
	case "balance", "yield":
		if !common.IsHexAddress(s.Account) {
			missing = append(missing, "rebalance.account (hex address)")
		}
		require("oracle.api_key", s.OracleAPIKey)
		requireBaseURL("oracle.base_url", s.OracleBaseURL)
		if s.OracleMinConfidence.IsNegative() || s.OracleMinConfidence.GreaterThan(decimal.NewFromInt(1)) {
			missing = append(missing, "oracle.min_confidence (between 0 and 1)")
		}
	}
	if command == "balance" {
		if len(s.RebalanceChains) < 2 {
			missing = append(missing, "rebalance.chains (at least two)")
		}
		if s.ThresholdPercent <= 0 || s.ThresholdPercent >= 100 {
			missing = append(missing, "rebalance.threshold_percent (between 0 and 100)")
		}
	}
	if command == "yield" {
		if len(s.Protocols) == 0 {
			missing = append(missing, "yield.protocols")
		}
		requireBaseURL("yield.base_url", s.EnsoBaseURL)
	}

	if len(missing) > 0 {
		return clierr.New(clierr.CodeConfig, fmt.Sprintf("%s: missing or invalid %s", command, strings.Join(missing, ", ")))
	}
	return nil
}

// RPCURL returns the configured or default RPC endpoint for chainID.
func (s Settings) RPCURL(chainID int64) (string, error) {
	url, err := registry.ResolveRPCURL(s.RPCURLs, chainID)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeConfig, "resolve rpc url", err)
	}
	return url, nil
}

func parseChains(values []string) ([]registry.Chain, error) {
	out := make([]registry.Chain, 0, len(values))
	seen := map[int64]bool{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		var (
			c  registry.Chain
			ok bool
		)
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c, ok = registry.ChainByID(n)
		} else {
			c, ok = registry.ChainByName(v)
		}
		if !ok {
			return nil, clierr.New(clierr.CodeConfig, fmt.Sprintf("unknown chain %q", v))
		}
		if !seen[c.ID] {
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	return out, nil
}

func parseProtocols(values []string) ([]registry.Protocol, error) {
	selected, unknown := registry.SelectProtocols(values)
	if len(unknown) > 0 {
		return nil, clierr.New(clierr.CodeConfig, fmt.Sprintf("unknown protocols: %s", strings.Join(unknown, ", ")))
	}
	return selected, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, raw, name string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return clierr.Wrap(clierr.CodeConfig, name, err)
	}
	*dst = d
	return nil
}

func setDecimal(dst *decimal.Decimal, raw, name string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return clierr.Wrap(clierr.CodeConfig, name, err)
	}
	*dst = d
	return nil
}

// setAmount accepts base units ("5000000") or a token amount ("5.0").
func setAmount(dst **big.Int, raw string, decimals int, name string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	n, err := amount.Parse(raw, decimals)
	if err != nil {
		return clierr.Wrap(clierr.CodeConfig, name, err)
	}
	*dst = n
	return nil
}
