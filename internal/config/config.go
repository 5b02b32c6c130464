package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"wallet-score/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig              `mapstructure:"app"`
	Logging    logging.Config         `mapstructure:"logging"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Redis      RedisConfig            `mapstructure:"redis"`
	Queue      QueueConfig            `mapstructure:"queue"`
	Server     ServerConfig           `mapstructure:"server"`
	Explorer   ExplorerConfig         `mapstructure:"explorer"`
	Chains     map[string]ChainConfig `mapstructure:"chains"`
	Pricing    PricingConfig          `mapstructure:"pricing"`
	Tokens     TokensConfig           `mapstructure:"tokens"`
	Swaps      SwapsConfig            `mapstructure:"swaps"`
	Lending    LendingConfig          `mapstructure:"lending"`
	Governance GovernanceConfig       `mapstructure:"governance"`
	Social     SocialConfig           `mapstructure:"social"`
	Risk       RiskConfig             `mapstructure:"risk"`
	Signer     SignerConfig           `mapstructure:"signer"`
	Scoring    ScoringConfig          `mapstructure:"scoring"`
	Scheduler  SchedulerConfig        `mapstructure:"scheduler"`
	Watch      WatchConfig            `mapstructure:"watch"`
	Alerting   AlertingConfig         `mapstructure:"alerting"`
	Export     ExportConfig           `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig backs the price cache and the shared token-balance limiter.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// QueueConfig configures scoring event publication.
type QueueConfig struct {
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExplorerConfig tunes pagination and retries against explorer APIs.
type ExplorerConfig struct {
	PageSize       int           `mapstructure:"page_size"`
	PageDelay      time.Duration `mapstructure:"page_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  uint          `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// ChainConfig describes one supported chain.
type ChainConfig struct {
	ChainID        uint64 `mapstructure:"chain_id"`
	ExplorerURL    string `mapstructure:"explorer_url"`
	APIKey         string `mapstructure:"api_key"`
	NativeSymbol   string `mapstructure:"native_symbol"`
	NativeDecimals int32  `mapstructure:"native_decimals"`
	PriceID        string `mapstructure:"price_id"`
	LlamaSlug      string `mapstructure:"llama_slug"`
	RPCURL         string `mapstructure:"rpc_url"`
	ENS            bool   `mapstructure:"ens"`
	ERC1155        bool   `mapstructure:"erc1155"`
	AavePool       string `mapstructure:"aave_pool"`
	SwapsSubgraph  string `mapstructure:"swaps_subgraph"`
	HapiNetwork    string `mapstructure:"hapi_network"`
	SBTFinance     string `mapstructure:"sbt_finance"`
	SBTToken       string `mapstructure:"sbt_token"`
}

// PricingConfig configures the USD price oracle.
type PricingConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Freshness      time.Duration `mapstructure:"freshness"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TokensConfig throttles per-contract balance lookups.
type TokensConfig struct {
	Delay      time.Duration `mapstructure:"delay"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
	MaxTokens  int           `mapstructure:"max_tokens"`
}

// SwapsConfig configures DEX pair discovery.
type SwapsConfig struct {
	DefaultFirst   int           `mapstructure:"default_first"`
	MaxFirst       int           `mapstructure:"max_first"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LendingConfig configures on-chain lending reads.
type LendingConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// GovernanceConfig configures the Snapshot hub client.
type GovernanceConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SocialConfig configures the CyberConnect client.
type SocialConfig struct {
	URL            string        `mapstructure:"url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ProviderConfig is a plain HTTP provider endpoint.
type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// RiskConfig configures the risk and sanctions providers.
type RiskConfig struct {
	Greysafe       ProviderConfig `mapstructure:"greysafe"`
	Chainalysis    ProviderConfig `mapstructure:"chainalysis"`
	Hapi           ProviderConfig `mapstructure:"hapi"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
}

// SignerConfig configures score attestations.
type SignerConfig struct {
	PrivateKey    string        `mapstructure:"private_key"`
	DomainName    string        `mapstructure:"domain_name"`
	DomainVersion string        `mapstructure:"domain_version"`
	Validity      time.Duration `mapstructure:"validity"`
}

// ScoringConfig holds the score weights by category.
type ScoringConfig struct {
	Weights map[string]float64 `mapstructure:"weights"`
}

// SchedulerConfig governs the watch loop cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	TickTimeout     time.Duration `mapstructure:"tick_timeout"`
}

// WatchConfig lists wallets re-scored by the watch loop, as "chain:address".
type WatchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	AlertDelta float64  `mapstructure:"alert_delta"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WALLETSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

var defaultChains = map[string]ChainConfig{
	"ethereum": {
		ChainID: 1, ExplorerURL: "https://api.etherscan.io/api", NativeSymbol: "ETH", NativeDecimals: 18,
		PriceID: "coingecko:ethereum", LlamaSlug: "ethereum", ENS: true,
		AavePool:      "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
		SwapsSubgraph: "https://api.thegraph.com/subgraphs/name/uniswap/uniswap-v2",
		HapiNetwork:   "ethereum",
	},
	"optimism": {
		ChainID: 10, ExplorerURL: "https://api-optimistic.etherscan.io/api", NativeSymbol: "ETH", NativeDecimals: 18,
		PriceID: "coingecko:ethereum", LlamaSlug: "optimism",
		AavePool: "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
	},
	"gnosis": {
		ChainID: 100, ExplorerURL: "https://api.gnosisscan.io/api", NativeSymbol: "XDAI", NativeDecimals: 18,
		PriceID: "coingecko:xdai", LlamaSlug: "xdai",
		AavePool: "0xb50201558B00496A145fE76f7424749556E326D8",
	},
	"polygon": {
		ChainID: 137, ExplorerURL: "https://api.polygonscan.com/api", NativeSymbol: "MATIC", NativeDecimals: 18,
		PriceID: "coingecko:matic-network", LlamaSlug: "polygon",
		AavePool:      "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
		SwapsSubgraph: "https://api.thegraph.com/subgraphs/name/sushiswap/matic-exchange",
		HapiNetwork:   "polygon",
	},
	"zksync": {
		ChainID: 324, ExplorerURL: "https://block-explorer-api.mainnet.zksync.io/api", NativeSymbol: "ETH", NativeDecimals: 18,
		PriceID: "coingecko:ethereum", LlamaSlug: "era",
	},
	"arbitrum": {
		ChainID: 42161, ExplorerURL: "https://api.arbiscan.io/api", NativeSymbol: "ETH", NativeDecimals: 18,
		PriceID: "coingecko:ethereum", LlamaSlug: "arbitrum",
		AavePool:    "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
		HapiNetwork: "arbitrum",
	},
}

// DefaultWeights are the score weights applied when none are configured.
var DefaultWeights = map[string]float64{
	"balance":      0.18,
	"age":          0.18,
	"transactions": 0.14,
	"stability":    0.10,
	"turnover":     0.10,
	"tokens":       0.08,
	"nft":          0.06,
	"contracts":    0.04,
	"lending":      0.04,
	"governance":   0.04,
	"social":       0.04,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "walletscore")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.service", "walletscore")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "walletscore:")

	v.SetDefault("queue.exchange", "walletscore.events")
	v.SetDefault("queue.routing_key", "scoring.updated")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.request_timeout", "4m")

	v.SetDefault("explorer.page_size", 10000)
	v.SetDefault("explorer.page_delay", "100ms")
	v.SetDefault("explorer.request_timeout", "30s")
	v.SetDefault("explorer.retry_attempts", 3)
	v.SetDefault("explorer.retry_delay", "1s")

	names := make([]string, 0, len(defaultChains))
	for name := range defaultChains {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := defaultChains[name]
		prefix := "chains." + name + "."
		v.SetDefault(prefix+"chain_id", c.ChainID)
		v.SetDefault(prefix+"explorer_url", c.ExplorerURL)
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"native_symbol", c.NativeSymbol)
		v.SetDefault(prefix+"native_decimals", c.NativeDecimals)
		v.SetDefault(prefix+"price_id", c.PriceID)
		v.SetDefault(prefix+"llama_slug", c.LlamaSlug)
		v.SetDefault(prefix+"rpc_url", "")
		v.SetDefault(prefix+"ens", c.ENS)
		v.SetDefault(prefix+"erc1155", name != "zksync")
		v.SetDefault(prefix+"aave_pool", c.AavePool)
		v.SetDefault(prefix+"swaps_subgraph", c.SwapsSubgraph)
		v.SetDefault(prefix+"hapi_network", c.HapiNetwork)
		v.SetDefault(prefix+"sbt_finance", "")
		v.SetDefault(prefix+"sbt_token", "")
	}

	v.SetDefault("pricing.base_url", "https://coins.llama.fi")
	v.SetDefault("pricing.freshness", "4h")
	v.SetDefault("pricing.cache_ttl", "5m")
	v.SetDefault("pricing.request_timeout", "10s")

	v.SetDefault("tokens.delay", "250ms")
	v.SetDefault("tokens.rate_limit", 5)
	v.SetDefault("tokens.rate_window", "1s")
	v.SetDefault("tokens.max_tokens", 100)

	v.SetDefault("swaps.default_first", 100)
	v.SetDefault("swaps.max_first", 1000)
	v.SetDefault("swaps.request_timeout", "20s")

	v.SetDefault("lending.request_timeout", "10s")

	v.SetDefault("governance.url", "https://hub.snapshot.org/graphql")
	v.SetDefault("governance.request_timeout", "15s")

	v.SetDefault("social.url", "https://api.cyberconnect.dev/graphql")
	v.SetDefault("social.request_timeout", "15s")

	v.SetDefault("risk.greysafe.base_url", "https://api.greysafe.com/api/v1")
	v.SetDefault("risk.chainalysis.base_url", "https://public.chainalysis.com/api/v1")
	v.SetDefault("risk.hapi.base_url", "https://research.hapi.one")
	v.SetDefault("risk.request_timeout", "10s")

	v.SetDefault("signer.domain_name", "WalletScore")
	v.SetDefault("signer.domain_version", "1")
	v.SetDefault("signer.validity", "1h")

	for k, w := range DefaultWeights {
		v.SetDefault("scoring.weights."+k, w)
	}

	v.SetDefault("scheduler.interval", "6h")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x7773636f))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.tick_timeout", "30m")

	v.SetDefault("watch.alert_delta", 0.05)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 600)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Explorer.PageSize <= 0 {
		return fmt.Errorf("explorer.page_size must be greater than zero")
	}
	if c.Explorer.PageDelay < 0 {
		return fmt.Errorf("explorer.page_delay cannot be negative")
	}
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	for name, chain := range c.Chains {
		if chain.ChainID == 0 {
			return fmt.Errorf("chains.%s.chain_id must be set", name)
		}
		if chain.ExplorerURL == "" {
			return fmt.Errorf("chains.%s.explorer_url must be set", name)
		}
		if chain.NativeDecimals < 0 {
			return fmt.Errorf("chains.%s.native_decimals cannot be negative", name)
		}
	}
	if c.Pricing.BaseURL == "" {
		return fmt.Errorf("pricing.base_url must be set")
	}
	if c.Tokens.Delay < 0 {
		return fmt.Errorf("tokens.delay cannot be negative")
	}
	if c.Swaps.MaxFirst > 0 && c.Swaps.DefaultFirst > c.Swaps.MaxFirst {
		return fmt.Errorf("swaps.default_first cannot exceed swaps.max_first")
	}
	for k, w := range c.Scoring.Weights {
		if w < 0 {
			return fmt.Errorf("scoring.weights.%s cannot be negative", k)
		}
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Watch.AlertDelta < 0 {
		return fmt.Errorf("watch.alert_delta cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ChainNames lists configured chains in a stable order.
func (c *Config) ChainNames() []string {
	names := make([]string, 0, len(c.Chains))
	for name := range c.Chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
