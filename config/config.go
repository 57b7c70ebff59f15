package config

import (
	"time"

	"github.com/cockroachdb/errors"
	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"

	"interoprelay/types"
)

// Environment variables are INTEROP_<SECTION>_<NAME>, e.g. INTEROP_RELAY_PROOF_SOURCE
type Configuration struct {
	// Server config
	Server struct {
		ListenAddr     string `yaml:"listen_addr" envconfig:"LISTEN_ADDR"`
		UseSSL         bool   `yaml:"ssl" envconfig:"SSL"`
		StatusStore    string `yaml:"status_store" envconfig:"STATUS_STORE"` // memory or redis
		StatusTTL      int    `yaml:"status_ttl_sec" envconfig:"STATUS_TTL_SEC"`
		StatusCapacity int    `yaml:"status_capacity" envconfig:"STATUS_CAPACITY"`
		RedisPort      int    `yaml:"redis_port" envconfig:"REDIS_PORT"`
		RedisHost      string `yaml:"redis_host" envconfig:"REDIS_HOST"`
		Metrics        bool   `yaml:"metrics" envconfig:"METRICS"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" envconfig:"LEVEL"`
		Format string `yaml:"format" envconfig:"FORMAT"` // json, logfmt or console
	} `yaml:"log"`
	Relay  RelayConfig             `yaml:"relay"`
	Chains []types.ChainDescriptor `yaml:"chains" ignored:"true"`
}

type RelayConfig struct {
	HomeChainID      uint64 `yaml:"home_chain_id" envconfig:"HOME_CHAIN_ID"`
	WaitFinalization bool   `yaml:"wait_finalization" envconfig:"WAIT_FINALIZATION"`
	// placeholder reproduces the fixed demo proof, rpc polls zks_getL2ToL1LogProof
	ProofSource            string `yaml:"proof_source" envconfig:"PROOF_SOURCE"`
	ProofRetryInterval     int    `yaml:"proof_retry_interval_ms" envconfig:"PROOF_RETRY_INTERVAL_MS"`
	ProofRequestTimeout    int    `yaml:"proof_request_timeout_ms" envconfig:"PROOF_REQUEST_TIMEOUT_MS"`
	InteropHandlerAddress  string `yaml:"interop_handler_address" envconfig:"INTEROP_HANDLER_ADDRESS"`
	StandardTriggerAccount string `yaml:"standard_trigger_account" envconfig:"STANDARD_TRIGGER_ACCOUNT"`
	ConfirmationInterval   int    `yaml:"confirmation_interval_ms" envconfig:"CONFIRMATION_INTERVAL_MS"`
	StatusQueryInterval    int    `yaml:"status_query_interval_ms" envconfig:"STATUS_QUERY_INTERVAL_MS"`
	StatusQueryWindow      int    `yaml:"status_query_window_ms" envconfig:"STATUS_QUERY_WINDOW_MS"`
	MaxConcurrentFlows     int    `yaml:"max_concurrent_flows" envconfig:"MAX_CONCURRENT_FLOWS"` // 0 is unbounded
	LegacyHexChainIDs      bool   `yaml:"legacy_hex_chain_ids" envconfig:"LEGACY_HEX_CHAIN_IDS"`
	DefaultPollingInterval int    `yaml:"default_polling_interval_ms" envconfig:"DEFAULT_POLLING_INTERVAL_MS"`
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	// completed and failed records kept by the memory store
	MinStatusCapacity = 100

	ProofSourcePlaceholder = "placeholder"
	ProofSourceRPC         = "rpc"
)

// system contracts on the destination chain
const (
	DefaultInteropHandlerAddress  = "0x000000000000000000000000000000000001000d"
	DefaultStandardTriggerAccount = "0x000000000000000000000000000000000001000e"
)

func (cfg *Configuration) fillDefaultValueIfNotSet() {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
		if cfg.Server.UseSSL {
			cfg.Server.ListenAddr = ":443"
		}
	}
	if cfg.Server.StatusStore == "" {
		cfg.Server.StatusStore = StoreMemory
	}
	if cfg.Server.StatusTTL == 0 {
		cfg.Server.StatusTTL = 24 * 60 * 60
	}
	if cfg.Server.StatusCapacity == 0 {
		cfg.Server.StatusCapacity = 100000
	}
	if cfg.Server.RedisHost == "" {
		cfg.Server.RedisHost = "127.0.0.1"
	}
	if cfg.Server.RedisPort == 0 {
		cfg.Server.RedisPort = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Relay.ProofSource == "" {
		cfg.Relay.ProofSource = ProofSourcePlaceholder
	}
	if cfg.Relay.ProofRetryInterval == 0 {
		cfg.Relay.ProofRetryInterval = 5000
	}
	if cfg.Relay.ProofRequestTimeout == 0 {
		cfg.Relay.ProofRequestTimeout = 30000
	}
	if cfg.Relay.InteropHandlerAddress == "" {
		cfg.Relay.InteropHandlerAddress = DefaultInteropHandlerAddress
	}
	if cfg.Relay.StandardTriggerAccount == "" {
		cfg.Relay.StandardTriggerAccount = DefaultStandardTriggerAccount
	}
	if cfg.Relay.ConfirmationInterval == 0 {
		cfg.Relay.ConfirmationInterval = 1000
	}
	if cfg.Relay.StatusQueryInterval == 0 {
		cfg.Relay.StatusQueryInterval = 250
	}
	if cfg.Relay.StatusQueryWindow == 0 {
		cfg.Relay.StatusQueryWindow = 15000
	}
	if cfg.Relay.DefaultPollingInterval == 0 {
		cfg.Relay.DefaultPollingInterval = 1000
	}
	for i := range cfg.Chains {
		if cfg.Chains[i].PollingInterval == 0 {
			cfg.Chains[i].PollingInterval = cfg.Relay.DefaultPollingInterval
		}
	}
}

func (cfg *Configuration) Validate() error {
	cfg.fillDefaultValueIfNotSet()

	if len(cfg.Chains) == 0 {
		return errors.New("chains cannot be empty")
	}
	seen := make(map[uint64]bool, len(cfg.Chains))
	for _, c := range cfg.Chains {
		if c.ID == 0 {
			return errors.Newf("chain %q has no id", c.Name)
		}
		if seen[c.ID] {
			return errors.Newf("duplicate chain id %d", c.ID)
		}
		if c.RPCURL == "" {
			return errors.Newf("chain %d has no rpc_url", c.ID)
		}
		seen[c.ID] = true
	}
	if !seen[cfg.Relay.HomeChainID] {
		return errors.Newf("home chain %d is not in the chains list", cfg.Relay.HomeChainID)
	}

	if err := validateAddress("interop_handler_address", cfg.Relay.InteropHandlerAddress); err != nil {
		return err
	}
	if err := validateAddress("standard_trigger_account", cfg.Relay.StandardTriggerAccount); err != nil {
		return err
	}

	switch cfg.Server.StatusStore {
	case StoreMemory, StoreRedis:
	default:
		return errors.Newf("unknown status_store %q", cfg.Server.StatusStore)
	}
	switch cfg.Relay.ProofSource {
	case ProofSourcePlaceholder, ProofSourceRPC:
	default:
		return errors.Newf("unknown proof_source %q", cfg.Relay.ProofSource)
	}
	switch cfg.Log.Format {
	case "json", "logfmt", "console":
	default:
		return errors.Newf("unknown log format %q", cfg.Log.Format)
	}
	if cfg.Relay.MaxConcurrentFlows < 0 {
		return errors.New("max_concurrent_flows cannot be negative")
	}
	if cfg.Server.StatusCapacity < MinStatusCapacity {
		return errors.Newf("status_capacity %d is below the minimum of %d", cfg.Server.StatusCapacity, MinStatusCapacity)
	}

	return nil
}

func validateAddress(field, address string) error {
	if !common.IsHexAddress(address) {
		return errors.Newf("%s: invalid address %q", field, address)
	}
	if err := ethav.Validate(common.HexToAddress(address).Hex()); err != nil {
		return errors.Wrap(err, field)
	}
	return nil
}

func (cfg *Configuration) InteropHandler() common.Address {
	return common.HexToAddress(cfg.Relay.InteropHandlerAddress)
}

func (cfg *Configuration) TriggerAccount() common.Address {
	return common.HexToAddress(cfg.Relay.StandardTriggerAccount)
}

func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
