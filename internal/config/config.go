package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/ArkLabsHQ/fastertasks/internal/core/domain"
	"github.com/ArkLabsHQ/fastertasks/internal/core/ports"
	"github.com/ArkLabsHQ/fastertasks/internal/infrastructure/wallet/local"
	"github.com/ArkLabsHQ/fastertasks/internal/infrastructure/wallet/rpcwallet"
	"github.com/ArkLabsHQ/fastertasks/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"
)

const (
	envPrefix = "FASTERTASKS"
	appName   = "fastertasks"

	localWallet = "local"
	rpcWallet   = "rpc"
)

var rpcSchemes = []string{"http", "https", "ws", "wss"}

type Config struct {
	Datadir  string `mapstructure:"DATADIR" envDefault:"fastertasks" envInfo:"Data directory for the pending transaction journal"`
	LogLevel uint32 `mapstructure:"LOG_LEVEL" envDefault:"4" envInfo:"Log verbosity (higher = more verbose)"`
	HTTPPort uint32 `mapstructure:"HTTP_PORT" envDefault:"7001" envInfo:"HTTP API port"`
	GRPCPort uint32 `mapstructure:"GRPC_PORT" envDefault:"7000" envInfo:"gRPC health server port"`

	RPCURL           string `mapstructure:"RPC_URL" envDefault:"https://mainnet.base.org" envInfo:"Read-only ledger RPC endpoint (http(s) or ws(s))"`
	ChainID          uint64 `mapstructure:"CHAIN_ID" envDefault:"8453" envInfo:"Required network chain id"`
	ChainName        string `mapstructure:"CHAIN_NAME" envDefault:"Base" envInfo:"Network name used when registering it with a wallet"`
	CurrencyName     string `mapstructure:"CURRENCY_NAME" envDefault:"Ether" envInfo:"Native currency name"`
	CurrencySymbol   string `mapstructure:"CURRENCY_SYMBOL" envDefault:"ETH" envInfo:"Native currency symbol"`
	CurrencyDecimals uint8  `mapstructure:"CURRENCY_DECIMALS" envDefault:"18" envInfo:"Native currency decimals"`
	ExplorerURL      string `mapstructure:"EXPLORER_URL" envDefault:"https://basescan.org" envInfo:"Block explorer URL"`
	ContractAddress  string `mapstructure:"CONTRACT_ADDRESS" envDefault:"0x5571d4b93eB7469BaA0d41dCFf4A42944b830A33" envInfo:"Task contract address"`

	WalletType       string `mapstructure:"WALLET_TYPE" envDefault:"" envInfo:"Wallet provider: local | rpc (empty means no provider)"`
	WalletURL        string `mapstructure:"WALLET_URL" envDefault:"" envInfo:"JSON-RPC wallet endpoint (when WALLET_TYPE=rpc)"`
	WalletPrivateKey string `mapstructure:"WALLET_PRIVATE_KEY" envDefault:"" envInfo:"Hex private key (when WALLET_TYPE=local)"`

	PriceURL      string  `mapstructure:"PRICE_URL" envDefault:"https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd" envInfo:"Exchange-rate lookup endpoint"`
	FallbackPrice float64 `mapstructure:"FALLBACK_PRICE" envDefault:"3000" envInfo:"USD price used when the lookup fails"`

	ConfirmationTimeout uint32 `mapstructure:"CONFIRMATION_TIMEOUT" envDefault:"120" envInfo:"Seconds to wait for a confirmation before reporting a timeout"`
	ReceiptPollInterval uint32 `mapstructure:"RECEIPT_POLL_INTERVAL" envDefault:"2" envInfo:"Seconds between receipt polls"`
	DroppedAfter        uint32 `mapstructure:"DROPPED_AFTER" envDefault:"300" envInfo:"Seconds a transaction may stay unknown to the node before it is considered dropped"`
	TrackingHorizon     uint32 `mapstructure:"TRACKING_HORIZON" envDefault:"3600" envInfo:"Seconds an abandoned transaction keeps being tracked"`
	RefreshInterval     uint32 `mapstructure:"REFRESH_INTERVAL" envDefault:"30" envInfo:"Seconds between periodic task refreshes (0 disables)"`
	EventPollInterval   uint32 `mapstructure:"EVENT_POLL_INTERVAL" envDefault:"5" envInfo:"Seconds between contract log polls on non-websocket RPC"`
	MaxConcurrentReads  int    `mapstructure:"MAX_CONCURRENT_READS" envDefault:"16" envInfo:"Maximum concurrent task reads per refresh"`
	ReadsPerSecond      int    `mapstructure:"READS_PER_SECOND" envDefault:"50" envInfo:"Chain read rate limit"`

	OwnerCanAllocate      bool    `mapstructure:"OWNER_CAN_ALLOCATE" envDefault:"false" envInfo:"Whether the contract owner may allocate rewards"`
	RestrictTaskCreation  bool    `mapstructure:"RESTRICT_TASK_CREATION" envDefault:"true" envInfo:"Only the contract owner may create tasks"`
	MinFundingUSD         float64 `mapstructure:"MIN_FUNDING_USD" envDefault:"10" envInfo:"Minimum reward pool accepted by funding quotes"`
	DefaultPlatformFeeBps uint64  `mapstructure:"DEFAULT_PLATFORM_FEE_BPS" envDefault:"2500" envInfo:"Platform fee used when the on-chain value cannot be read"`
	DisableTelemetry      bool    `mapstructure:"DISABLE_TELEMETRY" envDefault:"false" envInfo:"Disable error reporting"`

	contract   common.Address
	network    domain.Network
	privateKey *ecdsa.PrivateKey
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := setDefaultConfig(v); err != nil {
		return nil, fmt.Errorf("error setting default config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %v", err)
	}

	if err := config.initDatadir(); err != nil {
		return nil, fmt.Errorf("error initializing data directory: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) ContractAddr() common.Address {
	return c.contract
}

// Network returns the descriptor of the required network, used both to check
// the wallet's network identity and to register it when the wallet lacks it.
func (c *Config) Network() domain.Network {
	return c.network
}

// WalletProvider builds the configured wallet variant. It returns nil when
// no wallet is configured.
func (c *Config) WalletProvider() (ports.WalletProvider, error) {
	switch c.WalletType {
	case "":
		return nil, nil
	case localWallet:
		return local.NewWallet(c.privateKey, c.network), nil
	case rpcWallet:
		return rpcwallet.NewWallet(c.WalletURL)
	default:
		return nil, fmt.Errorf("unknown wallet type %q", c.WalletType)
	}
}

func (c *Config) ConfirmationTimeoutDuration() time.Duration {
	return seconds(c.ConfirmationTimeout)
}

func (c *Config) ReceiptPollIntervalDuration() time.Duration {
	return seconds(c.ReceiptPollInterval)
}

func (c *Config) DroppedAfterDuration() time.Duration {
	return seconds(c.DroppedAfter)
}

func (c *Config) TrackingHorizonDuration() time.Duration {
	return seconds(c.TrackingHorizon)
}

func (c *Config) RefreshIntervalDuration() time.Duration {
	return seconds(c.RefreshInterval)
}

func (c *Config) EventPollIntervalDuration() time.Duration {
	return seconds(c.EventPollInterval)
}

func (c *Config) validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("missing chain id")
	}
	contract, err := utils.ParseAddress(c.ContractAddress)
	if err != nil {
		return fmt.Errorf("invalid contract address: %w", err)
	}
	c.contract = contract

	rpcURL, err := utils.ValidateEndpoint(c.RPCURL, rpcSchemes...)
	if err != nil {
		return fmt.Errorf("invalid rpc url: %w", err)
	}
	c.RPCURL = rpcURL

	explorers := make([]string, 0, 1)
	if c.ExplorerURL != "" {
		explorer, err := utils.ValidateEndpoint(c.ExplorerURL, "http", "https")
		if err != nil {
			return fmt.Errorf("invalid explorer url: %w", err)
		}
		explorers = append(explorers, explorer)
	}

	if c.PriceURL != "" {
		if _, err := utils.ValidateEndpoint(c.PriceURL, "http", "https"); err != nil {
			return fmt.Errorf("invalid price url: %w", err)
		}
	}
	if c.FallbackPrice <= 0 {
		return fmt.Errorf("fallback price must be positive")
	}
	if c.MaxConcurrentReads <= 0 {
		return fmt.Errorf("max concurrent reads must be positive")
	}
	if c.ReadsPerSecond <= 0 {
		return fmt.Errorf("reads per second must be positive")
	}
	if c.ConfirmationTimeout == 0 || c.ReceiptPollInterval == 0 {
		return fmt.Errorf("confirmation timeout and receipt poll interval must be positive")
	}
	if c.DefaultPlatformFeeBps > 10000 {
		return fmt.Errorf("platform fee must not exceed 10000 bps")
	}

	c.network = domain.Network{
		ChainID: c.ChainID,
		Name:    c.ChainName,
		Currency: domain.NativeCurrency{
			Name:     c.CurrencyName,
			Symbol:   c.CurrencySymbol,
			Decimals: c.CurrencyDecimals,
		},
		RPCURLs:      []string{rpcURL},
		ExplorerURLs: explorers,
	}

	return c.validateWallet()
}

func (c *Config) validateWallet() error {
	switch c.WalletType {
	case "":
		return nil
	case localWallet:
		key := strings.TrimPrefix(strings.TrimSpace(c.WalletPrivateKey), "0x")
		if key == "" {
			return fmt.Errorf("local wallet requires a private key")
		}
		privateKey, err := crypto.HexToECDSA(key)
		if err != nil {
			return fmt.Errorf("invalid wallet private key: %w", err)
		}
		c.privateKey = privateKey
		return nil
	case rpcWallet:
		walletURL, err := utils.ValidateEndpoint(c.WalletURL, "http", "https", "ws", "wss")
		if err != nil {
			return fmt.Errorf("invalid wallet url: %w", err)
		}
		c.WalletURL = walletURL
		return nil
	default:
		return fmt.Errorf("unknown wallet type %q", c.WalletType)
	}
}

func (c *Config) initDatadir() error {
	if c.Datadir == appName {
		c.Datadir = appDatadir(appName, false)
	} else {
		c.Datadir = cleanAndExpandPath(c.Datadir)
	}
	if c.Datadir == "" {
		return nil
	}
	return makeDirectoryIfNotExists(c.Datadir)
}

func setDefaultConfig(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("mapstructure")
		def := f.Tag.Get("envDefault")
		if def != "" {
			v.SetDefault(key, def)
		}
		err := v.BindEnv(key)
		if err != nil {
			return fmt.Errorf("error binding env variable for key %s: %w", key, err)
		}
	}
	return nil
}

func seconds(s uint32) time.Duration {
	return time.Duration(s) * time.Second
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// appDatadir returns an operating system specific directory to be used for
// storing application data.
func appDatadir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}

	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}

	switch runtime.GOOS {
	case "windows":
		// Windows XP and before didn't have a LOCALAPPDATA.
		appData := os.Getenv("LOCALAPPDATA")
		if roaming || appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}

	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library",
				"Application Support", appNameUpper)
		}

	case "plan9":
		if homeDir != "" {
			return filepath.Join(homeDir, appNameLower)
		}

	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appNameLower)
		}
	}

	return "."
}

func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}

//go:generate go run ../../tools/gen-env-doc/main.go
