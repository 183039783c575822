package config_test

import (
	"fmt"
	"os"
	"testing"

	cfg "github.com/ArkLabsHQ/fastertasks/internal/config"
	"github.com/stretchr/testify/require"
)

func TestSpecMatchesLoadedDefaults(t *testing.T) {
	t.Setenv("FASTERTASKS_DATADIR", t.TempDir())

	config, err := cfg.LoadConfig()
	require.NoError(t, err)

	loaded := map[string]any{
		"LOG_LEVEL":                config.LogLevel,
		"HTTP_PORT":                config.HTTPPort,
		"GRPC_PORT":                config.GRPCPort,
		"RPC_URL":                  config.RPCURL,
		"CHAIN_ID":                 config.ChainID,
		"CHAIN_NAME":               config.ChainName,
		"CURRENCY_DECIMALS":        config.CurrencyDecimals,
		"CONTRACT_ADDRESS":         config.ContractAddress,
		"FALLBACK_PRICE":           config.FallbackPrice,
		"CONFIRMATION_TIMEOUT":     config.ConfirmationTimeout,
		"REFRESH_INTERVAL":         config.RefreshInterval,
		"MAX_CONCURRENT_READS":     config.MaxConcurrentReads,
		"OWNER_CAN_ALLOCATE":       config.OwnerCanAllocate,
		"RESTRICT_TASK_CREATION":   config.RestrictTaskCreation,
		"DEFAULT_PLATFORM_FEE_BPS": config.DefaultPlatformFeeBps,
		"DISABLE_TELEMETRY":        config.DisableTelemetry,
	}

	specs := map[string]cfg.EnvVar{}
	for _, s := range cfg.EnvSpecs() {
		require.Equal(t, "FASTERTASKS_"+s.Name, s.FullName)
		require.NotEmpty(t, s.Description, "missing description for %s", s.Name)
		specs[s.Name] = s
	}

	for k, got := range loaded {
		spec, ok := specs[k]
		require.True(t, ok, "missing spec for %s", k)
		require.Equal(t, spec.Default, coerce(got), "default mismatch for %s", k)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("network descriptor", func(t *testing.T) {
		t.Setenv("FASTERTASKS_DATADIR", t.TempDir())

		config, err := cfg.LoadConfig()
		require.NoError(t, err)

		network := config.Network()
		require.Equal(t, uint64(8453), network.ChainID)
		require.Equal(t, "0x2105", network.ChainIDHex())
		require.Equal(t, "ETH", network.Currency.Symbol)
		require.Equal(t, []string{"https://mainnet.base.org"}, network.RPCURLs)
		require.Equal(t, "0x5571d4b93eB7469BaA0d41dCFf4A42944b830A33", config.ContractAddr().Hex())

		wallet, err := config.WalletProvider()
		require.NoError(t, err)
		require.Nil(t, wallet)
	})

	t.Run("local wallet", func(t *testing.T) {
		t.Setenv("FASTERTASKS_DATADIR", t.TempDir())
		t.Setenv("FASTERTASKS_WALLET_TYPE", "local")
		t.Setenv("FASTERTASKS_WALLET_PRIVATE_KEY", "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")

		config, err := cfg.LoadConfig()
		require.NoError(t, err)

		wallet, err := config.WalletProvider()
		require.NoError(t, err)
		require.NotNil(t, wallet)
		wallet.Close()
	})

	invalid := []struct {
		name        string
		env         map[string]string
		errContains string
	}{
		{
			name:        "bad contract address",
			env:         map[string]string{"CONTRACT_ADDRESS": "0x1234"},
			errContains: "invalid contract address",
		},
		{
			name:        "bad rpc scheme",
			env:         map[string]string{"RPC_URL": "ftp://node.example"},
			errContains: "invalid rpc url",
		},
		{
			name:        "local wallet without key",
			env:         map[string]string{"WALLET_TYPE": "local"},
			errContains: "requires a private key",
		},
		{
			name:        "local wallet with bad key",
			env:         map[string]string{"WALLET_TYPE": "local", "WALLET_PRIVATE_KEY": "zz"},
			errContains: "invalid wallet private key",
		},
		{
			name:        "rpc wallet without url",
			env:         map[string]string{"WALLET_TYPE": "rpc"},
			errContains: "invalid wallet url",
		},
		{
			name:        "unknown wallet",
			env:         map[string]string{"WALLET_TYPE": "hardware"},
			errContains: "unknown wallet type",
		},
	}
	for _, tc := range invalid {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("FASTERTASKS_DATADIR", t.TempDir())
			for k, v := range tc.env {
				t.Setenv("FASTERTASKS_"+k, v)
			}
			_, err := cfg.LoadConfig()
			require.Error(t, err)
			require.ErrorContains(t, err, tc.errContains)
		})
	}
}

func TestDatadirIsCreated(t *testing.T) {
	dir := t.TempDir() + "/nested/journal"
	t.Setenv("FASTERTASKS_DATADIR", dir)

	config, err := cfg.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, dir, config.Datadir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func coerce(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", x)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	case float32, float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
