package config

import (
	"reflect"
	"strings"
)

type EnvVar struct {
	Name        string // short name under the FASTERTASKS_ prefix (e.g., "DATADIR")
	FullName    string // e.g., "FASTERTASKS_DATADIR"
	Type        string // human-readable type
	Default     string // default value as a string ("" if none)
	Description string // one-liner for docs
	Notes       string // optional: constraints, examples, etc.
}

var envNotes = map[string]string{
	"WALLET_TYPE":          "local → use WALLET_PRIVATE_KEY; rpc → use WALLET_URL",
	"WALLET_PRIVATE_KEY":   "Never logged. Prefer a dedicated key with limited funds.",
	"REFRESH_INTERVAL":     "Contract events still trigger refreshes when disabled.",
	"CONFIRMATION_TIMEOUT": "A timeout is not a failure: the transaction keeps being tracked until TRACKING_HORIZON.",
}

var envTypes = map[string]string{
	"DATADIR":      "string (path)",
	"HTTP_PORT":    "uint32 (port)",
	"GRPC_PORT":    "uint32 (port)",
	"LOG_LEVEL":    "uint32 (0–6)",
	"RPC_URL":      "string (URL)",
	"EXPLORER_URL": "string (URL)",
	"WALLET_URL":   "string (URL)",
	"PRICE_URL":    "string (URL)",
}

// EnvSpecs describes every environment variable read by LoadConfig, derived
// from the tags of Config.
func EnvSpecs() []EnvVar {
	const P = envPrefix + "_"

	t := reflect.TypeOf(Config{})
	specs := make([]EnvVar, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("mapstructure")
		typ, ok := envTypes[name]
		if !ok {
			typ = f.Type.Kind().String()
		}
		if strings.HasSuffix(f.Tag.Get("envInfo"), "(0 disables)") ||
			strings.HasPrefix(f.Tag.Get("envInfo"), "Seconds") {
			typ += " (seconds)"
		}
		specs = append(specs, EnvVar{
			Name:        name,
			FullName:    P + name,
			Type:        typ,
			Default:     f.Tag.Get("envDefault"),
			Description: f.Tag.Get("envInfo"),
			Notes:       envNotes[name],
		})
	}
	return specs
}

//go:generate go run ../../tools/gen-env-doc/main.go
