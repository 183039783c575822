//go:build ignore
// +build ignore

package main

import (
	"fmt"
	"os"
	"strings"

	cfg "github.com/ArkLabsHQ/fastertasks/internal/config"
)

func main() {
	var md strings.Builder
	md.WriteString("# Environment Variables\n\n")
	md.WriteString("Generated from `config.EnvSpecs()`. **Do not edit manually.**\n\n")
	md.WriteString("| Variable | Default | Type | Description |\n")
	md.WriteString("|----------|---------|------|-------------|\n")

	for _, s := range cfg.EnvSpecs() {
		def := s.Default
		if def == "" {
			def = "—"
		}
		desc := s.Description
		if s.Notes != "" {
			desc += "<br/><em>" + s.Notes + "</em>"
		}
		fmt.Fprintf(&md, "| `%s` | `%s` | `%s` | %s |\n", s.FullName, def, s.Type, desc)
	}

	if err := os.MkdirAll("../../docs", 0o755); err != nil {
		panic(err)
	}
	if err := os.WriteFile("../../docs/environment.md", []byte(md.String()), 0o644); err != nil {
		panic(err)
	}
}
