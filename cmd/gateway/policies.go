package main

import (
	"io"
	"sort"

	"admission-gateway/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Mostra a tabela de políticas efetiva (YAML)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return writePolicies(cmd.OutOrStdout(), cfg)
	},
}

type policyRow struct {
	Category    string   `yaml:"category"`
	Window      string   `yaml:"window"`
	MaxRequests int64    `yaml:"max_requests"`
	Burst       int64    `yaml:"burst"`
	Ceiling     int64    `yaml:"ceiling"`
	FailureMode string   `yaml:"failure_mode"`
	Routes      []string `yaml:"routes,omitempty"`
}

func writePolicies(w io.Writer, cfg *config.Config) error {
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	routes, err := cfg.RouteTable()
	if err != nil {
		return err
	}

	byCategory := make(map[string][]string)
	for prefix, c := range routes {
		byCategory[string(c)] = append(byCategory[string(c)], prefix)
	}

	rows := make([]policyRow, 0, reg.Len())
	for _, p := range reg.Policies() {
		prefixes := byCategory[string(p.Category)]
		sort.Strings(prefixes)
		rows = append(rows, policyRow{
			Category:    string(p.Category),
			Window:      p.Window.String(),
			MaxRequests: p.MaxRequests,
			Burst:       p.Burst,
			Ceiling:     p.Ceiling(),
			FailureMode: string(p.FailureMode),
			Routes:      prefixes,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"policies": rows}); err != nil {
		return err
	}
	return enc.Close()
}
