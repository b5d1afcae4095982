package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/business-finder/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return writeConfig(os.Stdout, cfg)
	},
}

// writeConfig dumps c as YAML with the database URL masked.
func writeConfig(out io.Writer, c *config.Config) error {
	masked := *c
	if masked.Store.DatabaseURL != "" {
		masked.Store.DatabaseURL = "********"
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&masked); err != nil {
		return eris.Wrap(err, "config show: encode")
	}
	return eris.Wrap(enc.Close(), "config show: flush")
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
