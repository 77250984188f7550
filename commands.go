package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cleanpay/internal/config"
)

func newPricingCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pricing",
		Short: "Print the charge per currency",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			pricing, err := pricingFromConfig(cfg)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CURRENCY\tMINOR UNITS\tAMOUNT")
			for _, p := range pricing.Entries() {
				fmt.Fprintf(w, "%s\t%d\t%d.%02d\n", p.Currency, p.Amount, p.Amount/100, p.Amount%100)
			}
			return w.Flush()
		},
	}
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if _, err := pricingFromConfig(cfg); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "config ok")
			fmt.Fprintf(out, "  server_address: %s\n", cfg.BasicConfig.ServerAddress)
			fmt.Fprintf(out, "  session_store:  %s\n", cfg.BasicConfig.SessionStore)
			fmt.Fprintf(out, "  token_policy:   %s\n", cfg.BasicConfig.TokenPolicy)
			fmt.Fprintf(out, "  cleaning_url:   %s\n", cfg.Services.CleaningURL)
			fmt.Fprintf(out, "  verify_url:     %s\n", cfg.Services.VerifyURL)
			fmt.Fprintf(out, "  download_url:   %s\n", cfg.Services.DownloadURL)
			if cfg.BasicConfig.Database != "" {
				fmt.Fprintf(out, "  ledger:         %s\n", cfg.BasicConfig.Database)
			}
			return nil
		},
	})
	return configCmd
}
