package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts rootOptions
	root := &cobra.Command{
		Use:           "taxengine",
		Short:         "Polish tax settlement engine",
		Long:          "Computes CIT, PIT, VAT and ZUS liabilities and closes tax periods against the loss and VAT credit ledgers.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.format, "format", "f", "console", "output format (console, csv, json, html)")
	root.PersistentFlags().StringVarP(&opts.outputDir, "output-dir", "o", "", "write the report to a timestamped file in this directory")
	root.PersistentFlags().StringVar(&opts.seed, "seed", "", "catalog seed file (overrides TAXENGINE_SEED_FILE)")

	root.AddCommand(
		newRunCmd(&opts),
		newIncomeCmd(&opts),
		newVatCmd(&opts),
		newZusCmd(&opts),
		newCloseCmd(&opts),
		newValidateCmd(),
		newExampleCmd(),
		newRatesCmd(&opts),
	)
	return root
}
