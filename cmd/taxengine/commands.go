package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pltax/settlement-engine/internal/config"
	"github.com/pltax/settlement-engine/internal/domain"
	"github.com/pltax/settlement-engine/internal/output"
	"github.com/pltax/settlement-engine/internal/settlement"
)

type rootOptions struct {
	format    string
	outputDir string
	seed      string
}

func setup(cmd *cobra.Command, opts *rootOptions) (*runtime, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := config.NewLogger(env, cmd.ErrOrStderr())
	seed := opts.seed
	if seed == "" {
		seed = env.SeedFile
	}
	return newRuntime(cmd.Context(), env, logger, seed)
}

func emit(cmd *cobra.Command, opts *rootOptions, report *output.Report) error {
	if opts.outputDir == "" {
		return output.Render(cmd.OutOrStdout(), report, opts.format)
	}
	files, err := output.GenerateReport(report, opts.format, opts.outputDir)
	for _, f := range files {
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", f)
	}
	return err
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return newProcessCmd(opts, "run", "Process every section of a workbook and print the report")
}

func newIncomeCmd(opts *rootOptions) *cobra.Command {
	return newProcessCmd(opts, "income", "Calculate the workbook's CIT and PIT declarations", sectionIncome)
}

func newVatCmd(opts *rootOptions) *cobra.Command {
	return newProcessCmd(opts, "vat", "Calculate the workbook's per-transaction VAT lines", sectionVatLines)
}

func newZusCmd(opts *rootOptions) *cobra.Command {
	return newProcessCmd(opts, "zus", "Calculate the workbook's ZUS contributions", sectionContributions)
}

func newCloseCmd(opts *rootOptions) *cobra.Command {
	return newProcessCmd(opts, "close", "Record VAT transactions and close the requested periods", sectionTransactions, sectionClose)
}

func newProcessCmd(opts *rootOptions, name, short string, sections ...string) *cobra.Command {
	var submit bool
	cmd := &cobra.Command{
		Use:   name + " <workbook.yaml>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := config.NewInputParser().LoadFromFile(args[0])
			if err != nil {
				return err
			}
			rt, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.service(settlement.NewMemoryProfiles(wb.Clients...))
			if err != nil {
				return err
			}
			report := output.NewReport("Tax settlement report", time.Now())
			report.CatalogVersion = rt.catalog.Version()
			processWorkbook(cmd.Context(), svc, rt.engine, wb, processOptions{submit: submit, sections: sections}, report)
			rt.logger.Info("workbook processed",
				slog.String("command", name),
				slog.String("file", args[0]),
				slog.Int("declarations", len(report.Declarations)),
				slog.Int("settlements", len(report.Settlements)),
				slog.Int("failures", len(report.Failures)))

			if err := emit(cmd, opts, report); err != nil {
				return err
			}
			if n := len(report.Failures); n > 0 {
				return fmt.Errorf("%d item(s) failed", n)
			}
			return nil
		},
	}
	if len(sections) == 0 || sections[0] == sectionIncome {
		cmd.Flags().BoolVar(&submit, "submit", false, "submit calculated declarations and book their ledger effects")
	}
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workbook.yaml>",
		Short: "Check a workbook without computing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := config.NewInputParser().LoadFromFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workbook OK: %d clients, %d income, %d VAT lines, %d VAT transactions, %d closes, %d contributions\n",
				len(wb.Clients), len(wb.Income), len(wb.VatLines), len(wb.Transactions), len(wb.Closes), len(wb.Contributions))
			return nil
		},
	}
}

func newExampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example [file]",
		Short: "Write an example workbook",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(config.NewInputParser().CreateExampleWorkbook())
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Example workbook written to %s\n", args[0])
			return nil
		},
	}
}

func newRatesCmd(opts *rootOptions) *cobra.Command {
	var taxType, asOf string
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "List catalog rates and brackets valid on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			date := time.Now().UTC()
			if asOf != "" {
				d, err := time.Parse("2006-01-02", asOf)
				if err != nil {
					return fmt.Errorf("invalid --as-of %q: %w", asOf, err)
				}
				date = d
			}
			rt, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			return printRates(cmd.OutOrStdout(), rt, domain.TaxType(strings.ToUpper(taxType)), date)
		},
	}
	cmd.Flags().StringVar(&taxType, "tax", string(domain.TaxCIT), "tax type (CIT, PIT, PIT_LUMP_SUM, VAT, ZUS)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "date in YYYY-MM-DD (default today)")
	return cmd
}

func printRates(w io.Writer, rt *runtime, taxType domain.TaxType, date time.Time) error {
	fmt.Fprintf(w, "%s rates as of %s (catalog %s)\n", taxType, date.Format("2006-01-02"), rt.catalog.Version())
	rates := rt.catalog.Rates(taxType, date)
	for _, r := range rates {
		fmt.Fprintf(w, "  %-28s %s\n", r.Code, r.Value.String())
	}
	brackets, err := rt.catalog.Thresholds(taxType, date)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			if len(rates) == 0 {
				return err
			}
			return nil
		}
		return err
	}
	fmt.Fprintln(w, "Brackets:")
	for _, b := range brackets {
		upper := "∞"
		if b.UpperBound != nil {
			upper = b.UpperBound.String()
		}
		fmt.Fprintf(w, "  %s - %s: %s\n", b.LowerBound.String(), upper, output.FormatPercentage(b.Rate))
	}
	return nil
}
