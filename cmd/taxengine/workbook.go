package main

import (
	"context"
	"fmt"

	"github.com/pltax/settlement-engine/internal/calculation"
	"github.com/pltax/settlement-engine/internal/config"
	"github.com/pltax/settlement-engine/internal/domain"
	"github.com/pltax/settlement-engine/internal/output"
	"github.com/pltax/settlement-engine/internal/settlement"
)

// Workbook sections a command may process.
const (
	sectionIncome        = "income"
	sectionVatLines      = "vat_lines"
	sectionTransactions  = "vat_transactions"
	sectionClose         = "vat_close"
	sectionContributions = "contributions"
)

type processOptions struct {
	submit bool
	// sections limits processing; empty means every section.
	sections []string
}

func (o processOptions) wants(section string) bool {
	if len(o.sections) == 0 {
		return true
	}
	for _, s := range o.sections {
		if s == section {
			return true
		}
	}
	return false
}

// processWorkbook runs the selected workbook sections through the service.
// Item failures are recorded on the report and do not stop the run.
func processWorkbook(ctx context.Context, svc *settlement.Service, engine *calculation.CalculationEngine, wb *config.Workbook, opts processOptions, report *output.Report) {
	if opts.wants(sectionIncome) {
		processIncome(ctx, svc, wb, opts.submit, report)
	}
	if opts.wants(sectionVatLines) {
		processVatLines(engine, wb, report)
	}
	if opts.wants(sectionTransactions) {
		processTransactions(ctx, svc, wb, report)
	}
	if opts.wants(sectionClose) {
		processCloses(ctx, svc, wb, report)
	}
	if opts.wants(sectionContributions) {
		processContributions(ctx, svc, engine, wb, report)
	}
}

func processIncome(ctx context.Context, svc *settlement.Service, wb *config.Workbook, submit bool, report *output.Report) {
	for _, in := range wb.Income {
		subject := fmt.Sprintf("%s income %s", in.ClientID, output.FormatPeriod(in.TaxYear, in.Period))
		d, err := svc.CalculateIncome(ctx, in)
		if err == nil && submit {
			d, err = svc.Submit(ctx, d.ID)
		}
		if err != nil {
			report.AddFailure(subject, err)
			continue
		}
		report.Declarations = append(report.Declarations, d)
	}
}

func processVatLines(engine *calculation.CalculationEngine, wb *config.Workbook, report *output.Report) {
	for i, in := range wb.VatLines {
		res, err := engine.CalculateVatLine(in)
		if err != nil {
			report.AddFailure(fmt.Sprintf("vat line %d", i+1), err)
			continue
		}
		report.VatLines = append(report.VatLines, output.VatLine{Input: in, Result: res})
	}
}

func processTransactions(ctx context.Context, svc *settlement.Service, wb *config.Workbook, report *output.Report) {
	txs := make([]domain.VatTransaction, 0, len(wb.Transactions))
	for i, ti := range wb.Transactions {
		tx, err := ti.Transaction()
		if err != nil {
			report.AddFailure(fmt.Sprintf("vat transaction %d", i+1), err)
			continue
		}
		txs = append(txs, tx)
	}
	if len(txs) > 0 {
		if _, err := svc.RecordTransactions(ctx, txs...); err != nil {
			report.AddFailure("vat transactions", err)
		}
	}
}

func processCloses(ctx context.Context, svc *settlement.Service, wb *config.Workbook, report *output.Report) {
	reqs := make([]settlement.CloseRequest, 0, len(wb.Closes))
	for i, ci := range wb.Closes {
		req, err := ci.Request()
		if err != nil {
			report.AddFailure(fmt.Sprintf("vat close %d", i+1), err)
			continue
		}
		reqs = append(reqs, req)
	}
	if len(reqs) > 0 {
		outcomes, _ := svc.CloseBatch(ctx, reqs)
		for _, o := range outcomes {
			if o.Err != nil {
				report.AddFailure(fmt.Sprintf("%s vat %s", o.Request.ClientID, o.Request.Period), o.Err)
				continue
			}
			report.Settlements = append(report.Settlements, o.Settlement)
		}
	}
}

func processContributions(ctx context.Context, svc *settlement.Service, engine *calculation.CalculationEngine, wb *config.Workbook, report *output.Report) {
	for _, in := range wb.Contributions {
		var (
			res *domain.ContributionResult
			err error
		)
		if in.ClientID == "" {
			res, err = engine.CalculateContributions(in)
		} else {
			res, err = svc.CalculateContributions(ctx, in)
		}
		if err != nil {
			report.AddFailure(fmt.Sprintf("%s zus %d-%02d", in.ClientID, in.Year, in.Month), err)
			continue
		}
		report.Contributions = append(report.Contributions, output.Contribution{ClientID: in.ClientID, Year: in.Year, Month: in.Month, Result: res})
	}
}
