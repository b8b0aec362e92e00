package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pltax/settlement-engine/internal/domain"
	"github.com/pltax/settlement-engine/pkg/dateutil"
)

// CloseRequest asks for one client's VAT period to be closed.
type CloseRequest struct {
	ClientID string                `json:"client_id" yaml:"client_id" validate:"required"`
	Period   dateutil.YearMonth    `json:"period" yaml:"period"`
	Election domain.RefundElection `json:"election,omitempty" yaml:"election"`
	FiledAt  time.Time             `json:"filed_at,omitempty" yaml:"filed_at"`
}

// CloseOutcome is the result of one request in a batch.
type CloseOutcome struct {
	Request    CloseRequest          `json:"request"`
	Settlement *domain.VatSettlement `json:"settlement,omitempty"`
	Err        error                 `json:"-"`
}

// CloseBatch closes independent clients in parallel. Each client's periods
// run in one goroutine, oldest first, so a period always sees the credits
// registered by the periods before it. A failing request does not stop the
// others; the returned error joins every failure.
func (s *Service) CloseBatch(ctx context.Context, reqs []CloseRequest) ([]CloseOutcome, error) {
	outcomes := make([]CloseOutcome, len(reqs))
	var (
		clients  []string
		byClient = make(map[string][]int)
	)
	for i, req := range reqs {
		outcomes[i].Request = req
		if _, ok := byClient[req.ClientID]; !ok {
			clients = append(clients, req.ClientID)
		}
		byClient[req.ClientID] = append(byClient[req.ClientID], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchWorkers)
	for _, clientID := range clients {
		idx := byClient[clientID]
		sort.SliceStable(idx, func(a, b int) bool {
			return reqs[idx[a]].Period.Before(reqs[idx[b]].Period)
		})
		g.Go(func() error {
			for _, i := range idx {
				s.closeOne(gctx, &outcomes[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", o.Request.ClientID, o.Request.Period, o.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}

func (s *Service) closeOne(ctx context.Context, o *CloseOutcome) {
	req := o.Request
	if err := ctx.Err(); err != nil {
		o.Err = err
		return
	}
	o.Settlement, o.Err = s.CloseVatPeriod(ctx, req.ClientID, req.Period, req.Election, req.FiledAt)
	if o.Err != nil {
		s.logger.Warn("batch close failed", slog.String("client", req.ClientID),
			slog.String("period", req.Period.String()), slog.Any("error", o.Err))
	}
}
