package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/internal/platform/pricing"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

// Snapshotter provides fresh snapshots and quotes
type Snapshotter interface {
	CEXSnapshot(ctx context.Context) (*balance.Report, error)
	ChainSnapshot(ctx context.Context) (*balance.Report, error)
	Quote(ctx context.Context, assets []string) pricing.Quote
}

// Result is a built row together with how it was built
type Result struct {
	Row        *Row
	Report     Report
	SnapshotID string

	// Empty is set when there were no sources to query; the row is all zeros or carried values
	Empty bool
}

// Service builds ledger rows from live snapshots
type Service struct {
	balances Snapshotter
	cex      *CEXBuilder
	onchain  *OnchainBuilder
	logger   *logger.Logger
	now      func() time.Time
}

// NewService creates a new ledger service
func NewService(balances Snapshotter, cex *CEXBuilder, onchain *OnchainBuilder, log *logger.Logger) *Service {
	return &Service{
		balances: balances,
		cex:      cex,
		onchain:  onchain,
		logger:   log.WithComponent("ledger"),
		now:      time.Now,
	}
}

// CEXColumns returns the exchange sheet header
func (s *Service) CEXColumns() []string {
	return s.cex.Layout.Columns()
}

// OnchainColumns returns the on-chain sheet header
func (s *Service) OnchainColumns() []string {
	return s.onchain.Layout.Columns()
}

// NextCEXRow fetches every exchange account and builds the row that follows prev
func (s *Service) NextCEXRow(ctx context.Context, prev *Row) (*Result, error) {
	report, empty, err := s.snapshot(ctx, s.balances.CEXSnapshot, []string{s.cex.Layout.PrimaryAsset})
	if err != nil {
		return nil, err
	}

	row, rowReport := s.cex.Build(report.Snapshot, report.Quote, prev, s.now())
	return s.result(row, rowReport, report, empty, "cex"), nil
}

// NextOnchainRow fetches every wallet and builds the row that follows prev
func (s *Service) NextOnchainRow(ctx context.Context, prev *Row) (*Result, error) {
	report, empty, err := s.snapshot(ctx, s.balances.ChainSnapshot, s.onchain.Layout.Assets)
	if err != nil {
		return nil, err
	}

	row, rowReport := s.onchain.Build(report.Snapshot, report.Quote, prev, s.now())
	return s.result(row, rowReport, report, empty, "onchain"), nil
}

// snapshot runs fetch; with no sources it substitutes an empty snapshot so a row can still be built
func (s *Service) snapshot(
	ctx context.Context,
	fetch func(context.Context) (*balance.Report, error),
	assets []string,
) (*balance.Report, bool, error) {
	report, err := fetch(ctx)
	switch {
	case errors.Is(err, balance.ErrNoActiveSources):
		return &balance.Report{
			Snapshot: balance.Aggregate(nil, s.now().UTC()),
			Quote:    s.balances.Quote(ctx, assets),
		}, true, nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to take snapshot: %w", err)
	}
	return report, false, nil
}

func (s *Service) result(row *Row, rowReport Report, report *balance.Report, empty bool, sheet string) *Result {
	snapID := report.Snapshot.ID.String()
	s.logger.Info("ledger row built",
		"sheet", sheet,
		string(logger.SnapshotIDKey), snapID,
		"columns", len(row.Columns()),
		"missing", len(rowReport.Missing),
		"history_gap", rowReport.HistoryGap,
		"price_source", rowReport.PriceSource,
		"empty", empty)

	return &Result{
		Row:        row,
		Report:     rowReport,
		SnapshotID: snapID,
		Empty:      empty,
	}
}
