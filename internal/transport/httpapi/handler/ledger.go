package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Markhorcapital/ledger-listener/internal/ledger"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

// maxRowBody bounds the previous-row payload
const maxRowBody = 1 << 20

// LedgerServiceInterface builds ledger rows
type LedgerServiceInterface interface {
	CEXColumns() []string
	OnchainColumns() []string
	NextCEXRow(ctx context.Context, prev *ledger.Row) (*ledger.Result, error)
	NextOnchainRow(ctx context.Context, prev *ledger.Row) (*ledger.Result, error)
}

// LedgerHandler serves the daily ledger rows
type LedgerHandler struct {
	ledger LedgerServiceInterface
	logger *logger.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(svc LedgerServiceInterface, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger: svc,
		logger: log.WithComponent("ledger_handler"),
	}
}

// GetCEXColumns handles GET /api/ledger/cex/columns
func (h *LedgerHandler) GetCEXColumns(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, ColumnsResponse{Columns: h.ledger.CEXColumns()})
}

// GetOnchainColumns handles GET /api/ledger/onchain/columns
func (h *LedgerHandler) GetOnchainColumns(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, ColumnsResponse{Columns: h.ledger.OnchainColumns()})
}

// CreateCEXRow handles POST /api/ledger/cex/rows
func (h *LedgerHandler) CreateCEXRow(w http.ResponseWriter, r *http.Request) {
	h.createRow(w, r, h.ledger.NextCEXRow, "no active accounts")
}

// CreateOnchainRow handles POST /api/ledger/onchain/rows
func (h *LedgerHandler) CreateOnchainRow(w http.ResponseWriter, r *http.Request) {
	h.createRow(w, r, h.ledger.NextOnchainRow, "no wallets configured")
}

func (h *LedgerHandler) createRow(
	w http.ResponseWriter,
	r *http.Request,
	next func(context.Context, *ledger.Row) (*ledger.Result, error),
	emptyMessage string,
) {
	var req RowRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRowBody)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := next(r.Context(), ledger.RowFromValues(req.PreviousRow))
	if err != nil {
		h.logger.WithContext(r.Context()).Error("failed to build ledger row", "error", err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := RowResponse{
		Success:    true,
		Row:        result.Row.Cells(),
		Values:     result.Row.Values(),
		Report:     result.Report,
		SnapshotID: result.SnapshotID,
	}
	if result.Empty {
		resp.Message = emptyMessage
	}
	respondWithJSON(w, http.StatusOK, resp)
}
