package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/garnizeh/experts/pkg/models"
	"github.com/garnizeh/experts/pkg/warehouse"
)

// Finder is the lookup the experts endpoint serves.
type Finder interface {
	Find(ctx context.Context, topic string, costCeilingBytes int64) ([]models.ExpertRecord, error)
}

type ExpertsHandler struct {
	finder  Finder
	ceiling int64
	timeout time.Duration
}

// NewExpertsHandler serves lookups under ceiling bytes. Requests may lower the
// ceiling with max_bytes but never raise it.
func NewExpertsHandler(f Finder, ceiling int64, timeout time.Duration) *ExpertsHandler {
	return &ExpertsHandler{finder: f, ceiling: ceiling, timeout: timeout}
}

type expertsResponse struct {
	Topic   string                `json:"topic"`
	Count   int                   `json:"count"`
	Experts []models.ExpertRecord `json:"experts"`
}

func (h *ExpertsHandler) FindExperts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topic := q.Get("topic")

	ceiling := h.ceiling
	if raw := q.Get("max_bytes"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", "max_bytes must be a positive integer")
			return
		}
		ceiling = min(n, h.ceiling)
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	records, err := h.finder.Find(ctx, topic, ceiling)
	if err != nil {
		clientID, _ := ClientIDFromContext(r.Context())
		logger.Warn("find experts failed",
			slog.String("client_id", clientID),
			slog.String("topic", topic),
			slog.Any("err", err),
		)
		writeFindError(w, err, ceiling)
		return
	}

	writeJSON(w, http.StatusOK, expertsResponse{Topic: topic, Count: len(records), Experts: records})
}

func writeFindError(w http.ResponseWriter, err error, ceiling int64) {
	var ce *warehouse.CostError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:          err.Error(),
			Code:           "cost_limit_exceeded",
			EstimatedBytes: &ce.Estimated,
			MaxBytes:       &ce.Limit,
		})
	case errors.Is(err, warehouse.ErrCostLimitExceeded):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:    err.Error(),
			Code:     "cost_limit_exceeded",
			MaxBytes: &ceiling,
		})
	case errors.Is(err, warehouse.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, warehouse.ErrCancelled):
		writeError(w, http.StatusGatewayTimeout, "cancelled", err.Error())
	default:
		writeError(w, http.StatusBadGateway, "execution_error", "query execution failed")
	}
}
