// Package apiv1 serves the admin payout endpoints under /api/v1.
package apiv1

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"telegram-reaction-payout/internal/domain"
	"telegram-reaction-payout/internal/domain/model"
	"telegram-reaction-payout/internal/infra/logging"
	"telegram-reaction-payout/internal/usecase"
)

type Server struct {
	payouts usecase.PayoutUseCase
	log     *zerolog.Logger
}

func NewServer(payouts usecase.PayoutUseCase, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	compLog := logger.With().Str("component", "apiv1").Logger()
	return &Server{payouts: payouts, log: &compLog}
}

// RegisterAPIV1 mounts the payout routes at absolute /api/v1 paths.
// createGuard wraps only the create route; pass nil for none.
func RegisterAPIV1(r chi.Router, s *Server, createGuard func(http.Handler) http.Handler) {
	create := http.Handler(http.HandlerFunc(s.createPayout))
	if createGuard != nil {
		create = createGuard(create)
	}
	r.Method(http.MethodPost, "/api/v1/payouts", create)
	r.Get("/api/v1/payouts/{id}", s.getPayout)
	r.Get("/api/v1/receivers/{tg_id}/payouts", s.listReceiverPayouts)
}

// Payout is the wire form of model.Payout. Money travels as decimal strings.
type Payout struct {
	ID          string     `json:"id"`
	TelegramID  int64      `json:"telegram_id"`
	Username    string     `json:"username,omitempty"`
	Account     string     `json:"account"`
	Reactions   int64      `json:"reactions"`
	Rate        string     `json:"rate"`
	Amount      string     `json:"amount"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	RequestID   string     `json:"request_id,omitempty"`
	PaymentID   string     `json:"payment_id,omitempty"`
	Attempts    int        `json:"attempts"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toWire(p *model.Payout) Payout {
	return Payout{
		ID:          p.ID,
		TelegramID:  p.TelegramID,
		Username:    p.Username,
		Account:     p.Account,
		Reactions:   p.Reactions,
		Rate:        p.Rate.String(),
		Amount:      p.Amount.String(),
		Currency:    p.Currency,
		Status:      string(p.Status),
		RequestID:   p.RequestID,
		PaymentID:   p.PaymentID,
		Attempts:    p.Attempts,
		Error:       p.Error,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		CompletedAt: p.CompletedAt,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) createPayout(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil || r.ContentLength == 0 {
		writeError(w, http.StatusBadRequest, "missing body")
		return
	}
	var req usecase.PayoutRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	p, err := s.payouts.Request(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/payouts/"+p.ID)
	writeJSON(w, http.StatusAccepted, toWire(p))
}

func (s *Server) getPayout(w http.ResponseWriter, r *http.Request) {
	p, err := s.payouts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWire(p))
}

func (s *Server) listReceiverPayouts(w http.ResponseWriter, r *http.Request) {
	tgID, err := strconv.ParseInt(chi.URLParam(r, "tg_id"), 10, 64)
	if err != nil || tgID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid telegram id")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	list, err := s.payouts.ListByTelegramID(r.Context(), tgID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]Payout, 0, len(list))
	for _, p := range list {
		items = append(items, toWire(p))
	}
	writeJSON(w, http.StatusOK, struct {
		Items []Payout `json:"items"`
	}{items})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, code, http.StatusText(code))
		return
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPayoutInFlight):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}
