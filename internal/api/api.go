// Package api exposes the engine's operations over HTTP. Callers arrive
// pre-authenticated: the gateway in front of this service resolves identity
// and forwards it in the X-Account header. All writes are funneled through
// the chain driver so they execute inside a height, in admission order.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mkdior/blocklab/internal/auction"
	"github.com/mkdior/blocklab/internal/chain"
	"github.com/mkdior/blocklab/internal/escrow"
)

// Handler serves the auction HTTP API.
type Handler struct {
	engine *auction.Engine
	driver *chain.Driver
	logger *slog.Logger
}

// NewHandler returns a Handler.
func NewHandler(engine *auction.Engine, driver *chain.Driver, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, driver: driver, logger: logger}
}

// Register mounts all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/auctions", h.createAuction)
	mux.HandleFunc("GET /v1/auctions", h.listAuctions)
	mux.HandleFunc("GET /v1/auctions/{id}", h.getAuction)
	mux.HandleFunc("PATCH /v1/auctions/{id}", h.updateAuction)
	mux.HandleFunc("DELETE /v1/auctions/{id}", h.removeAuction)
	mux.HandleFunc("POST /v1/auctions/{id}/bids", h.placeBid)
	mux.HandleFunc("GET /v1/height", h.currentHeight)
}

type createRequest struct {
	Origin        string  `json:"origin"`
	Timestamp     uint64  `json:"timestamp"`
	NumContainers uint64  `json:"num_containers"`
	NumTEU        uint64  `json:"num_teu"`
	Start         uint64  `json:"start"`
	End           *uint64 `json:"end,omitempty"`
}

type createResponse struct {
	ID     auction.ID     `json:"id"`
	Record auction.Record `json:"record"`
}

func (h *Handler) createAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var resp createResponse
	err := h.driver.Submit(r.Context(), func(ctx context.Context) error {
		id, rec, err := h.engine.Create(ctx, caller, req.Origin, auction.CoreInfo{
			Timestamp:     req.Timestamp,
			NumContainers: req.NumContainers,
			NumTEU:        req.NumTEU,
		}, auction.Height(req.Start), heightPtr(req.End))
		if err != nil {
			return err
		}
		resp = createResponse{ID: id, Record: rec}
		return nil
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

type bidRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) placeBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	err = h.driver.Submit(r.Context(), func(ctx context.Context) error {
		return h.engine.SubmitBid(ctx, id, caller, amount)
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type updateRequest struct {
	Timestamp     *uint64 `json:"timestamp,omitempty"`
	NumContainers *uint64 `json:"num_containers,omitempty"`
	NumTEU        *uint64 `json:"num_teu,omitempty"`
	Start         *uint64 `json:"start,omitempty"`
	End           *uint64 `json:"end,omitempty"`
}

func (h *Handler) updateAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var outcome auction.UpdateOutcome
	err := h.driver.Submit(r.Context(), func(ctx context.Context) error {
		var err error
		outcome, err = h.engine.Update(ctx, id, caller, auction.UpdatePatch{
			Info: auction.InfoPatch{
				Timestamp:     req.Timestamp,
				NumContainers: req.NumContainers,
				NumTEU:        req.NumTEU,
			},
			Start: heightPtr(req.Start),
			End:   heightPtr(req.End),
		})
		return err
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) removeAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var removed *auction.Record
	err := h.driver.Submit(r.Context(), func(ctx context.Context) error {
		var err error
		removed, err = h.engine.Remove(ctx, id, caller)
		return err
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removed)
}

func (h *Handler) getAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("view") == "display" {
		if d := h.engine.DisplayGet(id); d != nil {
			writeJSON(w, http.StatusOK, d)
			return
		}
		writeError(w, http.StatusNotFound, "auction not found")
		return
	}
	if rec := h.engine.Get(id); rec != nil {
		writeJSON(w, http.StatusOK, rec)
		return
	}
	writeError(w, http.StatusNotFound, "auction not found")
}

func (h *Handler) listAuctions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	display := q.Get("view") == "display"

	var active *bool
	switch q.Get("status") {
	case "":
	case "active":
		t := true
		active = &t
	case "queued":
		f := false
		active = &f
	default:
		writeError(w, http.StatusBadRequest, "status must be active or queued")
		return
	}

	if display {
		var out []auction.DisplayRecord
		if active != nil {
			out = h.engine.DisplayListByStatus(*active)
		} else {
			out = h.engine.DisplayListAll()
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	var out []auction.Record
	if active != nil {
		out = h.engine.ListByStatus(*active)
	} else {
		out = h.engine.ListAll()
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) currentHeight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"height": uint64(h.engine.Now())})
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auction.ErrAuctionNotExist):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auction.ErrPermission):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auction.ErrInvalidBidPrice),
		errors.Is(err, auction.ErrSelfDealing),
		errors.Is(err, auction.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auction.ErrBidNotAccepted),
		errors.Is(err, auction.ErrAuctionAlreadyLive),
		errors.Is(err, auction.ErrCannotUpdateActiveAuction),
		errors.Is(err, escrow.ErrReserveFailed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "internal error handling request",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func callerAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	account := r.Header.Get("X-Account")
	if account == "" {
		writeError(w, http.StatusUnauthorized, "missing X-Account header")
		return "", false
	}
	return account, true
}

func heightPtr(v *uint64) *auction.Height {
	if v == nil {
		return nil
	}
	h := auction.Height(*v)
	return &h
}

func pathID(w http.ResponseWriter, r *http.Request) (auction.ID, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return 0, false
	}
	return auction.ID(id), true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
