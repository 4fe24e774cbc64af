package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
	"github.com/skybread8/tradesyncer/internal/service"
)

// CopierHandler serves the copier resource and its follower bindings.
type CopierHandler struct {
	copiers *service.CopierService
	trades  *service.TradeService
	logger  *slog.Logger
}

// NewCopierHandler creates a CopierHandler.
func NewCopierHandler(copiers *service.CopierService, trades *service.TradeService, logger *slog.Logger) *CopierHandler {
	return &CopierHandler{copiers: copiers, trades: trades, logger: logger}
}

type copierRequest struct {
	Name               string `json:"name"`
	MasterAccountID    string `json:"master_account_id"`
	LatencyToleranceMs int    `json:"latency_tolerance_ms"`
	CopyEntries        bool   `json:"copy_entries"`
	CopyExits          bool   `json:"copy_exits"`
	CopyModifications  bool   `json:"copy_modifications"`
}

func (req copierRequest) params() service.CopierParams {
	return service.CopierParams{
		Name:               req.Name,
		MasterAccountID:    req.MasterAccountID,
		LatencyToleranceMs: req.LatencyToleranceMs,
		CopyEntries:        req.CopyEntries,
		CopyExits:          req.CopyExits,
		CopyModifications:  req.CopyModifications,
	}
}

type copierResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	MasterAccountID    string    `json:"master_account_id"`
	Status             string    `json:"status"`
	LatencyToleranceMs int       `json:"latency_tolerance_ms"`
	CopyEntries        bool      `json:"copy_entries"`
	CopyExits          bool      `json:"copy_exits"`
	CopyModifications  bool      `json:"copy_modifications"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toCopierResponse(c domain.Copier) copierResponse {
	return copierResponse{
		ID:                 c.ID,
		Name:               c.Name,
		MasterAccountID:    c.MasterAccountID,
		Status:             string(c.Status),
		LatencyToleranceMs: c.LatencyToleranceMs,
		CopyEntries:        c.CopyEntries,
		CopyExits:          c.CopyExits,
		CopyModifications:  c.CopyModifications,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

type slaveRequest struct {
	SlaveAccountID  string   `json:"slave_account_id"`
	ScalingType     string   `json:"scaling_type"`
	FixedContracts  *int     `json:"fixed_contracts"`
	PercentageScale *float64 `json:"percentage_scale"`
	MaxContracts    *int     `json:"max_contracts"`
	DailyLossLimit  *float64 `json:"daily_loss_limit"`
	AutoDisable     bool     `json:"auto_disable"`
}

func (req slaveRequest) params() service.SlaveParams {
	return service.SlaveParams{
		SlaveAccountID:  req.SlaveAccountID,
		ScalingType:     domain.ScalingType(req.ScalingType),
		FixedContracts:  req.FixedContracts,
		PercentageScale: req.PercentageScale,
		MaxContracts:    req.MaxContracts,
		DailyLossLimit:  req.DailyLossLimit,
		AutoDisable:     req.AutoDisable,
	}
}

type slaveResponse struct {
	ID              string    `json:"id"`
	CopierID        string    `json:"copier_id"`
	SlaveAccountID  string    `json:"slave_account_id"`
	ScalingType     string    `json:"scaling_type"`
	FixedContracts  *int      `json:"fixed_contracts,omitempty"`
	PercentageScale *float64  `json:"percentage_scale,omitempty"`
	MaxContracts    *int      `json:"max_contracts,omitempty"`
	DailyLossLimit  *float64  `json:"daily_loss_limit,omitempty"`
	AutoDisable     bool      `json:"auto_disable"`
	IsActive        bool      `json:"is_active"`
	DisabledReason  string    `json:"disabled_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toSlaveResponse(c domain.CopierAccountConfig) slaveResponse {
	return slaveResponse{
		ID:              c.ID,
		CopierID:        c.CopierID,
		SlaveAccountID:  c.SlaveAccountID,
		ScalingType:     string(c.ScalingType),
		FixedContracts:  c.FixedContracts,
		PercentageScale: c.PercentageScale,
		MaxContracts:    c.MaxContracts,
		DailyLossLimit:  c.DailyLossLimit,
		AutoDisable:     c.AutoDisable,
		IsActive:        c.IsActive,
		DisabledReason:  c.DisabledReason,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// List returns the caller's copiers.
// GET /api/copiers
func (h *CopierHandler) List(w http.ResponseWriter, r *http.Request) {
	copiers, err := h.copiers.List(r.Context(), callerID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]copierResponse, 0, len(copiers))
	for _, c := range copiers {
		out = append(out, toCopierResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"copiers": out, "count": len(out)})
}

// Create registers a new copier in the STOPPED state.
// POST /api/copiers
func (h *CopierHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req copierRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	copier, err := h.copiers.Create(r.Context(), callerID(r), req.params())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCopierResponse(copier))
}

// Get returns one copier.
// GET /api/copiers/{id}
func (h *CopierHandler) Get(w http.ResponseWriter, r *http.Request) {
	copier, err := h.copiers.Get(r.Context(), pathParam(r, "id"), callerID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCopierResponse(copier))
}

// Update rewrites the copier's settings.
// PUT /api/copiers/{id}
func (h *CopierHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req copierRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	copier, err := h.copiers.Update(r.Context(), pathParam(r, "id"), callerID(r), req.params())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCopierResponse(copier))
}

// Delete removes the copier. Running copiers must be stopped first.
// DELETE /api/copiers/{id}
func (h *CopierHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.copiers.Delete(r.Context(), pathParam(r, "id"), callerID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Start activates replication.
// POST /api/copiers/{id}/start
func (h *CopierHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.copiers.Start, "started")
}

// Stop halts replication.
// POST /api/copiers/{id}/stop
func (h *CopierHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.copiers.Stop, "stopped")
}

// Pause suspends fan-out while keeping the master subscription warm.
// POST /api/copiers/{id}/pause
func (h *CopierHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.copiers.Pause, "paused")
}

func (h *CopierHandler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id, userID string) error, status string) {
	id := pathParam(r, "id")
	if err := op(r.Context(), id, callerID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "copier_id": id})
}

// ListSlaves returns the copier's follower bindings.
// GET /api/copiers/{id}/slaves
func (h *CopierHandler) ListSlaves(w http.ResponseWriter, r *http.Request) {
	configs, err := h.copiers.ListSlaves(r.Context(), pathParam(r, "id"), callerID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]slaveResponse, 0, len(configs))
	for _, c := range configs {
		out = append(out, toSlaveResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"slaves": out, "count": len(out)})
}

// AddSlave binds a follower account to the copier.
// POST /api/copiers/{id}/slaves
func (h *CopierHandler) AddSlave(w http.ResponseWriter, r *http.Request) {
	var req slaveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg, err := h.copiers.AddSlave(r.Context(), pathParam(r, "id"), callerID(r), req.params())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSlaveResponse(cfg))
}

// UpdateSlave rewrites a follower binding and reactivates it if disabled.
// PUT /api/copiers/{id}/slaves/{accountId}
func (h *CopierHandler) UpdateSlave(w http.ResponseWriter, r *http.Request) {
	var req slaveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg, err := h.copiers.UpdateSlave(r.Context(),
		pathParam(r, "id"), pathParam(r, "accountId"), callerID(r), req.params())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlaveResponse(cfg))
}

// RemoveSlave unbinds the follower from the copier.
// DELETE /api/copiers/{id}/slaves/{accountId}
func (h *CopierHandler) RemoveSlave(w http.ResponseWriter, r *http.Request) {
	err := h.copiers.RemoveSlave(r.Context(), pathParam(r, "id"), pathParam(r, "accountId"), callerID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ListTrades returns trades produced or observed by the copier.
// GET /api/copiers/{id}/trades
func (h *CopierHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.ListByCopier(r.Context(), pathParam(r, "id"), callerID(r), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": toTradeResponses(trades), "count": len(trades)})
}

// ListMappings returns the copier's replication records.
// GET /api/copiers/{id}/mappings
func (h *CopierHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.trades.Mappings(r.Context(), pathParam(r, "id"), callerID(r), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mappings": toMappingResponses(mappings), "count": len(mappings)})
}

// ListLogs returns the copier's audit entries.
// GET /api/copiers/{id}/logs
func (h *CopierHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.trades.Logs(r.Context(), pathParam(r, "id"), callerID(r), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": toLogResponses(logs), "count": len(logs)})
}
