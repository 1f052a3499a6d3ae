package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"swapflow/pkg/engine"
	"swapflow/pkg/form"
)

type handlers struct {
	orch Orchestrator
	log  zerolog.Logger
}

// formRequest mirrors form.Patch with a refetch switch. Absent fields are
// left untouched, matching the partial-update semantics of the form.
type formRequest struct {
	IsFrom     *bool   `json:"isFrom,omitempty"`
	FromAmount *string `json:"fromAmount,omitempty"`
	ToAmount   *string `json:"toAmount,omitempty"`
	Wrapped    *bool   `json:"wrapped,omitempty"`
	FullRepay  *bool   `json:"fullRepay,omitempty"`
	Refetch    bool    `json:"refetch,omitempty"`
}

type confirmRequest struct {
	Confirmed bool `json:"confirmed"`
}

type txResponse struct {
	TxHash   string          `json:"txHash"`
	Snapshot engine.Snapshot `json:"snapshot"`
}

func (h *handlers) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Snapshot())
}

func (h *handlers) updateForm(w http.ResponseWriter, r *http.Request) {
	var req formRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	h.orch.UpdateFormValues(r.Context(), form.Patch{
		IsFrom:     req.IsFrom,
		FromAmount: req.FromAmount,
		ToAmount:   req.ToAmount,
		Wrapped:    req.Wrapped,
		FullRepay:  req.FullRepay,
	}, engine.UpdateOpts{Refetch: req.Refetch})
	h.orch.Wait()
	writeJSON(w, http.StatusOK, h.orch.Snapshot())
}

func (h *handlers) runApproval(w http.ResponseWriter, r *http.Request) {
	txHash, err := h.orch.RunApproval(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	h.orch.Wait()
	writeJSON(w, http.StatusOK, txResponse{TxHash: txHash, Snapshot: h.orch.Snapshot()})
}

func (h *handlers) runAction(w http.ResponseWriter, r *http.Request) {
	txHash, err := h.orch.RunAction(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse{TxHash: txHash, Snapshot: h.orch.Snapshot()})
}

func (h *handlers) reset(w http.ResponseWriter, _ *http.Request) {
	h.orch.ResetState()
	writeJSON(w, http.StatusOK, h.orch.Snapshot())
}

func (h *handlers) setMax(w http.ResponseWriter, r *http.Request) {
	if _, err := h.orch.SetMax(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.orch.Wait()
	writeJSON(w, http.StatusOK, h.orch.Snapshot())
}

func (h *handlers) confirmWarning(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	h.orch.ConfirmWarning(req.Confirmed)
	writeJSON(w, http.StatusOK, h.orch.Snapshot())
}
