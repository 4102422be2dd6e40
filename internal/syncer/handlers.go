package syncer

import (
	"errors"
	"net/http"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes a manual sync trigger.
type Handler struct {
	Syncer *Syncer
}

// Trigger runs one sync batch and reports the outcome.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	report, err := h.Syncer.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, ErrBusy) {
			common.JSONError(w, http.StatusConflict, "SYNC_IN_PROGRESS", "order sync already running", nil)
			return
		}
		common.JSONError(w, http.StatusBadGateway, "SYNC_FAILED", "order sync failed", nil)
		return
	}
	common.Data(w, http.StatusOK, report)
}
