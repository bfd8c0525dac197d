package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/riskibarqy/fantasy-livefeed/internal/usecase"
)

type emergencyStopRequest struct {
	Reason string `json:"reason" validate:"max=200"`
}

func (h *Handler) PollNow(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.PollNow")
	defer span.End()

	if h.control == nil {
		writeError(ctx, w, fmt.Errorf("%w: operator controls are not configured", usecase.ErrDependencyUnavailable))
		return
	}

	result, err := h.control.PollNow(ctx)
	if err != nil && isPollRejection(err) {
		h.logger.WarnContext(ctx, "manual poll rejected", "error", err)
		writeError(ctx, w, err)
		return
	}
	if err != nil {
		// The cycle ran; per-game failures are listed in the result.
		h.logger.WarnContext(ctx, "manual poll finished with errors", "errors", len(result.Errors), "error", err)
	}

	writeSuccess(ctx, w, http.StatusOK, result)
}

func (h *Handler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.EmergencyStop")
	defer span.End()

	if h.control == nil {
		writeError(ctx, w, fmt.Errorf("%w: operator controls are not configured", usecase.ErrDependencyUnavailable))
		return
	}

	req, err := decodeJSONBody[emergencyStopRequest](r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "operator request"
	}
	h.control.EmergencyStop(ctx, reason)
	h.logger.WarnContext(ctx, "emergency stop requested by operator", "reason", reason)

	writeSuccess(ctx, w, http.StatusOK, map[string]any{"emergency_stopped": true, "reason": reason})
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Resume")
	defer span.End()

	if h.control == nil {
		writeError(ctx, w, fmt.Errorf("%w: operator controls are not configured", usecase.ErrDependencyUnavailable))
		return
	}

	if err := h.control.Resume(ctx); err != nil {
		h.logger.WarnContext(ctx, "resume polling failed", "error", err)
		writeError(ctx, w, err)
		return
	}
	h.logger.InfoContext(ctx, "polling resumed by operator")

	writeSuccess(ctx, w, http.StatusOK, map[string]any{"emergency_stopped": false})
}

func (h *Handler) ReloadRosters(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ReloadRosters")
	defer span.End()

	if h.control == nil {
		writeError(ctx, w, fmt.Errorf("%w: operator controls are not configured", usecase.ErrDependencyUnavailable))
		return
	}

	result, err := h.control.ReloadRosters(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "roster reload failed", "failed", result.FailedCount, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, result)
}

func isPollRejection(err error) bool {
	return errors.Is(err, usecase.ErrPollTooSoon) ||
		errors.Is(err, usecase.ErrPollInFlight) ||
		errors.Is(err, usecase.ErrEmergencyStopped)
}
