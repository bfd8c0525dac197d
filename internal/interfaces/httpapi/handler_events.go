package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/impact"
	"github.com/riskibarqy/fantasy-livefeed/internal/usecase"
)

type eventListDTO struct {
	LeagueID      string               `json:"league_id,omitempty"`
	WindowSeconds int64                `json:"window_seconds"`
	Count         int                  `json:"count"`
	Events        []impact.StoredEvent `json:"events"`
}

func newEventListDTO(leagueID string, window time.Duration, events []impact.StoredEvent) eventListDTO {
	if events == nil {
		events = []impact.StoredEvent{}
	}
	return eventListDTO{
		LeagueID:      leagueID,
		WindowSeconds: int64(window / time.Second),
		Count:         len(events),
		Events:        events,
	}
}

func (h *Handler) ListRecentEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListRecentEvents")
	defer span.End()

	if h.store == nil {
		writeError(ctx, w, fmt.Errorf("%w: event store is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	window, err := h.parseWindow(ctx, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, newEventListDTO("", window, h.store.Recent(window)))
}

func (h *Handler) ListLeagueEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListLeagueEvents")
	defer span.End()

	if h.store == nil {
		writeError(ctx, w, fmt.Errorf("%w: event store is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	leagueID := strings.TrimSpace(r.PathValue("leagueID"))
	if leagueID == "" {
		writeError(ctx, w, fmt.Errorf("%w: league id is required", usecase.ErrInvalidInput))
		return
	}
	window, err := h.parseWindow(ctx, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	platform, err := parsePlatformQuery(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, newEventListDTO(leagueID, window, h.store.ByLeague(platform, leagueID, window)))
}

func (h *Handler) GetEventStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetEventStats")
	defer span.End()

	if h.store == nil {
		writeError(ctx, w, fmt.Errorf("%w: event store is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	writeSuccess(ctx, w, http.StatusOK, h.store.Stats())
}

// ExportEvents returns the raw event array as a download, outside the
// response envelope.
func (h *Handler) ExportEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ExportEvents")
	defer span.End()

	if h.store == nil {
		writeError(ctx, w, fmt.Errorf("%w: event store is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	payload, err := h.store.Export()
	if err != nil {
		h.logger.ErrorContext(ctx, "export events failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="fantasy-events.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
