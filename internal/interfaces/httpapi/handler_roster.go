package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	"github.com/riskibarqy/fantasy-livefeed/internal/usecase"
)

type leagueRosterDTO struct {
	LeagueID     string                 `json:"league_id"`
	Platform     roster.Platform        `json:"platform"`
	TeamID       string                 `json:"team_id"`
	TeamName     string                 `json:"team_name"`
	Players      []roster.FantasyPlayer `json:"players"`
	Coefficients map[string]float64     `json:"coefficients"`
	CustomRules  map[string]float64     `json:"custom_rules,omitempty"`
	LoadedAt     time.Time              `json:"loaded_at"`
	Stale        bool                   `json:"stale"`
}

func (h *Handler) GetLeagueRoster(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetLeagueRoster")
	defer span.End()

	if h.rosters == nil {
		writeError(ctx, w, fmt.Errorf("%w: roster cache is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	leagueID := strings.TrimSpace(r.PathValue("leagueID"))
	platform, err := parsePlatformQuery(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var snap roster.Snapshot
	if platform != "" {
		var ok bool
		if snap, ok = h.rosters.Snapshot(platform, leagueID); !ok {
			writeError(ctx, w, fmt.Errorf("%w: no roster loaded for %s league %q", usecase.ErrNotFound, platform, leagueID))
			return
		}
	} else {
		matches := h.rosters.FindLeague(leagueID)
		switch len(matches) {
		case 0:
			writeError(ctx, w, fmt.Errorf("%w: no roster loaded for league %q", usecase.ErrNotFound, leagueID))
			return
		case 1:
			snap = matches[0]
		default:
			writeError(ctx, w, fmt.Errorf("%w: league %q exists on several platforms, pass ?platform=", usecase.ErrInvalidInput, leagueID))
			return
		}
	}

	players := snap.Roster.Players
	if players == nil {
		players = []roster.FantasyPlayer{}
	}
	writeSuccess(ctx, w, http.StatusOK, leagueRosterDTO{
		LeagueID:     snap.Roster.LeagueID,
		Platform:     snap.Roster.Platform,
		TeamID:       snap.Roster.TeamID,
		TeamName:     snap.Roster.TeamName,
		Players:      players,
		Coefficients: snap.Settings.Coefficients,
		CustomRules:  snap.Settings.CustomRules,
		LoadedAt:     snap.LoadedAt,
		Stale:        h.rosters.IsStale(snap.Config.Platform, leagueID),
	})
}

// parsePlatformQuery reads the optional ?platform= filter.
func parsePlatformQuery(r *http.Request) (roster.Platform, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("platform"))
	if raw == "" {
		return "", nil
	}
	platform, err := roster.ParsePlatform(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", usecase.ErrInvalidInput, err)
	}
	return platform, nil
}
