package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, metrics http.Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	mux.HandleFunc("GET /v1/status", handler.GetStatus)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
}

func registerEventRoutes(mux *http.ServeMux, handler *Handler, stream *StreamHub) {
	mux.HandleFunc("GET /v1/events/recent", handler.ListRecentEvents)
	mux.HandleFunc("GET /v1/events/stats", handler.GetEventStats)
	mux.HandleFunc("GET /v1/events/export", handler.ExportEvents)
	mux.HandleFunc("GET /v1/leagues/{leagueID}/events", handler.ListLeagueEvents)
	mux.HandleFunc("GET /v1/leagues/{leagueID}/roster", handler.GetLeagueRoster)
	if stream != nil {
		mux.HandleFunc("GET /v1/events/stream", stream.ServeWS)
	}
}

func registerOperatorRoutes(mux *http.ServeMux, handler *Handler, operatorToken string) {
	mux.Handle("POST /v1/internal/polling/poll", RequireOperatorToken(operatorToken, http.HandlerFunc(handler.PollNow)))
	mux.Handle("POST /v1/internal/polling/emergency-stop", RequireOperatorToken(operatorToken, http.HandlerFunc(handler.EmergencyStop)))
	mux.Handle("POST /v1/internal/polling/resume", RequireOperatorToken(operatorToken, http.HandlerFunc(handler.Resume)))
	mux.Handle("POST /v1/internal/rosters/reload", RequireOperatorToken(operatorToken, http.HandlerFunc(handler.ReloadRosters)))
}
