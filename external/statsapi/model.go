package statsapi

import (
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/gameevent"
)

// flexString accepts ids the provider sends either as strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(raw)
	return nil
}

type gamesResponse struct {
	Games []gameItem `json:"games"`
}

type gameItem struct {
	ID        flexString `json:"id"`
	Status    string     `json:"status"`
	HomeTeam  string     `json:"home_team"`
	AwayTeam  string     `json:"away_team"`
	Quarter   int        `json:"quarter"`
	Clock     string     `json:"clock"`
	UpdatedAt string     `json:"updated_at"`
}

func (g gameItem) toDomain() gameevent.Game {
	out := gameevent.Game{
		ID:       string(g.ID),
		Status:   g.Status,
		HomeTeam: g.HomeTeam,
		AwayTeam: g.AwayTeam,
		Quarter:  g.Quarter,
		Clock:    g.Clock,
	}
	if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(g.UpdatedAt)); err == nil {
		out.UpdatedAt = ts
	}
	return out
}

type playsResponse struct {
	Plays []playItem `json:"plays"`
}

type playItem struct {
	ID          flexString `json:"id"`
	Sequence    flexString `json:"sequence"`
	PlayerID    flexString `json:"player_id"`
	PlayerName  string     `json:"player_name"`
	Team        string     `json:"team"`
	Position    string     `json:"position"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	Yards       int        `json:"yards"`
	Quarter     int        `json:"quarter"`
	Clock       string     `json:"clock"`
	Scoring     bool       `json:"scoring"`
}

func (p playItem) toDomain() gameevent.Play {
	seq, _ := strconv.ParseInt(string(p.Sequence), 10, 64)
	return gameevent.Play{
		ID:          string(p.ID),
		Sequence:    seq,
		PlayerID:    string(p.PlayerID),
		PlayerName:  strings.TrimSpace(p.PlayerName),
		Team:        strings.TrimSpace(p.Team),
		Position:    strings.TrimSpace(p.Position),
		Description: strings.TrimSpace(p.Description),
		Type:        strings.TrimSpace(p.Type),
		Yards:       p.Yards,
		Quarter:     p.Quarter,
		Clock:       p.Clock,
		Scoring:     p.Scoring,
	}
}

type playersResponse struct {
	Players []playerItem `json:"players"`
}

type playerItem struct {
	ID       flexString `json:"id"`
	Name     string     `json:"name"`
	Team     string     `json:"team"`
	Position string     `json:"position"`
}
