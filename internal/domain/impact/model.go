package impact

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/gameevent"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	"github.com/valyala/bytebufferpool"
)

// FantasyImpact is one scoring event as it lands on one owned player in one league.
type FantasyImpact struct {
	LeagueID         string                 `json:"league_id"`
	TeamID           string                 `json:"team_id"`
	TeamName         string                 `json:"team_name"`
	Platform         roster.Platform        `json:"platform"`
	PlatformPlayerID string                 `json:"platform_player_id"`
	Player           gameevent.PlayerRef    `json:"player"`
	Kind             gameevent.EventKind    `json:"kind"`
	Points           float64                `json:"points"`
	IsStarter        bool                   `json:"is_starter"`
	Description      string                 `json:"description"`
	Event            gameevent.ScoringEvent `json:"event"`
}

// StoredEvent is the flattened, display-ready projection of a FantasyImpact.
type StoredEvent struct {
	ID         string              `json:"id"`
	Hash       string              `json:"hash"`
	LeagueID   string              `json:"league_id"`
	TeamID     string              `json:"team_id"`
	TeamName   string              `json:"team_name"`
	Platform   roster.Platform     `json:"platform"`
	PlayerName string              `json:"player_name"`
	Position   string              `json:"position"`
	Team       string              `json:"team"`
	Action     string              `json:"action"`
	Kind       gameevent.EventKind `json:"kind"`
	Points     float64             `json:"points"`
	IsStarter  bool                `json:"is_starter"`
	GameID     string              `json:"game_id"`
	EventID    string              `json:"event_id"`
	Timestamp  time.Time           `json:"timestamp"`
	StoredAt   time.Time           `json:"stored_at"`
	TTLSeconds int64               `json:"ttl_seconds"`
}

func (e StoredEvent) ExpiresAt() time.Time {
	return e.StoredAt.Add(time.Duration(e.TTLSeconds) * time.Second)
}

func (e StoredEvent) Expired(now time.Time) bool {
	return e.TTLSeconds > 0 && !now.Before(e.ExpiresAt())
}

// Project flattens an impact into a StoredEvent stamped with storedAt and ttl.
func Project(in FantasyImpact, id string, storedAt time.Time, ttl time.Duration) StoredEvent {
	name := in.Player.Name
	out := StoredEvent{
		ID:         id,
		LeagueID:   in.LeagueID,
		TeamID:     in.TeamID,
		TeamName:   in.TeamName,
		Platform:   in.Platform,
		PlayerName: name,
		Position:   in.Player.Position,
		Team:       in.Player.Team,
		Action:     in.Description,
		Kind:       in.Kind,
		Points:     in.Points,
		IsStarter:  in.IsStarter,
		GameID:     in.Event.GameID,
		EventID:    in.Event.ID,
		Timestamp:  in.Event.DetectedAt,
		StoredAt:   storedAt,
		TTLSeconds: int64(ttl / time.Second),
	}
	out.Hash = DedupKey{
		Platform:   out.Platform,
		LeagueID:   out.LeagueID,
		EventID:    out.EventID,
		PlayerName: out.PlayerName,
		Action:     out.Action,
		Timestamp:  out.Timestamp,
		Points:     out.Points,
	}.Hash()
	return out
}

// DedupKey holds the fields two stored events must share to be the same
// logical event.
type DedupKey struct {
	Platform   roster.Platform
	LeagueID   string
	EventID    string
	PlayerName string
	Action     string
	Timestamp  time.Time
	Points     float64
}

// Hash fingerprints the key with points rounded to two decimals. When the
// upstream event ID (game:play) is known it replaces the timestamp, so a
// play detected again after a cursor reset hashes the same.
func (k DedupKey) Hash() string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString(string(k.Platform))
	_ = buf.WriteByte('|')
	_, _ = buf.WriteString(k.LeagueID)
	_ = buf.WriteByte('|')
	_, _ = buf.WriteString(k.PlayerName)
	_ = buf.WriteByte('|')
	_, _ = buf.WriteString(k.Action)
	_ = buf.WriteByte('|')
	if k.EventID != "" {
		_, _ = buf.WriteString("event:")
		_, _ = buf.WriteString(k.EventID)
	} else {
		buf.B = k.Timestamp.UTC().AppendFormat(buf.B, time.RFC3339Nano)
	}
	_ = buf.WriteByte('|')
	buf.B = strconv.AppendFloat(buf.B, k.Points, 'f', 2, 64)

	sum := sha256.Sum256(buf.B)
	return hex.EncodeToString(sum[:])
}
