package identity

import (
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
)

const (
	// CandidateThreshold admits a name into the fuzzy candidate pool.
	CandidateThreshold = 0.6
	// AcceptThreshold accepts a fuzzy candidate that also matches team and position.
	AcceptThreshold = 0.7
)

// PlayerMapping is the cross-platform identity of one real player.
type PlayerMapping struct {
	Key         string                     `json:"key"`
	Name        string                     `json:"name"`
	Team        string                     `json:"team"`
	Position    string                     `json:"position"`
	PlatformIDs map[roster.Platform]string `json:"platform_ids"`
	AltNames    []string                   `json:"alt_names,omitempty"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// NewPlayerMapping builds a mapping with normalised identity fields.
func NewPlayerMapping(name, team, position string, now time.Time) PlayerMapping {
	return PlayerMapping{
		Key:         MakeKey(name, team, position),
		Name:        name,
		Team:        NormalizeTeam(team),
		Position:    NormalizePosition(position),
		PlatformIDs: make(map[roster.Platform]string),
		UpdatedAt:   now,
	}
}

// AddAltName records an alternate spelling once.
func (m *PlayerMapping) AddAltName(name string) {
	if name == "" || NormalizeName(name) == NormalizeName(m.Name) {
		return
	}
	for _, existing := range m.AltNames {
		if NormalizeName(existing) == NormalizeName(name) {
			return
		}
	}
	m.AltNames = append(m.AltNames, name)
}

// SameSlot reports whether team and position match after normalisation.
func (m PlayerMapping) SameSlot(team, position string) bool {
	return m.Team == NormalizeTeam(team) && m.Position == NormalizePosition(position)
}
