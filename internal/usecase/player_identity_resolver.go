package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/gameevent"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/identity"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/kvstore"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	"github.com/riskibarqy/fantasy-livefeed/internal/observability"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
)

// providerLink remembers which mapping an upstream player id resolved to.
type providerLink struct {
	Key        string    `json:"key"`
	Confidence float64   `json:"confidence"`
	Team       string    `json:"team"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type directorySnapshot struct {
	Players  []gameevent.ProviderPlayer `json:"players"`
	LoadedAt time.Time                  `json:"loaded_at"`
}

// IdentityMatch is the outcome of one lookup.
type IdentityMatch struct {
	Mapping    identity.PlayerMapping `json:"mapping"`
	Confidence float64                `json:"confidence"`
	Method     string                 `json:"method"`
}

// PlayerIdentityResolver maps upstream player references onto rostered
// players across every tracked league.
type PlayerIdentityResolver struct {
	mu sync.RWMutex

	mappings          map[string]*identity.PlayerMapping
	owners            map[string][]roster.OwnedPlayer
	directory         map[string]gameevent.ProviderPlayer
	directoryLoadedAt time.Time
	links             map[string]providerLink

	kv      kvstore.Repository
	logger  *logging.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewPlayerIdentityResolver(kv kvstore.Repository, logger *logging.Logger, metrics *observability.Metrics) *PlayerIdentityResolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &PlayerIdentityResolver{
		mappings:  make(map[string]*identity.PlayerMapping),
		owners:    make(map[string][]roster.OwnedPlayer),
		directory: make(map[string]gameevent.ProviderPlayer),
		links:     make(map[string]providerLink),
		kv:        kv,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Restore reloads the player directory and provider links. Corrupt blobs are
// deleted and rebuilt on the next directory refresh.
func (r *PlayerIdentityResolver) Restore(ctx context.Context) error {
	if r.kv == nil {
		return nil
	}

	var dir directorySnapshot
	if _, err := kvstore.GetJSON(ctx, r.kv, kvstore.KeyPlayerDirectory, &dir); err != nil {
		if !errors.Is(err, kvstore.ErrCorrupt) {
			return fmt.Errorf("restore player directory: %w", err)
		}
		r.logger.WarnContext(ctx, "player directory corrupt, clearing", "error", err)
		if err := r.kv.Delete(ctx, kvstore.KeyPlayerDirectory); err != nil {
			return fmt.Errorf("clear player directory: %w", err)
		}
		dir = directorySnapshot{}
	}

	links := make(map[string]providerLink)
	if _, err := kvstore.GetJSON(ctx, r.kv, kvstore.KeyPlayerLinks, &links); err != nil {
		if !errors.Is(err, kvstore.ErrCorrupt) {
			return fmt.Errorf("restore player links: %w", err)
		}
		r.logger.WarnContext(ctx, "player links corrupt, clearing", "error", err)
		if err := r.kv.Delete(ctx, kvstore.KeyPlayerLinks); err != nil {
			return fmt.Errorf("clear player links: %w", err)
		}
		links = make(map[string]providerLink)
	}

	r.mu.Lock()
	r.directory = indexDirectory(dir.Players)
	r.directoryLoadedAt = dir.LoadedAt
	r.links = links
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "identity state restored", "directory_players", len(dir.Players), "links", len(links))
	return nil
}

// BuildIndex fully rebuilds the mapping index from the owned players of every
// league. Links to mappings that no longer exist are dropped.
func (r *PlayerIdentityResolver) BuildIndex(ctx context.Context, owned []roster.OwnedPlayer) {
	now := r.now()
	mappings := make(map[string]*identity.PlayerMapping, len(owned))
	owners := make(map[string][]roster.OwnedPlayer, len(owned))

	for _, op := range owned {
		p := op.Player
		if p.Name == "" {
			r.logger.WarnContext(ctx, "rostered player without name skipped",
				"league_id", op.LeagueID,
				"platform_player_id", p.PlatformPlayerID,
			)
			continue
		}
		key := identity.MakeKey(p.Name, p.Team, p.Position)
		mapping, ok := mappings[key]
		if !ok {
			m := identity.NewPlayerMapping(p.Name, p.Team, p.Position, now)
			mapping = &m
			mappings[key] = mapping
		}
		if p.PlatformPlayerID != "" {
			existing, has := mapping.PlatformIDs[op.Platform]
			switch {
			case !has:
				mapping.PlatformIDs[op.Platform] = p.PlatformPlayerID
			case existing != p.PlatformPlayerID:
				r.logger.WarnContext(ctx, "conflicting platform id for mapping, keeping first",
					"mapping_key", key,
					"platform", string(op.Platform),
					"kept", existing,
					"ignored", p.PlatformPlayerID,
				)
			}
		}
		mapping.AddAltName(p.Name)
		owners[key] = append(owners[key], op)
	}

	r.mu.Lock()
	r.mappings = mappings
	r.owners = owners
	dropped := 0
	for id, link := range r.links {
		if _, ok := mappings[link.Key]; !ok {
			delete(r.links, id)
			dropped++
		}
	}
	links := r.copyLinksLocked()
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "identity index rebuilt", "mappings", len(mappings), "owned_players", len(owned), "links_dropped", dropped)
	if dropped > 0 {
		r.persistLinks(ctx, links)
	}
}

// SetDirectory replaces the upstream player directory.
func (r *PlayerIdentityResolver) SetDirectory(ctx context.Context, players []gameevent.ProviderPlayer) {
	now := r.now()
	r.mu.Lock()
	r.directory = indexDirectory(players)
	r.directoryLoadedAt = now
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "player directory refreshed", "players", len(players))
	if r.kv == nil {
		return
	}
	if err := kvstore.SetJSON(ctx, r.kv, kvstore.KeyPlayerDirectory, directorySnapshot{Players: players, LoadedAt: now}); err != nil {
		r.logger.WarnContext(ctx, "persist player directory failed", "error", err)
	}
}

// DirectoryAge reports how old the directory is; ok=false when never loaded.
func (r *PlayerIdentityResolver) DirectoryAge() (time.Duration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.directoryLoadedAt.IsZero() || len(r.directory) == 0 {
		return 0, false
	}
	return r.now().Sub(r.directoryLoadedAt), true
}

// Resolve returns every owned player the reference maps to, across leagues.
// An empty result means the player is not rostered anywhere.
func (r *PlayerIdentityResolver) Resolve(ctx context.Context, ref gameevent.PlayerRef) []roster.OwnedPlayer {
	match, ok := r.Lookup(ctx, ref)
	if !ok {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	owners := r.owners[match.Mapping.Key]
	out := make([]roster.OwnedPlayer, len(owners))
	copy(out, owners)
	return out
}

// ResolveProviderID resolves a bare upstream id through the directory.
func (r *PlayerIdentityResolver) ResolveProviderID(ctx context.Context, providerID string) []roster.OwnedPlayer {
	return r.Resolve(ctx, gameevent.PlayerRef{ProviderID: providerID})
}

// FindByNameTeamPosition returns the mapping for a triple, exact first and
// fuzzy second.
func (r *PlayerIdentityResolver) FindByNameTeamPosition(name, team, position string) (identity.PlayerMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.mappings[identity.MakeKey(name, team, position)]; ok {
		return *m, true
	}
	if m, _, ok := r.fuzzyLocked(name, team, position); ok {
		return *m, true
	}
	return identity.PlayerMapping{}, false
}

// Lookup resolves ref to a mapping: exact key, then a remembered provider
// link, then fuzzy name similarity constrained to team and position.
func (r *PlayerIdentityResolver) Lookup(ctx context.Context, ref gameevent.PlayerRef) (IdentityMatch, bool) {
	r.mu.RLock()
	ref = r.fillFromDirectoryLocked(ref)
	if ref.Name == "" {
		r.mu.RUnlock()
		r.metrics.IdentityLookup("miss")
		return IdentityMatch{}, false
	}

	key := identity.MakeKey(ref.Name, ref.Team, ref.Position)
	if m, ok := r.mappings[key]; ok {
		out := IdentityMatch{Mapping: *m, Confidence: 1, Method: "exact"}
		r.mu.RUnlock()
		r.metrics.IdentityLookup("exact")
		r.rememberLink(ctx, ref, out)
		return out, true
	}

	if link, ok := r.links[ref.ProviderID]; ok && ref.ProviderID != "" && link.Team == identity.NormalizeTeam(ref.Team) {
		if m, ok := r.mappings[link.Key]; ok {
			out := IdentityMatch{Mapping: *m, Confidence: link.Confidence, Method: "link"}
			r.mu.RUnlock()
			r.metrics.IdentityLookup("link")
			return out, true
		}
	}

	m, score, ok := r.fuzzyLocked(ref.Name, ref.Team, ref.Position)
	var out IdentityMatch
	if ok {
		out = IdentityMatch{Mapping: *m, Confidence: score, Method: "fuzzy"}
	}
	r.mu.RUnlock()

	if !ok {
		r.metrics.IdentityLookup("miss")
		return IdentityMatch{}, false
	}
	r.metrics.IdentityLookup("fuzzy")
	r.logger.DebugContext(ctx, "fuzzy identity match",
		"name", ref.Name,
		"matched", out.Mapping.Name,
		"confidence", score,
	)
	r.rememberLink(ctx, ref, out)
	return out, true
}

// fuzzyLocked scores every mapping; names at or above the candidate threshold
// enter the pool, and the best candidate that clears the accept threshold
// with the same team and position wins.
func (r *PlayerIdentityResolver) fuzzyLocked(name, team, position string) (*identity.PlayerMapping, float64, bool) {
	target := identity.NormalizeName(name)
	if target == "" {
		return nil, 0, false
	}

	type candidate struct {
		mapping *identity.PlayerMapping
		score   float64
	}
	var pool []candidate
	for _, m := range r.mappings {
		best := identity.Similarity(target, identity.NormalizeName(m.Name))
		for _, alt := range m.AltNames {
			if s := identity.Similarity(target, identity.NormalizeName(alt)); s > best {
				best = s
			}
		}
		if best >= identity.CandidateThreshold {
			pool = append(pool, candidate{mapping: m, score: best})
		}
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].score == pool[j].score {
			return pool[i].mapping.Key < pool[j].mapping.Key
		}
		return pool[i].score > pool[j].score
	})

	for _, c := range pool {
		if c.score < identity.AcceptThreshold {
			break
		}
		if c.mapping.SameSlot(team, position) {
			return c.mapping, c.score, true
		}
	}
	return nil, 0, false
}

func (r *PlayerIdentityResolver) fillFromDirectoryLocked(ref gameevent.PlayerRef) gameevent.PlayerRef {
	if ref.ProviderID == "" {
		return ref
	}
	entry, ok := r.directory[ref.ProviderID]
	if !ok {
		return ref
	}
	if ref.Name == "" {
		ref.Name = entry.Name
	}
	if ref.Team == "" {
		ref.Team = entry.Team
	}
	if ref.Position == "" {
		ref.Position = entry.Position
	}
	return ref
}

// rememberLink stores provider id -> mapping. An existing link is replaced
// only by a higher-confidence match or when the player's team changed.
func (r *PlayerIdentityResolver) rememberLink(ctx context.Context, ref gameevent.PlayerRef, match IdentityMatch) {
	if ref.ProviderID == "" {
		return
	}
	team := identity.NormalizeTeam(ref.Team)

	r.mu.Lock()
	existing, ok := r.links[ref.ProviderID]
	if ok && existing.Key == match.Mapping.Key && existing.Confidence >= match.Confidence {
		r.mu.Unlock()
		return
	}
	if ok && existing.Confidence >= match.Confidence && existing.Team == team {
		r.mu.Unlock()
		return
	}
	r.links[ref.ProviderID] = providerLink{
		Key:        match.Mapping.Key,
		Confidence: match.Confidence,
		Team:       team,
		UpdatedAt:  r.now(),
	}
	links := r.copyLinksLocked()
	r.mu.Unlock()

	r.persistLinks(ctx, links)
}

func (r *PlayerIdentityResolver) copyLinksLocked() map[string]providerLink {
	out := make(map[string]providerLink, len(r.links))
	for k, v := range r.links {
		out[k] = v
	}
	return out
}

func (r *PlayerIdentityResolver) persistLinks(ctx context.Context, links map[string]providerLink) {
	if r.kv == nil {
		return
	}
	if err := kvstore.SetJSON(ctx, r.kv, kvstore.KeyPlayerLinks, links); err != nil {
		r.logger.WarnContext(ctx, "persist player links failed", "error", err)
	}
}

// MappingCount reports the number of indexed mappings.
func (r *PlayerIdentityResolver) MappingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mappings)
}

func indexDirectory(players []gameevent.ProviderPlayer) map[string]gameevent.ProviderPlayer {
	out := make(map[string]gameevent.ProviderPlayer, len(players))
	for _, p := range players {
		if p.ID == "" {
			continue
		}
		out[p.ID] = p
	}
	return out
}
