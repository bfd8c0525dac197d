package fantasyplatform

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/fantasy"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/cache"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/riskibarqy/fantasy-livefeed/internal/usecase"
	"github.com/valyala/fasthttp"
)

const (
	defaultSleeperBaseURL = "https://api.sleeper.app/v1"
	sleeperPlayersKey     = "players:nfl"
)

type SleeperConfig struct {
	BaseURL    string
	Timeout    time.Duration
	PlayersTTL time.Duration
	Client     *fasthttp.Client
	Logger     *logging.Logger
}

// Sleeper reads public league data from the Sleeper API. The full NFL player
// directory is large, so it is cached and shared across leagues.
type Sleeper struct {
	http    transport
	baseURL string
	players *cache.Store[map[string]sleeperPlayer]
}

var _ roster.Provider = (*Sleeper)(nil)

func NewSleeper(cfg SleeperConfig) *Sleeper {
	ttl := cfg.PlayersTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sleeper{
		http:    newTransport(cfg.Client, cfg.Timeout, string(roster.PlatformSleeper), cfg.Logger),
		baseURL: trimBase(cfg.BaseURL, defaultSleeperBaseURL),
		players: cache.NewStore[map[string]sleeperPlayer](ttl),
	}
}

func (s *Sleeper) Platform() roster.Platform {
	return roster.PlatformSleeper
}

type sleeperLeague struct {
	LeagueID        string             `json:"league_id"`
	Name            string             `json:"name"`
	Season          string             `json:"season"`
	ScoringSettings map[string]float64 `json:"scoring_settings"`
}

type sleeperRoster struct {
	RosterID int      `json:"roster_id"`
	OwnerID  string   `json:"owner_id"`
	Players  []string `json:"players"`
	Starters []string `json:"starters"`
	Reserve  []string `json:"reserve"`
}

type sleeperUser struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Metadata    struct {
		TeamName string `json:"team_name"`
	} `json:"metadata"`
}

type sleeperPlayer struct {
	PlayerID  string `json:"player_id"`
	FullName  string `json:"full_name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Team      string `json:"team"`
	Position  string `json:"position"`
	Active    bool   `json:"active"`
}

func (p sleeperPlayer) name() string {
	if name := strings.TrimSpace(p.FullName); name != "" {
		return name
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (s *Sleeper) LoadRoster(ctx context.Context, league roster.LeagueConfig) (roster.FantasyRoster, error) {
	leagueID := strings.TrimSpace(league.LeagueID)
	if leagueID == "" {
		return roster.FantasyRoster{}, fmt.Errorf("%w: league id is required", usecase.ErrInvalidInput)
	}

	var rosters []sleeperRoster
	if err := s.http.getJSON(ctx, request{url: s.leagueURL(leagueID, "/rosters")}, &rosters); err != nil {
		return roster.FantasyRoster{}, fmt.Errorf("load sleeper rosters league_id=%s: %w", leagueID, err)
	}

	var owned *sleeperRoster
	for i := range rosters {
		if rosters[i].OwnerID == league.TeamID || strconv.Itoa(rosters[i].RosterID) == league.TeamID {
			owned = &rosters[i]
			break
		}
	}
	if owned == nil {
		return roster.FantasyRoster{}, fmt.Errorf("%w: sleeper team %s not in league %s", usecase.ErrNotFound, league.TeamID, leagueID)
	}

	var users []sleeperUser
	if err := s.http.getJSON(ctx, request{url: s.leagueURL(leagueID, "/users")}, &users); err != nil {
		return roster.FantasyRoster{}, fmt.Errorf("load sleeper users league_id=%s: %w", leagueID, err)
	}
	teamName := ""
	for _, u := range users {
		if u.UserID != owned.OwnerID {
			continue
		}
		teamName = strings.TrimSpace(u.Metadata.TeamName)
		if teamName == "" {
			teamName = strings.TrimSpace(u.DisplayName)
		}
		break
	}

	directory, err := s.directory(ctx)
	if err != nil {
		return roster.FantasyRoster{}, fmt.Errorf("load sleeper players: %w", err)
	}

	starters := make(map[string]struct{}, len(owned.Starters))
	for _, id := range owned.Starters {
		starters[id] = struct{}{}
	}
	reserve := make(map[string]struct{}, len(owned.Reserve))
	for _, id := range owned.Reserve {
		reserve[id] = struct{}{}
	}

	players := make([]roster.FantasyPlayer, 0, len(owned.Players))
	for _, id := range owned.Players {
		if id == "" || id == "0" {
			continue
		}
		_, starter := starters[id]
		_, injured := reserve[id]
		player := roster.FantasyPlayer{
			PlatformPlayerID: id,
			IsStarter:        starter,
			IsActive:         !injured,
		}
		if info, ok := directory[id]; ok {
			player.Name = info.name()
			player.Team = info.Team
			player.Position = info.Position
			player.IsActive = player.IsActive && info.Active
		} else if isTeamDefense(id) {
			player.Name = id + " D/ST"
			player.Team = id
			player.Position = "DEF"
		} else {
			s.http.logger.WarnContext(ctx, "sleeper player missing from directory", "player_id", id, "league_id", leagueID)
			continue
		}
		players = append(players, player)
	}

	return roster.FantasyRoster{
		LeagueID: leagueID,
		TeamID:   league.TeamID,
		TeamName: teamName,
		Platform: roster.PlatformSleeper,
		Players:  players,
	}, nil
}

func (s *Sleeper) LoadScoringSettings(ctx context.Context, league roster.LeagueConfig) (roster.LeagueScoringSettings, error) {
	leagueID := strings.TrimSpace(league.LeagueID)
	if leagueID == "" {
		return roster.LeagueScoringSettings{}, fmt.Errorf("%w: league id is required", usecase.ErrInvalidInput)
	}

	var payload sleeperLeague
	if err := s.http.getJSON(ctx, request{url: s.leagueURL(leagueID, "")}, &payload); err != nil {
		return roster.LeagueScoringSettings{}, fmt.Errorf("load sleeper league league_id=%s: %w", leagueID, err)
	}

	coefficients := make(map[string]float64, len(payload.ScoringSettings))
	custom := map[string]float64{}
	for key, value := range payload.ScoringSettings {
		switch {
		case sleeperCanonical[key]:
			coefficients[key] = value
		case strings.HasPrefix(key, "bonus_") && strings.HasSuffix(key, "_td_40p"):
			if value > custom[fantasy.RuleTDBonus40p] {
				custom[fantasy.RuleTDBonus40p] = value
			}
		}
	}

	return roster.LeagueScoringSettings{
		LeagueID:     leagueID,
		Platform:     roster.PlatformSleeper,
		Coefficients: coefficients,
		CustomRules:  custom,
	}, nil
}

func (s *Sleeper) directory(ctx context.Context) (map[string]sleeperPlayer, error) {
	return s.players.GetOrLoad(ctx, sleeperPlayersKey, func(ctx context.Context) (map[string]sleeperPlayer, error) {
		var payload map[string]sleeperPlayer
		if err := s.http.getJSON(ctx, request{url: s.baseURL + "/players/nfl"}, &payload); err != nil {
			return nil, err
		}
		s.http.logger.InfoContext(ctx, "sleeper player directory loaded", "players", len(payload))
		return payload, nil
	})
}

func (s *Sleeper) leagueURL(leagueID, suffix string) string {
	return s.baseURL + "/league/" + url.PathEscape(leagueID) + suffix
}

// Sleeper scoring keys already use the canonical names.
var sleeperCanonical = map[string]bool{
	fantasy.KeyPassTD:      true,
	fantasy.KeyPassYards:   true,
	fantasy.KeyPassInt:     true,
	fantasy.KeyRushTD:      true,
	fantasy.KeyRushYards:   true,
	fantasy.KeyReception:   true,
	fantasy.KeyRecTD:       true,
	fantasy.KeyRecYards:    true,
	fantasy.KeyFumbleLost:  true,
	fantasy.KeySafety:      true,
	fantasy.KeyFGMade:      true,
	fantasy.KeyFGMade0to19: true,
	fantasy.KeyFGMade20s:   true,
	fantasy.KeyFGMade30s:   true,
	fantasy.KeyFGMade40s:   true,
	fantasy.KeyFGMade50p:   true,
	fantasy.KeyFGYards:     true,
}

// Sleeper lists team defenses by their abbreviation.
func isTeamDefense(id string) bool {
	if len(id) < 2 || len(id) > 3 {
		return false
	}
	for _, r := range id {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
