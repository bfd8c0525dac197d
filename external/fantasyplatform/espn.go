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

const defaultESPNBaseURL = "https://lm-api-reads.fantasy.espn.com/apis/v3/games/ffl"

type ESPNConfig struct {
	BaseURL string
	// S2 and SWID are the espn_s2 and SWID cookies required for private leagues.
	S2      string
	SWID    string
	Timeout time.Duration
	Client  *fasthttp.Client
	Logger  *logging.Logger
	Now     func() time.Time
}

// ESPN reads league rosters and scoring from the ESPN fantasy API. Roster and
// settings share one league document, fetched once per refresh.
type ESPN struct {
	http    transport
	baseURL string
	cookies map[string]string
	leagues *cache.Store[espnLeague]
	now     func() time.Time
}

var _ roster.Provider = (*ESPN)(nil)

func NewESPN(cfg ESPNConfig) *ESPN {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &ESPN{
		http:    newTransport(cfg.Client, cfg.Timeout, string(roster.PlatformESPN), cfg.Logger),
		baseURL: trimBase(cfg.BaseURL, defaultESPNBaseURL),
		cookies: map[string]string{"espn_s2": strings.TrimSpace(cfg.S2), "SWID": strings.TrimSpace(cfg.SWID)},
		leagues: cache.NewStoreWithClock[espnLeague](time.Minute, now),
		now:     now,
	}
}

func (e *ESPN) Platform() roster.Platform {
	return roster.PlatformESPN
}

type espnLeague struct {
	ID       int64 `json:"id"`
	Settings struct {
		Name            string `json:"name"`
		ScoringSettings struct {
			ScoringItems []espnScoringItem `json:"scoringItems"`
		} `json:"scoringSettings"`
	} `json:"settings"`
	Teams []espnTeam `json:"teams"`
}

type espnScoringItem struct {
	StatID int     `json:"statId"`
	Points float64 `json:"points"`
}

type espnTeam struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Nickname string `json:"nickname"`
	Roster   struct {
		Entries []espnEntry `json:"entries"`
	} `json:"roster"`
}

func (t espnTeam) displayName() string {
	if name := strings.TrimSpace(t.Name); name != "" {
		return name
	}
	return strings.TrimSpace(t.Location + " " + t.Nickname)
}

type espnEntry struct {
	PlayerID        int64 `json:"playerId"`
	LineupSlotID    int   `json:"lineupSlotId"`
	PlayerPoolEntry struct {
		Player struct {
			ID                int64  `json:"id"`
			FullName          string `json:"fullName"`
			ProTeamID         int    `json:"proTeamId"`
			DefaultPositionID int    `json:"defaultPositionId"`
		} `json:"player"`
	} `json:"playerPoolEntry"`
}

const (
	espnSlotBench = 20
	espnSlotIR    = 21
)

func (e *ESPN) LoadRoster(ctx context.Context, league roster.LeagueConfig) (roster.FantasyRoster, error) {
	doc, err := e.league(ctx, league)
	if err != nil {
		return roster.FantasyRoster{}, err
	}

	var team *espnTeam
	for i := range doc.Teams {
		if strconv.Itoa(doc.Teams[i].ID) == strings.TrimSpace(league.TeamID) {
			team = &doc.Teams[i]
			break
		}
	}
	if team == nil {
		return roster.FantasyRoster{}, fmt.Errorf("%w: espn team %s not in league %s", usecase.ErrNotFound, league.TeamID, league.LeagueID)
	}

	players := make([]roster.FantasyPlayer, 0, len(team.Roster.Entries))
	for _, entry := range team.Roster.Entries {
		info := entry.PlayerPoolEntry.Player
		id := info.ID
		if id == 0 {
			id = entry.PlayerID
		}
		if id == 0 {
			continue
		}
		players = append(players, roster.FantasyPlayer{
			PlatformPlayerID: strconv.FormatInt(id, 10),
			Name:             strings.TrimSpace(info.FullName),
			Position:         espnPositions[info.DefaultPositionID],
			Team:             espnProTeams[info.ProTeamID],
			IsStarter:        entry.LineupSlotID != espnSlotBench && entry.LineupSlotID != espnSlotIR,
			IsActive:         entry.LineupSlotID != espnSlotIR,
		})
	}

	return roster.FantasyRoster{
		LeagueID: league.LeagueID,
		TeamID:   league.TeamID,
		TeamName: team.displayName(),
		Platform: roster.PlatformESPN,
		Players:  players,
	}, nil
}

func (e *ESPN) LoadScoringSettings(ctx context.Context, league roster.LeagueConfig) (roster.LeagueScoringSettings, error) {
	doc, err := e.league(ctx, league)
	if err != nil {
		return roster.LeagueScoringSettings{}, err
	}

	coefficients := make(map[string]float64, len(doc.Settings.ScoringSettings.ScoringItems))
	for _, item := range doc.Settings.ScoringSettings.ScoringItems {
		for _, key := range espnStatKeys[item.StatID] {
			coefficients[key] = item.Points
		}
	}

	return roster.LeagueScoringSettings{
		LeagueID:     league.LeagueID,
		Platform:     roster.PlatformESPN,
		Coefficients: coefficients,
	}, nil
}

func (e *ESPN) league(ctx context.Context, league roster.LeagueConfig) (espnLeague, error) {
	leagueID := strings.TrimSpace(league.LeagueID)
	if leagueID == "" {
		return espnLeague{}, fmt.Errorf("%w: league id is required", usecase.ErrInvalidInput)
	}
	season := league.Season
	if season == 0 {
		season = e.now().Year()
	}

	key := strconv.Itoa(season) + ":" + leagueID
	return e.leagues.GetOrLoad(ctx, key, func(ctx context.Context) (espnLeague, error) {
		endpoint := fmt.Sprintf("%s/seasons/%d/segments/0/leagues/%s?view=mRoster&view=mSettings&view=mTeam",
			e.baseURL, season, url.PathEscape(leagueID))
		var doc espnLeague
		if err := e.http.getJSON(ctx, request{url: endpoint, cookies: e.cookies}, &doc); err != nil {
			return espnLeague{}, fmt.Errorf("load espn league league_id=%s season=%d: %w", leagueID, season, err)
		}
		return doc, nil
	})
}

// espnStatKeys maps ESPN stat ids onto canonical coefficient keys. ESPN scores
// every made field goal under 40 yards with one stat.
var espnStatKeys = map[int][]string{
	3:  {fantasy.KeyPassYards},
	4:  {fantasy.KeyPassTD},
	20: {fantasy.KeyPassInt},
	24: {fantasy.KeyRushYards},
	25: {fantasy.KeyRushTD},
	42: {fantasy.KeyRecYards},
	43: {fantasy.KeyRecTD},
	53: {fantasy.KeyReception},
	72: {fantasy.KeyFumbleLost},
	74: {fantasy.KeyFGMade50p},
	77: {fantasy.KeyFGMade40s},
	80: {fantasy.KeyFGMade0to19, fantasy.KeyFGMade20s, fantasy.KeyFGMade30s},
	83: {fantasy.KeyFGMade},
	98: {fantasy.KeySafety},
}

var espnPositions = map[int]string{
	1:  "QB",
	2:  "RB",
	3:  "WR",
	4:  "TE",
	5:  "K",
	16: "DEF",
}

var espnProTeams = map[int]string{
	1: "ATL", 2: "BUF", 3: "CHI", 4: "CIN", 5: "CLE", 6: "DAL", 7: "DEN", 8: "DET",
	9: "GB", 10: "TEN", 11: "IND", 12: "KC", 13: "LV", 14: "LAR", 15: "MIA", 16: "MIN",
	17: "NE", 18: "NO", 19: "NYG", 20: "NYJ", 21: "PHI", 22: "ARI", 23: "PIT", 24: "LAC",
	25: "SF", 26: "SEA", 27: "TB", 28: "WSH", 29: "CAR", 30: "JAX", 33: "BAL", 34: "HOU",
}
