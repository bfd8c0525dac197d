package fantasyplatform

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/fantasy"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/riskibarqy/fantasy-livefeed/internal/usecase"
	"github.com/valyala/fasthttp"
)

const defaultYahooBaseURL = "https://fantasysports.yahooapis.com/fantasy/v2"

type YahooConfig struct {
	BaseURL string
	// AccessToken is an OAuth bearer token obtained outside this service.
	AccessToken string
	// GameKey prefixes bare league ids, "nfl" resolves to the current season.
	GameKey string
	Timeout time.Duration
	Client  *fasthttp.Client
	Logger  *logging.Logger
}

// Yahoo reads rosters and stat modifiers from the Yahoo Fantasy Sports API.
type Yahoo struct {
	http    transport
	baseURL string
	token   string
	gameKey string
}

var _ roster.Provider = (*Yahoo)(nil)

func NewYahoo(cfg YahooConfig) *Yahoo {
	gameKey := strings.TrimSpace(cfg.GameKey)
	if gameKey == "" {
		gameKey = "nfl"
	}
	return &Yahoo{
		http:    newTransport(cfg.Client, cfg.Timeout, string(roster.PlatformYahoo), cfg.Logger),
		baseURL: trimBase(cfg.BaseURL, defaultYahooBaseURL),
		token:   strings.TrimSpace(cfg.AccessToken),
		gameKey: gameKey,
	}
}

func (y *Yahoo) Platform() roster.Platform {
	return roster.PlatformYahoo
}

func (y *Yahoo) LoadRoster(ctx context.Context, league roster.LeagueConfig) (roster.FantasyRoster, error) {
	leagueKey, err := y.leagueKey(league)
	if err != nil {
		return roster.FantasyRoster{}, err
	}
	teamKey := leagueKey + ".t." + strings.TrimSpace(league.TeamID)

	var payload map[string]any
	if err := y.get(ctx, "/team/"+url.PathEscape(teamKey)+"/roster/players", &payload); err != nil {
		return roster.FantasyRoster{}, fmt.Errorf("load yahoo roster team_key=%s: %w", teamKey, err)
	}

	team := asSlice(asMap(payload["fantasy_content"])["team"])
	if len(team) < 2 {
		return roster.FantasyRoster{}, fmt.Errorf("%w: yahoo team %s", usecase.ErrNotFound, teamKey)
	}
	meta := flatten(team[0])
	rosterNode := asMap(asMap(team[1])["roster"])
	playersNode := asMap(asMap(rosterNode["0"])["players"])

	players := make([]roster.FantasyPlayer, 0)
	for _, item := range indexed(playersNode) {
		parts := asSlice(asMap(item)["player"])
		if len(parts) == 0 {
			continue
		}
		info := flatten(parts[0])
		id := asString(info["player_id"])
		if id == "" {
			continue
		}
		selected := ""
		if len(parts) > 1 {
			selected = asString(flatten(asMap(parts[1])["selected_position"])["position"])
		}
		players = append(players, roster.FantasyPlayer{
			PlatformPlayerID: id,
			Name:             asString(asMap(info["name"])["full"]),
			Position:         asString(info["display_position"]),
			Team:             strings.ToUpper(asString(info["editorial_team_abbr"])),
			IsStarter:        selected != "" && selected != "BN" && selected != "IR",
			IsActive:         selected != "IR",
		})
	}

	return roster.FantasyRoster{
		LeagueID: league.LeagueID,
		TeamID:   league.TeamID,
		TeamName: asString(meta["name"]),
		Platform: roster.PlatformYahoo,
		Players:  players,
	}, nil
}

func (y *Yahoo) LoadScoringSettings(ctx context.Context, league roster.LeagueConfig) (roster.LeagueScoringSettings, error) {
	leagueKey, err := y.leagueKey(league)
	if err != nil {
		return roster.LeagueScoringSettings{}, err
	}

	var payload map[string]any
	if err := y.get(ctx, "/league/"+url.PathEscape(leagueKey)+"/settings", &payload); err != nil {
		return roster.LeagueScoringSettings{}, fmt.Errorf("load yahoo settings league_key=%s: %w", leagueKey, err)
	}

	node := asSlice(asMap(payload["fantasy_content"])["league"])
	if len(node) < 2 {
		return roster.LeagueScoringSettings{}, fmt.Errorf("%w: yahoo league %s", usecase.ErrNotFound, leagueKey)
	}
	settings := flatten(asMap(node[1])["settings"])
	stats := asSlice(asMap(settings["stat_modifiers"])["stats"])

	coefficients := make(map[string]float64, len(stats))
	for _, raw := range stats {
		stat := asMap(asMap(raw)["stat"])
		statID, err := strconv.Atoi(asString(stat["stat_id"]))
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(asString(stat["value"]), 64)
		if err != nil {
			continue
		}
		if key, ok := yahooStatKeys[statID]; ok {
			coefficients[key] = value
		}
	}

	return roster.LeagueScoringSettings{
		LeagueID:     league.LeagueID,
		Platform:     roster.PlatformYahoo,
		Coefficients: coefficients,
	}, nil
}

func (y *Yahoo) get(ctx context.Context, path string, target any) error {
	if y.token == "" {
		return fmt.Errorf("%w: yahoo access token is not configured", usecase.ErrUnauthorized)
	}
	return y.http.getJSON(ctx, request{
		url:     y.baseURL + path + "?format=json",
		headers: map[string]string{"Authorization": "Bearer " + y.token},
	}, target)
}

// leagueKey accepts either a full "<game>.l.<id>" key or a bare league id.
func (y *Yahoo) leagueKey(league roster.LeagueConfig) (string, error) {
	leagueID := strings.TrimSpace(league.LeagueID)
	if leagueID == "" {
		return "", fmt.Errorf("%w: league id is required", usecase.ErrInvalidInput)
	}
	if strings.Contains(leagueID, ".l.") {
		return leagueID, nil
	}
	return y.gameKey + ".l." + leagueID, nil
}

var yahooStatKeys = map[int]string{
	4:  fantasy.KeyPassYards,
	5:  fantasy.KeyPassTD,
	6:  fantasy.KeyPassInt,
	9:  fantasy.KeyRushYards,
	10: fantasy.KeyRushTD,
	11: fantasy.KeyReception,
	12: fantasy.KeyRecYards,
	13: fantasy.KeyRecTD,
	18: fantasy.KeyFumbleLost,
	19: fantasy.KeyFGMade0to19,
	20: fantasy.KeyFGMade20s,
	21: fantasy.KeyFGMade30s,
	22: fantasy.KeyFGMade40s,
	23: fantasy.KeyFGMade50p,
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// flatten merges Yahoo's list-of-single-key-objects shape into one map.
func flatten(v any) map[string]any {
	out := map[string]any{}
	var walk func(any)
	walk = func(node any) {
		switch t := node.(type) {
		case map[string]any:
			for k, val := range t {
				out[k] = val
			}
		case []any:
			for _, child := range t {
				walk(child)
			}
		}
	}
	walk(v)
	return out
}

// indexed returns the "0", "1", ... children of a Yahoo collection in order.
func indexed(node map[string]any) []any {
	keys := make([]int, 0, len(node))
	for k := range node {
		if i, err := strconv.Atoi(k); err == nil {
			keys = append(keys, i)
		}
	}
	sort.Ints(keys)

	out := make([]any, 0, len(keys))
	for _, i := range keys {
		out = append(out, node[strconv.Itoa(i)])
	}
	return out
}
