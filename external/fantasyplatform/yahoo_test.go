package fantasyplatform

import (
	"context"
	"errors"
	"testing"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/fantasy"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/riskibarqy/fantasy-livefeed/internal/usecase"
	"github.com/valyala/fasthttp"
)

const yahooRosterBody = `{"fantasy_content":{"team":[
	[{"team_key":"449.l.777.t.4"},{"team_id":"4"},{"name":"Bench Mob"}],
	{"roster":{"coverage_type":"week","0":{"players":{
		"0":{"player":[[{"player_key":"449.p.30123"},{"player_id":"30123"},{"name":{"full":"Tyreek Hill"}},{"editorial_team_abbr":"Mia"},{"display_position":"WR"}],{"selected_position":[{"coverage_type":"week"},{"position":"WR"}]}]},
		"1":{"player":[[{"player_id":31000},{"name":{"full":"Backup Back"}},{"editorial_team_abbr":"Buf"},{"display_position":"RB"}],{"selected_position":[{"coverage_type":"week"},{"position":"BN"}]}]},
		"count":2
	}}}}
]}}`

const yahooSettingsBody = `{"fantasy_content":{"league":[
	{"league_key":"449.l.777","name":"Yahoo League"},
	{"settings":[{"stat_modifiers":{"stats":[
		{"stat":{"stat_id":11,"value":"0.5"}},
		{"stat":{"stat_id":13,"value":"6"}},
		{"stat":{"stat_id":23,"value":"5"}},
		{"stat":{"stat_id":57,"value":"1"}}
	]}}]}
]}}`

func TestYahoo_LoadRosterAndSettings(t *testing.T) {
	t.Parallel()

	var auth []string
	fake := serveFake(t, routes{
		"/v2/team/449.l.777.t.4/roster/players": yahooRosterBody,
		"/v2/league/449.l.777/settings":         yahooSettingsBody,
	}, func(ctx *fasthttp.RequestCtx) {
		auth = append(auth, string(ctx.Request.Header.Peek("Authorization")))
	})
	y := NewYahoo(YahooConfig{BaseURL: "http://yahoo.test/v2", AccessToken: "tok", GameKey: "449", Client: fake.client, Logger: logging.NewNop()})
	league := roster.LeagueConfig{LeagueID: "777", Platform: roster.PlatformYahoo, TeamID: "4"}

	got, err := y.LoadRoster(context.Background(), league)
	if err != nil {
		t.Fatalf("LoadRoster error: %v", err)
	}
	if got.TeamName != "Bench Mob" || len(got.Players) != 2 {
		t.Fatalf("unexpected roster: %+v", got)
	}
	if p := got.Players[0]; p.PlatformPlayerID != "30123" || p.Name != "Tyreek Hill" || p.Team != "MIA" || !p.IsStarter {
		t.Fatalf("unexpected starter: %+v", p)
	}
	if p := got.Players[1]; p.PlatformPlayerID != "31000" || p.IsStarter || !p.IsActive {
		t.Fatalf("unexpected bench player: %+v", p)
	}

	settings, err := y.LoadScoringSettings(context.Background(), league)
	if err != nil {
		t.Fatalf("LoadScoringSettings error: %v", err)
	}
	c := settings.Coefficients
	if len(c) != 3 || c[fantasy.KeyReception] != 0.5 || c[fantasy.KeyRecTD] != 6 || c[fantasy.KeyFGMade50p] != 5 {
		t.Fatalf("unexpected coefficients: %+v", c)
	}

	for _, header := range auth {
		if header != "Bearer tok" {
			t.Fatalf("expected bearer token, got %q", header)
		}
	}
}

func TestYahoo_RequiresToken(t *testing.T) {
	t.Parallel()

	y := NewYahoo(YahooConfig{Logger: logging.NewNop()})
	_, err := y.LoadRoster(context.Background(), roster.LeagueConfig{LeagueID: "nfl.l.1", TeamID: "1"})
	if !errors.Is(err, usecase.ErrUnauthorized) {
		t.Fatalf("expected unauthorized without token, got %v", err)
	}
}

func TestYahoo_LeagueKey(t *testing.T) {
	t.Parallel()

	y := NewYahoo(YahooConfig{})
	if key, _ := y.leagueKey(roster.LeagueConfig{LeagueID: "123"}); key != "nfl.l.123" {
		t.Fatalf("unexpected key %q", key)
	}
	if key, _ := y.leagueKey(roster.LeagueConfig{LeagueID: "449.l.9"}); key != "449.l.9" {
		t.Fatalf("unexpected key %q", key)
	}
}
