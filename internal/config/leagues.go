package config

import (
	"os"
	"strings"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
)

var leagueValidator = validator.New(validator.WithRequiredStructEnabled())

// loadLeagues prefers inline JSON over a file path. Neither set yields no leagues.
func loadLeagues(inline, path string) ([]roster.LeagueConfig, error) {
	if raw := strings.TrimSpace(inline); raw != "" {
		leagues, err := ParseLeagues([]byte(raw))
		if err != nil {
			return nil, crerr.Wrap(err, "parse LEAGUES_JSON")
		}
		return leagues, nil
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, crerr.Wrapf(err, "read LEAGUES_FILE %s", path)
	}
	leagues, err := ParseLeagues(raw)
	if err != nil {
		return nil, crerr.Wrapf(err, "parse LEAGUES_FILE %s", path)
	}
	return leagues, nil
}

// ParseLeagues decodes a JSON array of league configs, normalises platform
// names and rejects invalid or duplicate entries.
func ParseLeagues(raw []byte) ([]roster.LeagueConfig, error) {
	var leagues []roster.LeagueConfig
	if err := sonic.Unmarshal(raw, &leagues); err != nil {
		return nil, crerr.Wrap(err, "decode leagues")
	}

	seen := make(map[string]struct{}, len(leagues))
	out := make([]roster.LeagueConfig, 0, len(leagues))
	for i, league := range leagues {
		league.LeagueID = strings.TrimSpace(league.LeagueID)
		league.TeamID = strings.TrimSpace(league.TeamID)
		league.Name = strings.TrimSpace(league.Name)
		league.Platform = roster.Platform(strings.ToLower(strings.TrimSpace(string(league.Platform))))

		if err := leagueValidator.Struct(league); err != nil {
			return nil, crerr.Wrapf(err, "league[%d]", i)
		}
		if _, dup := seen[league.LeagueID]; dup {
			return nil, crerr.Newf("league[%d]: duplicate league_id %q", i, league.LeagueID)
		}
		seen[league.LeagueID] = struct{}{}
		out = append(out, league)
	}
	return out, nil
}
