package statsapi

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/gameevent"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/riskibarqy/fantasy-livefeed/internal/usecase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultBaseURL = "https://api.sportsdata.example/v1/nfl"
	maxBodyBytes   = 6 << 20
)

var (
	// ErrTransient marks network failures and 5xx responses.
	ErrTransient = crerr.New("stats provider transient failure")
	// ErrQuotaExceeded marks HTTP 429 responses.
	ErrQuotaExceeded = crerr.New("stats provider quota exceeded")
)

type ClientConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Logger     *logging.Logger
}

// Client talks to the upstream statistics provider. It never retries: retry
// timing belongs to the rate governor.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logging.Logger
}

var _ gameevent.Feed = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		logger:     logger,
	}
}

func (c *Client) LiveGames(ctx context.Context) ([]gameevent.Game, error) {
	var payload gamesResponse
	if err := c.doJSON(ctx, "/games/live", &payload); err != nil {
		return nil, fmt.Errorf("fetch live games: %w", err)
	}

	out := make([]gameevent.Game, 0, len(payload.Games))
	for _, item := range payload.Games {
		game := item.toDomain()
		if game.ID == "" {
			c.logger.WarnContext(ctx, "stats provider game without id skipped", "status", item.Status)
			continue
		}
		out = append(out, game)
	}
	return out, nil
}

func (c *Client) Plays(ctx context.Context, gameID string) ([]gameevent.Play, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, fmt.Errorf("%w: game id is required", usecase.ErrInvalidInput)
	}

	var payload playsResponse
	if err := c.doJSON(ctx, "/games/"+url.PathEscape(gameID)+"/plays", &payload); err != nil {
		return nil, fmt.Errorf("fetch plays game_id=%s: %w", gameID, err)
	}

	out := make([]gameevent.Play, 0, len(payload.Plays))
	for _, item := range payload.Plays {
		out = append(out, item.toDomain())
	}
	return out, nil
}

func (c *Client) Players(ctx context.Context) ([]gameevent.ProviderPlayer, error) {
	var payload playersResponse
	if err := c.doJSON(ctx, "/players", &payload); err != nil {
		return nil, fmt.Errorf("fetch player directory: %w", err)
	}

	out := make([]gameevent.ProviderPlayer, 0, len(payload.Players))
	for _, item := range payload.Players {
		if item.ID == "" || strings.TrimSpace(item.Name) == "" {
			continue
		}
		out = append(out, gameevent.ProviderPlayer{
			ID:       string(item.ID),
			Name:     strings.TrimSpace(item.Name),
			Team:     strings.TrimSpace(item.Team),
			Position: strings.TrimSpace(item.Position),
		})
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, path string, target any) error {
	raw, err := c.executeRequest(ctx, c.baseURL+path)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(raw, target); err != nil {
		return crerr.Wrap(err, "decode provider payload")
	}
	return nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, crerr.Wrap(err, "build request")
	}
	req.Header.Set("accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, c.fail(ctx, fullURL, markTransient(crerr.Newf("send request: %s", sanitizeSensitiveText(err.Error(), c.apiKey))))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.fail(ctx, fullURL, markTransient(crerr.Wrap(err, "read response body")))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, c.fail(ctx, fullURL, markQuotaExceeded(crerr.Newf("provider status=%d body=%s", resp.StatusCode, abbreviateBody(raw))))
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, c.fail(ctx, fullURL, markTransient(crerr.Newf("provider status=%d body=%s", resp.StatusCode, abbreviateBody(raw))))
	default:
		return nil, c.fail(ctx, fullURL, crerr.Newf("provider status=%d body=%s", resp.StatusCode, abbreviateBody(raw)))
	}
}

func (c *Client) fail(ctx context.Context, fullURL string, err error) error {
	c.logger.WarnContext(ctx, "stats provider request failed", "url", fullURL, "error", err)
	return err
}

func markTransient(err error) error {
	return fmt.Errorf("%w: %w: %w", ErrTransient, usecase.ErrUpstreamTransient, err)
}

func markQuotaExceeded(err error) error {
	return fmt.Errorf("%w: %w: %w", ErrQuotaExceeded, usecase.ErrUpstreamQuotaExceeded, err)
}

// IsTransient reports whether err is worth retrying on the next tick.
func IsTransient(err error) bool {
	return stderrors.Is(err, ErrTransient)
}

func sanitizeSensitiveText(value, apiKey string) string {
	value = strings.TrimSpace(value)
	if value == "" || apiKey == "" {
		return value
	}
	return strings.ReplaceAll(value, apiKey, "REDACTED")
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}
