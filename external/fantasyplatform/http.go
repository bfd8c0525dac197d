package fantasyplatform

import (
	"context"
	"fmt"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/riskibarqy/fantasy-livefeed/internal/usecase"
	"github.com/valyala/fasthttp"
)

const defaultTimeout = 15 * time.Second

// ErrPlatformUnavailable marks network failures and 5xx answers from a
// fantasy platform.
var ErrPlatformUnavailable = crerr.New("fantasy platform unavailable")

type request struct {
	url     string
	headers map[string]string
	cookies map[string]string
}

// transport is the fasthttp GET+decode path shared by every adapter.
type transport struct {
	client   *fasthttp.Client
	timeout  time.Duration
	platform string
	logger   *logging.Logger
}

func newTransport(client *fasthttp.Client, timeout time.Duration, platform string, logger *logging.Logger) transport {
	if client == nil {
		client = &fasthttp.Client{
			Name:                "fantasy-livefeed",
			MaxIdleConnDuration: 90 * time.Second,
		}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return transport{client: client, timeout: timeout, platform: platform, logger: logger}
}

func (t transport) getJSON(ctx context.Context, in request, target any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(in.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	for key, value := range in.headers {
		req.Header.Set(key, value)
	}
	for key, value := range in.cookies {
		if value != "" {
			req.Header.SetCookie(key, value)
		}
	}

	deadline := time.Now().Add(t.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := t.client.DoDeadline(req, resp, deadline); err != nil {
		t.logger.WarnContext(ctx, "fantasy platform request failed", "platform", t.platform, "url", in.url, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrPlatformUnavailable, t.platform, crerr.Wrap(err, "send request"))
	}

	status := resp.StatusCode()
	body := resp.Body()
	switch {
	case status >= 200 && status < 300:
	case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
		return fmt.Errorf("%w: %s status=%d", usecase.ErrUnauthorized, t.platform, status)
	case status == fasthttp.StatusNotFound:
		return fmt.Errorf("%w: %s status=%d", usecase.ErrNotFound, t.platform, status)
	case status == fasthttp.StatusTooManyRequests || status >= fasthttp.StatusInternalServerError:
		t.logger.WarnContext(ctx, "fantasy platform unavailable", "platform", t.platform, "status", status)
		return fmt.Errorf("%w: %w: %s status=%d body=%s", ErrPlatformUnavailable, usecase.ErrDependencyUnavailable, t.platform, status, abbreviate(body))
	default:
		return crerr.Newf("%s status=%d body=%s", t.platform, status, abbreviate(body))
	}

	if err := sonic.Unmarshal(body, target); err != nil {
		return crerr.Wrapf(err, "decode %s payload", t.platform)
	}
	return nil
}

func abbreviate(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}

func trimBase(raw, fallback string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return fallback
	}
	return raw
}
