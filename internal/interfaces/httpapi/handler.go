package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/riskibarqy/fantasy-livefeed/internal/usecase"
)

const defaultEventWindow = time.Hour

// OperatorControl is the set of pipeline actions behind the internal routes.
// They run on the orchestrator's lifetime context, not the request's.
type OperatorControl interface {
	PollNow(ctx context.Context) (usecase.PollResult, error)
	EmergencyStop(ctx context.Context, reason string)
	Resume(ctx context.Context) error
	ReloadRosters(ctx context.Context) (usecase.RosterLoadResult, error)
}

type Handler struct {
	status    *usecase.StatusService
	store     *usecase.EventStore
	rosters   *usecase.RosterCache
	control   OperatorControl
	logger    *logging.Logger
	validator *validator.Validate
}

func NewHandler(
	status *usecase.StatusService,
	store *usecase.EventStore,
	rosters *usecase.RosterCache,
	control OperatorControl,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		status:    status,
		store:     store,
		rosters:   rosters,
		control:   control,
		logger:    logger,
		validator: validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetStatus")
	defer span.End()

	if h.status == nil {
		writeError(ctx, w, fmt.Errorf("%w: status service is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	writeSuccess(ctx, w, http.StatusOK, h.status.Status())
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

type windowQuery struct {
	Window time.Duration `validate:"gte=0s,lte=168h"`
}

// parseWindow reads ?window= as a Go duration ("15m") or whole seconds.
// A missing value means the last hour; "0" means everything held.
func (h *Handler) parseWindow(ctx context.Context, r *http.Request) (time.Duration, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("window"))
	if raw == "" {
		return defaultEventWindow, nil
	}

	window, err := time.ParseDuration(raw)
	if err != nil {
		seconds, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil {
			return 0, fmt.Errorf("%w: window must be a duration like 15m, got %q", usecase.ErrInvalidInput, raw)
		}
		window = time.Duration(seconds) * time.Second
	}

	if err := h.validateRequest(ctx, windowQuery{Window: window}); err != nil {
		return 0, err
	}
	return window, nil
}

func decodeJSONBody[T any](r *http.Request) (T, error) {
	var req T
	if r.Body == nil {
		return req, nil
	}

	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, nil
		}
		return req, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err)
	}
	return req, nil
}
