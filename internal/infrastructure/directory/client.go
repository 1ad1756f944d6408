package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
	"confline/internal/core/services"
	"confline/pkg/circuitbreaker"
	clog "confline/pkg/logger"
	"confline/pkg/tracing"
	"confline/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"

	// maxResponseBytes bounds how much of a directory reply is read.
	maxResponseBytes = 4 << 20
)

// StatusError is a non-2xx reply from the directory store.
type StatusError struct {
	Action  string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("directory %s: status %d", e.Action, e.Status)
	}
	return fmt.Sprintf("directory %s: status %d: %s", e.Action, e.Status, e.Message)
}

type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Breaker           circuitbreaker.Config
}

// Client talks to the directory store over its ?action= HTTP contract. Every
// request carries the caller id header and a bearer token.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	identity   domain.Identity
	tokens     *services.TokenService
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	metrics    ports.MetricsRecorder
	logger     *zap.SugaredLogger
}

func NewClient(
	opts Options,
	identity domain.Identity,
	tokens *services.TokenService,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid directory base url %q", opts.BaseURL)
	}

	breakerCfg := opts.Breaker
	if breakerCfg.IsFailure == nil {
		breakerCfg.IsFailure = isOutage
	}
	breaker := circuitbreaker.New(breakerCfg)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("directory circuit breaker changed state", "from", from, "to", to)
		if metrics != nil {
			metrics.SetCircuitState("directory", int(to))
		}
	})

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: opts.Timeout},
		identity:   identity,
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		breaker:    breaker,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// isOutage reports whether err says the directory itself is unhealthy.
// Missing records and rejected requests do not trip the breaker.
func isOutage(err error) bool {
	if errors.Is(err, domain.ErrConferenceNotFound) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= http.StatusInternalServerError || se.Status == http.StatusTooManyRequests
	}
	return true
}

type ackResponse struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

type listResponse struct {
	Conferences []*domain.Conference `json:"conferences"`
}

type joinRequest struct {
	ConferenceID domain.ConferenceID `json:"conference_id"`
}

type favoriteRequest struct {
	ConferenceID domain.ConferenceID `json:"conference_id"`
	IsFavorite   bool                `json:"is_favorite"`
}

type endRequest struct {
	ID       domain.ConferenceID `json:"id"`
	Duration int64               `json:"duration"`
}

func (c *Client) Create(ctx context.Context, conf *domain.Conference) error {
	var ack ackResponse
	if err := c.do(ctx, http.MethodPost, "create", nil, conf, &ack); err != nil {
		return err
	}
	return ack.check("create")
}

func (c *Client) List(ctx context.Context) ([]*domain.Conference, error) {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "list", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Conferences == nil {
		return []*domain.Conference{}, nil
	}
	return resp.Conferences, nil
}

func (c *Client) Get(ctx context.Context, id domain.ConferenceID) (*domain.Conference, error) {
	var conf domain.Conference
	if err := c.do(ctx, http.MethodGet, "get", url.Values{"id": {string(id)}}, nil, &conf); err != nil {
		return nil, err
	}
	if conf.ID == "" {
		return nil, fmt.Errorf("directory get %s: %w", id, domain.ErrConferenceNotFound)
	}
	return &conf, nil
}

func (c *Client) Join(ctx context.Context, id domain.ConferenceID) error {
	var ack ackResponse
	if err := c.do(ctx, http.MethodPost, "join", nil, joinRequest{ConferenceID: id}, &ack); err != nil {
		return err
	}
	return ack.check("join")
}

func (c *Client) SetFavorite(ctx context.Context, id domain.ConferenceID, favorite bool) error {
	var ack ackResponse
	if err := c.do(ctx, http.MethodPut, "favorite", nil, favoriteRequest{ConferenceID: id, IsFavorite: favorite}, &ack); err != nil {
		return err
	}
	return ack.check("favorite")
}

func (c *Client) End(ctx context.Context, id domain.ConferenceID, durationSeconds int64) error {
	var ack ackResponse
	if err := c.do(ctx, http.MethodPut, "end", nil, endRequest{ID: id, Duration: durationSeconds}, &ack); err != nil {
		return err
	}
	return ack.check("end")
}

// check treats an explicit success=false as a rejection. An empty ack is accepted.
func (a ackResponse) check(action string) error {
	if a.Success != nil && !*a.Success {
		return &StatusError{Action: action, Status: http.StatusOK, Message: a.Error}
	}
	return nil
}

// do throttles, traces and guards one directory call.
func (c *Client) do(ctx context.Context, method, action string, query url.Values, body, out interface{}) error {
	ctx, span := tracing.TraceDirectoryCall(ctx, action)
	defer span.End()
	start := time.Now()

	status := "error"
	defer func() {
		if c.metrics != nil {
			c.metrics.ObserveDirectoryRequest(action, status, time.Since(start).Seconds())
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("directory %s: %w", action, err)
	}

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		code, err := c.roundTrip(ctx, method, action, query, body, out)
		if code != 0 {
			status = strconv.Itoa(code)
		}
		return err
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		status = "circuit_open"
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.Debugw("directory request failed", "action", action, "error", err)
		return err
	}
	tracing.MeasureDuration(ctx, start)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, action string, query url.Values, body, out interface{}) (int, error) {
	u := *c.baseURL
	q := u.Query()
	q.Set("action", action)
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal %s request: %w", action, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s request: %w", action, err)
	}
	if err := c.authorize(req); err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := clog.RequestID(ctx)
	if requestID == "" {
		requestID = utils.GenerateRequestID()
	}
	req.Header.Set(HeaderRequestID, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("directory %s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read %s response: %w", action, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, fmt.Errorf("directory %s: %w", action, domain.ErrConferenceNotFound)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var ack ackResponse
		_ = json.Unmarshal(data, &ack)
		msg := ack.Error
		if msg == "" {
			msg = utils.TruncateString(string(bytes.TrimSpace(data)), 200)
		}
		return resp.StatusCode, &StatusError{Action: action, Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	return resp.StatusCode, nil
}

func (c *Client) authorize(req *http.Request) error {
	req.Header.Set(HeaderUserID, strconv.FormatInt(int64(c.identity.UserID), 10))
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Issue(c.identity)
	if err != nil {
		return fmt.Errorf("failed to sign identity token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// BreakerState exposes the circuit state for health checks.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.GetState()
}
