package backend

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
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/envprep/internal/config"
	"github.com/sells-group/envprep/internal/plan"
	"github.com/sells-group/envprep/internal/resilience"
	"github.com/sells-group/envprep/internal/task"
)

// APIError is returned when the server responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: HTTP %d: %s", e.StatusCode, e.Message)
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) RemoteOption {
	return func(r *Remote) {
		r.http = hc
	}
}

// WithRetry overrides the request retry policy.
func WithRetry(cfg resilience.RetryConfig) RemoteOption {
	return func(r *Remote) {
		r.retry = cfg
	}
}

// Remote submits plans to an envprep server over its task API.
type Remote struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	log     *zap.Logger
}

// NewRemote builds a client from the remote config section.
func NewRemote(cfg config.RemoteConfig, opts ...RemoteOption) *Remote {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	retry := resilience.FromMillis(cfg.MaxAttempts, cfg.InitialBackoffMs, cfg.MaxBackoffMs)
	retry.OnRetry = resilience.RetryLogger("envprep", "task_api")

	r := &Remote{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		retry:   retry,
		log:     zap.L().With(zap.String("component", "backend.remote")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit validates the plan locally, then posts it.
func (r *Remote) Submit(ctx context.Context, p plan.Plan) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", eris.Wrap(err, "backend: marshal plan")
	}

	var resp SubmitResponse
	if err := r.do(ctx, http.MethodPost, TasksPath, body, &resp); err != nil {
		return "", eris.Wrap(err, "backend: submit")
	}
	r.log.Info("task submitted", zap.String("task_id", resp.ID))
	return resp.ID, nil
}

func (r *Remote) Status(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	if err := r.do(ctx, http.MethodGet, TasksPath+"/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, eris.Wrapf(err, "backend: status %s", id)
	}
	return &t, nil
}

func (r *Remote) List(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}
	path := TasksPath
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListResponse
	if err := r.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, eris.Wrap(err, "backend: list")
	}
	return resp.Tasks, nil
}

func (r *Remote) Cancel(ctx context.Context, id string) error {
	if err := r.do(ctx, http.MethodDelete, TasksPath+"/"+url.PathEscape(id), nil, nil); err != nil {
		return eris.Wrapf(err, "backend: cancel %s", id)
	}
	return nil
}

// do sends one API call with rate limiting and retry of transient failures,
// and maps well-known statuses back to package sentinel errors.
func (r *Remote) do(ctx context.Context, method, path string, body []byte, out any) error {
	err := resilience.Do(ctx, r.retry, func(ctx context.Context) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limit wait")
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
		if err != nil {
			return eris.Wrap(err, "create request")
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}

		resp, err := r.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "execute request")
		}
		defer resp.Body.Close() //nolint:errcheck

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "read response body")
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(apiErr, resp.StatusCode)
			}
			return apiErr
		}

		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return eris.Wrap(err, "decode response")
		}
		return nil
	})
	return mapAPIError(err)
}

func errorMessage(data []byte) string {
	var e ErrorResponse
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}

func mapAPIError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.StatusCode {
	case http.StatusNotFound:
		return eris.Wrap(task.ErrNotFound, apiErr.Message)
	case http.StatusConflict:
		return eris.Wrap(task.ErrFinished, apiErr.Message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return eris.Wrap(plan.ErrInvalid, apiErr.Message)
	default:
		return err
	}
}
