package userservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/neurobridge-sync/internal/observability"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/envutil"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

// TokenSource supplies the bearer token for each request. The auth system
// owns refresh; the client only reads.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

type Options struct {
	BaseURL string
	Tokens  TokenSource

	Timeout    time.Duration
	MaxRetries int
	// InitialBackoff is the first retry delay; later delays grow exponentially
	// with jitter up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	HTTPClient *http.Client
	Logger     *logger.Logger
}

type Client struct {
	baseURL        string
	tokens         TokenSource
	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	httpClient     *http.Client
	log            *logger.Logger
	tracer         trace.Tracer
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	initial := opts.InitialBackoff
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = StaticToken("")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL:        baseURL,
		tokens:         tokens,
		timeout:        timeout,
		maxRetries:     maxRetries,
		initialBackoff: initial,
		maxBackoff:     maxBackoff,
		httpClient:     hc,
		log:            log.With("client", "userservice"),
		tracer:         observability.Tracer("userservice"),
	}, nil
}

func NewFromEnv(log *logger.Logger) (*Client, error) {
	return New(Options{
		BaseURL:        envutil.String("USER_SERVICE_URL", "http://localhost:8080"),
		Tokens:         StaticToken(envutil.String("USER_SERVICE_TOKEN", "")),
		Timeout:        envutil.Duration("USER_SERVICE_TIMEOUT", 10*time.Second),
		MaxRetries:     envutil.Int("USER_SERVICE_MAX_RETRIES", 2),
		InitialBackoff: envutil.Duration("USER_SERVICE_BACKOFF", 250*time.Millisecond),
		Logger:         log,
	})
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) setHeaders(ctx context.Context, req *http.Request, hasBody bool) error {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return apierr.New(apierr.KindAuthorization, http.StatusUnauthorized, "token_unavailable", err)
	}
	if tok = strings.TrimSpace(tok); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return nil
}

// doJSON performs one logical request. Each attempt is bounded by the client
// timeout; transient failures are retried with jittered exponential backoff,
// everything else returns immediately as a typed error.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = raw
	}
	target := c.baseURL + "/api" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	ctx, span := c.tracer.Start(ctx, "userservice "+method+" "+spanRoute(path),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.request.method", method)),
	)
	defer span.End()

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		err := c.attempt(ctx, method, target, payload, out)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(apierr.Wrap(ctx.Err()))
		}
		if !apierr.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		c.log.Debug("userservice attempt failed", "method", method, "path", path, "attempt", attempt, "error", err)
		return struct{}{}, err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialBackoff
	eb.MaxInterval = c.maxBackoff
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
	)
	span.SetAttributes(attribute.Int("userservice.attempts", attempt))
	if err != nil {
		err = apierr.Wrap(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, method, target string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return apierr.New(apierr.KindValidation, 0, "bad_request", err)
	}
	if err := c.setHeaders(ctx, req, payload != nil); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled {
			return apierr.Wrap(err)
		}
		return apierr.Transient(fmt.Errorf("%s %s: %w", method, target, err))
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	_ = resp.Body.Close()
	if readErr != nil {
		return apierr.Transient(fmt.Errorf("read response: %w", readErr))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseHTTPError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierr.New(apierr.KindUnknown, resp.StatusCode, "decode_failed", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Field   string `json:"field"`
	} `json:"error"`
}

func parseHTTPError(status int, raw []byte) error {
	var env errorEnvelope
	msg := strings.TrimSpace(string(raw))
	code := ""
	field := ""
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Message != "" {
		msg = env.Error.Message
		code = env.Error.Code
		field = env.Error.Field
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	if len(msg) > 512 {
		msg = msg[:512]
	}
	e := apierr.FromStatus(status, code, errors.New(msg))
	e.Field = field
	return e
}

// spanRoute replaces id segments so span names stay low cardinality.
func spanRoute(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if i > 0 && parts[i-1] == "users" && p != "" {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
