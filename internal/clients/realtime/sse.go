package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/clients/userservice"
	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/envutil"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type SSEOptions struct {
	BaseURL    string
	Tokens     userservice.TokenSource
	HTTPClient *http.Client
	// DialTimeout bounds the time to receive response headers.
	DialTimeout time.Duration
	Logger      *logger.Logger
}

// SSETransport connects to the user service's event stream.
type SSETransport struct {
	baseURL     string
	tokens      userservice.TokenSource
	httpClient  *http.Client
	dialTimeout time.Duration
	log         *logger.Logger
}

func NewSSETransport(opts SSEOptions) (*SSETransport, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("baseURL required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = userservice.StaticToken("")
	}
	dt := opts.DialTimeout
	if dt <= 0 {
		dt = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &SSETransport{
		baseURL:     base,
		tokens:      tokens,
		httpClient:  hc,
		dialTimeout: dt,
		log:         log.With("transport", "sse"),
	}, nil
}

func NewSSETransportFromEnv(tokens userservice.TokenSource, log *logger.Logger) (*SSETransport, error) {
	return NewSSETransport(SSEOptions{
		BaseURL:     envutil.String("REALTIME_URL", envutil.String("USER_SERVICE_URL", "http://localhost:8080")),
		Tokens:      tokens,
		DialTimeout: envutil.Duration("REALTIME_DIAL_TIMEOUT", 10*time.Second),
		Logger:      log,
	})
}

func (t *SSETransport) Connect(ctx context.Context, userID uuid.UUID) (Stream, error) {
	connCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, t.baseURL+"/api/realtime/stream", nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	tok, err := t.tokens.Token(ctx)
	if err != nil {
		cancel()
		return nil, apierr.New(apierr.KindAuthorization, http.StatusUnauthorized, "token_unavailable", err)
	}
	if tok = strings.TrimSpace(tok); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	// Only the header wait is bounded; the body stays open for the life of the
	// stream.
	timer := time.AfterFunc(t.dialTimeout, cancel)
	resp, err := t.httpClient.Do(req)
	stopped := timer.Stop()
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, apierr.Wrap(ctx.Err())
		}
		return nil, apierr.Transient(fmt.Errorf("connect stream: %w", err))
	}
	if !stopped {
		_ = resp.Body.Close()
		cancel()
		return nil, apierr.Transient(errors.New("connect stream: header timeout"))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = resp.Body.Close()
		cancel()
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, apierr.FromStatus(resp.StatusCode, "stream_rejected", errors.New(msg))
	}

	s := &sseStream{
		body:   resp.Body,
		cancel: cancel,
		frames: make(chan domain.Envelope, 16),
		done:   make(chan struct{}),
		log:    t.log,
	}
	go s.read()
	return s, nil
}

type sseStream struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	frames chan domain.Envelope
	done   chan struct{}
	err    error
	once   sync.Once
	log    *logger.Logger
}

func (s *sseStream) read() {
	defer close(s.done)
	err := readSSE(s.body, func(event, data string) error {
		switch event {
		case "heartbeat", "ping":
			return nil
		}
		if data == "" {
			return nil
		}
		var env domain.Envelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			s.log.Warn("dropping malformed stream frame", "event", event, "error", err)
			return nil
		}
		if env.Type == "" {
			env.Type = domain.EventType(event)
		}
		s.frames <- env
		return nil
	})
	if err == nil {
		err = io.EOF
	}
	s.err = err
}

func (s *sseStream) Next(ctx context.Context) (domain.Envelope, error) {
	select {
	case env := <-s.frames:
		return env, nil
	default:
	}
	select {
	case env := <-s.frames:
		return env, nil
	case <-s.done:
		select {
		case env := <-s.frames:
			return env, nil
		default:
		}
		return domain.Envelope{}, apierr.Transient(fmt.Errorf("stream ended: %w", s.err))
	case <-ctx.Done():
		return domain.Envelope{}, ctx.Err()
	}
}

func (s *sseStream) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.body.Close()
		// Unblock a reader parked on a full frames buffer.
		go func() {
			for {
				select {
				case <-s.frames:
				case <-s.done:
					return
				}
			}
		}()
	})
	return err
}

// readSSE parses text/event-stream framing: "event:" and "data:" fields, blank
// line terminates a frame, ":" lines are comments.
func readSSE(r io.Reader, onEvent func(event string, data string) error) error {
	br := bufio.NewReader(r)
	var (
		eventName string
		dataLines []string
	)
	flush := func() error {
		if len(dataLines) == 0 && eventName == "" {
			return nil
		}
		data := strings.Join(dataLines, "\n")
		ev := eventName
		dataLines = nil
		eventName = ""
		return onEvent(ev, data)
	}
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := err != nil
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		if eof {
			return flush()
		}
	}
}
