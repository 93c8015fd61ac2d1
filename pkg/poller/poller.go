// Package poller is the client half of the request/response sync protocol:
// independent per-resource polling loops against a live session server.
// Loops self-terminate after too many consecutive failures, back off
// exponentially on server errors and stop immediately when the resource is
// gone or forbidden.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default polling intervals per resource.
const (
	StatusInterval      = 5 * time.Second
	ResultsInterval     = 2 * time.Second
	QuestionsInterval   = 5 * time.Second
	ActivePollsInterval = 2500 * time.Millisecond
	PollResultsInterval = 2 * time.Second
)

const (
	// MaxConsecutiveErrors terminates a loop that keeps failing.
	MaxConsecutiveErrors = 12
	// MaxBackoff caps the exponential backoff on server errors.
	MaxBackoff = 30 * time.Second
)

// Handler receives one successfully decoded payload per poll cycle.
type Handler func(data json.RawMessage)

// ErrorHandler is notified when a loop terminates on its own: resource gone,
// access revoked or the consecutive error budget spent.
type ErrorHandler func(key string, err error)

// envelope mirrors the server's response body.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// statusBody is the cursor-bearing part of a status payload.
type statusBody struct {
	Timestamp time.Time `json:"timestamp"`
}

// Poller runs polling loops against one server for one session. Safe for
// concurrent use. Each loop is identified by a key; starting a loop with a
// key already running replaces the old loop.
type Poller struct {
	baseURL    string
	token      string
	http       *http.Client
	logger     *zap.Logger
	onStop     ErrorHandler
	maxErrors  int
	maxBackoff time.Duration

	mu    sync.Mutex
	loops map[string]*loopHandle
	wg    sync.WaitGroup
}

// loopHandle identifies one loop instance. Cleanup compares handle
// pointers so a superseded loop never removes its replacement's entry.
type loopHandle struct {
	cancel context.CancelFunc
}

// Option configures a Poller.
type Option func(*Poller)

// WithToken sets a bearer token attached to every request.
func WithToken(token string) Option {
	return func(p *Poller) { p.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Poller) { p.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithStopHandler sets a callback invoked when a loop self-terminates.
func WithStopHandler(h ErrorHandler) Option {
	return func(p *Poller) { p.onStop = h }
}

// New creates a poller for a server base URL (e.g. "http://host:8080").
func New(baseURL string, opts ...Option) *Poller {
	p := &Poller{
		baseURL:    baseURL,
		http:       &http.Client{Timeout: 10 * time.Second},
		logger:     zap.NewNop(),
		loops:      make(map[string]*loopHandle),
		maxErrors:  MaxConsecutiveErrors,
		maxBackoff: MaxBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StartStatus polls the session status endpoint, carrying the server's
// timestamp forward as the since cursor.
func (p *Poller) StartStatus(activityID string, interval time.Duration, h Handler) {
	if interval <= 0 {
		interval = StatusInterval
	}
	var since time.Time
	p.start("status:"+activityID, interval, func(ctx context.Context) (json.RawMessage, error) {
		path := fmt.Sprintf("/live/activities/%s/status", url.PathEscape(activityID))
		if !since.IsZero() {
			path += "?since=" + url.QueryEscape(since.Format(time.RFC3339))
		}
		data, err := p.get(ctx, path)
		if err != nil {
			return nil, err
		}
		var sb statusBody
		if err := json.Unmarshal(data, &sb); err == nil && !sb.Timestamp.IsZero() {
			since = sb.Timestamp
		}
		return data, nil
	}, h)
}

// StartResults polls current-question results.
func (p *Poller) StartResults(activityID string, interval time.Duration, h Handler) {
	if interval <= 0 {
		interval = ResultsInterval
	}
	path := fmt.Sprintf("/live/activities/%s/results", url.PathEscape(activityID))
	p.start("results:"+activityID, interval, p.fetcher(path), h)
}

// StartQuestions polls the Q&A listing.
func (p *Poller) StartQuestions(activityID string, interval time.Duration, h Handler) {
	if interval <= 0 {
		interval = QuestionsInterval
	}
	path := fmt.Sprintf("/live/activities/%s/questions?threaded=true", url.PathEscape(activityID))
	p.start("questions:"+activityID, interval, p.fetcher(path), h)
}

// StartActivePolls polls the active-poll listing.
func (p *Poller) StartActivePolls(activityID string, interval time.Duration, h Handler) {
	if interval <= 0 {
		interval = ActivePollsInterval
	}
	path := fmt.Sprintf("/live/activities/%s/polls", url.PathEscape(activityID))
	p.start("polls:"+activityID, interval, p.fetcher(path), h)
}

// StartPollResults polls one poll's results.
func (p *Poller) StartPollResults(activityID, pollID string, interval time.Duration, h Handler) {
	if interval <= 0 {
		interval = PollResultsInterval
	}
	path := fmt.Sprintf("/live/activities/%s/polls/%s/results", url.PathEscape(activityID), url.PathEscape(pollID))
	p.start("pollresults:"+activityID+":"+pollID, interval, p.fetcher(path), h)
}

func (p *Poller) fetcher(path string) func(context.Context) (json.RawMessage, error) {
	return func(ctx context.Context) (json.RawMessage, error) {
		return p.get(ctx, path)
	}
}

// Stop cancels one loop by key. Keys follow "<resource>:<activityID>".
func (p *Poller) Stop(key string) {
	p.mu.Lock()
	h, ok := p.loops[key]
	if ok {
		delete(p.loops, key)
	}
	p.mu.Unlock()
	if ok {
		h.cancel()
	}
}

// StopAll cancels every running loop and waits for them to exit.
func (p *Poller) StopAll() {
	p.mu.Lock()
	for key, h := range p.loops {
		h.cancel()
		delete(p.loops, key)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// fatalError marks a response that must stop the loop immediately.
type fatalError struct {
	status int
}

func (e *fatalError) Error() string {
	return fmt.Sprintf("polling stopped: status %d", e.status)
}

func (p *Poller) start(key string, interval time.Duration, fetch func(context.Context) (json.RawMessage, error), h Handler) {
	p.mu.Lock()
	if old, ok := p.loops[key]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	handle := &loopHandle{cancel: cancel}
	p.loops[key] = handle
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx, handle, key, interval, fetch, h)
}

func (p *Poller) run(ctx context.Context, handle *loopHandle, key string, interval time.Duration, fetch func(context.Context) (json.RawMessage, error), h Handler) {
	defer p.wg.Done()
	defer func() {
		handle.cancel()
		p.mu.Lock()
		if p.loops[key] == handle {
			delete(p.loops, key)
		}
		p.mu.Unlock()
	}()

	consecutive := 0
	timer := time.NewTimer(0) // first fetch immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		// Cancellation and the timer can fire together; never fetch
		// after a stop.
		if ctx.Err() != nil {
			return
		}

		data, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var fatal *fatalError
			if errors.As(err, &fatal) {
				p.logger.Info("polling loop stopped", zap.String("key", key), zap.Int("status", fatal.status))
				p.notifyStop(key, err)
				return
			}
			consecutive++
			if consecutive >= p.maxErrors {
				p.logger.Warn("polling loop gave up", zap.String("key", key), zap.Int("errors", consecutive))
				p.notifyStop(key, fmt.Errorf("%d consecutive errors: %w", consecutive, err))
				return
			}
			backoff := interval << consecutive
			if backoff > p.maxBackoff || backoff <= 0 {
				backoff = p.maxBackoff
			}
			p.logger.Debug("polling error, backing off",
				zap.String("key", key), zap.Int("consecutive", consecutive),
				zap.Duration("backoff", backoff), zap.Error(err))
			timer.Reset(backoff)
			continue
		}

		consecutive = 0
		h(data)
		timer.Reset(interval)
	}
}

func (p *Poller) notifyStop(key string, err error) {
	if p.onStop != nil {
		p.onStop(key, err)
	}
}

// get performs one GET and unwraps the response envelope. 403 and 404 are
// fatal; any other failure is retryable.
func (p *Poller) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusNotFound:
		return nil, &fatalError{status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("server error: %s", env.Error)
	}
	return env.Data, nil
}
