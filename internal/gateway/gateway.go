package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/pipstrip/pipstrip/internal/config"
	"github.com/pipstrip/pipstrip/internal/logging"
	"github.com/pipstrip/pipstrip/internal/observability"
	"github.com/pipstrip/pipstrip/internal/rewrite"
	"github.com/rs/zerolog"
)

type Gateway struct {
	router    *Router
	upstreams map[string]*url.URL
	proxies   map[string]*httputil.ReverseProxy
	timeout   time.Duration

	rewriter     *rewrite.Rewriter
	active       atomic.Pointer[rewrite.Rewriter]
	topLevelOnly bool

	events  *logging.RewriteLogger
	metrics *observability.Metrics
	log     zerolog.Logger

	requestCount uint64
}

type interceptionKey struct{}

// interception carries per-request state from ServeHTTP into ModifyResponse.
type interception struct {
	event logging.Event
}

func New(cfg *config.Config, logger zerolog.Logger) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	router, err := NewRouter(cfg)
	if err != nil {
		return nil, err
	}

	upstreams := make(map[string]*url.URL, len(cfg.Upstreams))
	for _, upstream := range cfg.Upstreams {
		parsed, err := url.Parse(upstream.URL)
		if err != nil {
			return nil, fmt.Errorf("parse upstream %s: %w", upstream.Name, err)
		}
		upstreams[upstream.Name] = parsed
	}

	timeout := cfg.Server.UpstreamTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	g := &Gateway{
		router:       router,
		upstreams:    upstreams,
		timeout:      timeout,
		rewriter:     rewrite.New(cfg.Rewrite.BlockedFeature),
		topLevelOnly: cfg.Rewrite.IsTopLevelOnly(),
		log:          logger.With().Str("component", "gateway").Logger(),
	}

	transport := newTransport(timeout)
	g.proxies = make(map[string]*httputil.ReverseProxy, len(upstreams))
	for name, target := range upstreams {
		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.Transport = transport
		proxy.ModifyResponse = g.modifyResponse
		proxy.ErrorHandler = g.errorHandler(name)
		g.proxies[name] = proxy
	}

	return g, nil
}

func (g *Gateway) SetRewriteLogger(logger *logging.RewriteLogger) {
	g.events = logger
}

func (g *Gateway) SetMetrics(metrics *observability.Metrics) {
	g.metrics = metrics
}

// Attach starts rewriting responses.
func (g *Gateway) Attach() {
	g.active.Store(g.rewriter)
}

// Detach stops rewriting; responses pass through untouched.
func (g *Gateway) Detach() {
	g.active.Store(nil)
}

func (g *Gateway) Attached() bool {
	return g.active.Load() != nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, proxy, ok := g.resolveRoute(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	start := time.Now()
	state := &interception{event: logging.Event{
		Timestamp: start.UTC(),
		RequestID: g.newRequestID(),
		Source:    logging.SourceProxy,
		Host:      r.Host,
		Method:    r.Method,
		Path:      r.URL.Path,
		RouteID:   route.ID,
		TopLevel:  rewrite.TopLevelRequest(r),
		Outcome:   string(rewrite.OutcomeBypassed),
	}}

	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, interceptionKey{}, state)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	proxy.ServeHTTP(rec, r.WithContext(ctx))

	state.event.StatusCode = rec.status
	state.event.DurationMS = time.Since(start).Milliseconds()
	g.writeEvent(state.event)
}

func (g *Gateway) modifyResponse(res *http.Response) error {
	var state *interception
	if res.Request != nil {
		state, _ = res.Request.Context().Value(interceptionKey{}).(*interception)
	}
	if state == nil {
		return nil
	}

	rw := g.active.Load()
	if rw == nil {
		return nil
	}
	if g.topLevelOnly && !state.event.TopLevel {
		return nil
	}

	result := rw.Header(res.Header)
	state.event.Outcome = string(result.Outcome)
	state.event.Removed = result.Removed
	state.event.Before = result.Before
	state.event.After = result.After

	if result.Changed() {
		g.log.Debug().
			Str("request_id", state.event.RequestID).
			Str("outcome", string(result.Outcome)).
			Int("removed", result.Removed).
			Msg("feature-policy rewritten")
	}
	return nil
}

func (g *Gateway) errorHandler(upstream string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		g.log.Warn().Err(err).Str("upstream", upstream).Str("path", r.URL.Path).Msg("upstream request failed")
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
		default:
			http.Error(w, "upstream error", http.StatusBadGateway)
		}
	}
}

func (g *Gateway) resolveRoute(r *http.Request) (Route, *httputil.ReverseProxy, bool) {
	route, ok := g.router.Match(r)
	if !ok {
		return Route{}, nil, false
	}

	proxy, ok := g.proxies[route.Upstream]
	if !ok {
		return Route{}, nil, false
	}

	return route, proxy, true
}

func (g *Gateway) writeEvent(event logging.Event) {
	if g.events != nil {
		if err := g.events.Write(event); err != nil {
			g.log.Error().Err(err).Msg("write rewrite log")
		}
	}
	g.metrics.Observe(event)
}

func (g *Gateway) newRequestID() string {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err == nil {
		return hex.EncodeToString(buf[:])
	}
	value := atomic.AddUint64(&g.requestCount, 1)
	return fmt.Sprintf("req-%d", value)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}
