// Package extproc serves the Envoy external processing API and strips the
// blocked feature from Feature-Policy response headers passing through Envoy.
package extproc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	core "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	extproc "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	"github.com/pipstrip/pipstrip/internal/logging"
	"github.com/pipstrip/pipstrip/internal/observability"
	"github.com/pipstrip/pipstrip/internal/rewrite"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Server struct {
	extproc.UnimplementedExternalProcessorServer

	rewriter     *rewrite.Rewriter
	active       atomic.Pointer[rewrite.Rewriter]
	topLevelOnly bool

	events  *logging.RewriteLogger
	metrics *observability.Metrics
	log     zerolog.Logger
}

var _ extproc.ExternalProcessorServer = (*Server)(nil)

func New(rw *rewrite.Rewriter, topLevelOnly bool, logger zerolog.Logger) *Server {
	return &Server{
		rewriter:     rw,
		topLevelOnly: topLevelOnly,
		log:          logger.With().Str("component", "extproc").Logger(),
	}
}

func (s *Server) SetRewriteLogger(logger *logging.RewriteLogger) {
	s.events = logger
}

func (s *Server) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

func (s *Server) Attach() {
	s.active.Store(s.rewriter)
}

func (s *Server) Detach() {
	s.active.Store(nil)
}

// stream holds what the request phase learned about one HTTP exchange.
type stream struct {
	start time.Time
	event logging.Event
}

func (s *Server) Process(srv extproc.ExternalProcessor_ProcessServer) error {
	st := &stream{
		start: time.Now(),
		event: logging.Event{
			RequestID: newRequestID(),
			Source:    logging.SourceExtProc,
			Outcome:   string(rewrite.OutcomeBypassed),
		},
	}

	for {
		req, err := srv.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if status.Code(err) == codes.Canceled {
			return nil
		}
		if err != nil {
			s.log.Debug().Err(err).Msg("receive from stream")
			return err
		}

		resp := s.handle(st, req)
		if resp == nil {
			s.log.Warn().Msg("unrecognized processing request")
			return nil
		}
		if err := srv.Send(resp); err != nil {
			return err
		}
	}
}

func (s *Server) handle(st *stream, req *extproc.ProcessingRequest) *extproc.ProcessingResponse {
	switch v := req.Request.(type) {
	case *extproc.ProcessingRequest_RequestHeaders:
		s.observeRequest(st, v.RequestHeaders)
		return &extproc.ProcessingResponse{
			Response: &extproc.ProcessingResponse_RequestHeaders{RequestHeaders: &extproc.HeadersResponse{}},
		}
	case *extproc.ProcessingRequest_RequestBody:
		return &extproc.ProcessingResponse{
			Response: &extproc.ProcessingResponse_RequestBody{RequestBody: &extproc.BodyResponse{}},
		}
	case *extproc.ProcessingRequest_RequestTrailers:
		return &extproc.ProcessingResponse{
			Response: &extproc.ProcessingResponse_RequestTrailers{RequestTrailers: &extproc.TrailersResponse{}},
		}
	case *extproc.ProcessingRequest_ResponseHeaders:
		return &extproc.ProcessingResponse{
			Response: &extproc.ProcessingResponse_ResponseHeaders{
				ResponseHeaders: &extproc.HeadersResponse{
					Response: &extproc.CommonResponse{HeaderMutation: s.rewriteResponse(st, v.ResponseHeaders)},
				},
			},
		}
	case *extproc.ProcessingRequest_ResponseBody:
		return &extproc.ProcessingResponse{
			Response: &extproc.ProcessingResponse_ResponseBody{ResponseBody: &extproc.BodyResponse{}},
		}
	case *extproc.ProcessingRequest_ResponseTrailers:
		return &extproc.ProcessingResponse{
			Response: &extproc.ProcessingResponse_ResponseTrailers{ResponseTrailers: &extproc.TrailersResponse{}},
		}
	default:
		return nil
	}
}

func (s *Server) observeRequest(st *stream, headers *extproc.HttpHeaders) {
	fields := toFields(headers)
	st.event.Timestamp = time.Now().UTC()
	st.event.Method = lookup(fields, ":method")
	st.event.Path = lookup(fields, ":path")
	st.event.Host = lookup(fields, ":authority")
	st.event.TopLevel = rewrite.TopLevel(st.event.Method, lookup(fields, "sec-fetch-dest"), lookup(fields, "accept"))
}

func (s *Server) rewriteResponse(st *stream, headers *extproc.HttpHeaders) *extproc.HeaderMutation {
	fields := toFields(headers)
	if code, err := strconv.Atoi(lookup(fields, ":status")); err == nil {
		st.event.StatusCode = code
	}
	defer s.writeEvent(st)

	rw := s.active.Load()
	if rw == nil {
		return nil
	}
	if s.topLevelOnly && !st.event.TopLevel {
		return nil
	}

	result := rw.Fields(fields)
	st.event.Outcome = string(result.Outcome)
	st.event.Removed = result.Removed
	st.event.Before = result.Before
	st.event.After = result.After
	return Mutation(result)
}

func (s *Server) writeEvent(st *stream) {
	st.event.DurationMS = time.Since(st.start).Milliseconds()
	if s.events != nil {
		if err := s.events.Write(st.event); err != nil {
			s.log.Error().Err(err).Msg("write rewrite log")
		}
	}
	s.metrics.Observe(st.event)
}

// Mutation translates a rewrite result into the header mutation Envoy
// applies. Removals are applied before sets.
func Mutation(result rewrite.Result) *extproc.HeaderMutation {
	switch result.Outcome {
	case rewrite.OutcomeRemoved:
		return &extproc.HeaderMutation{RemoveHeaders: []string{rewrite.HeaderName}}
	case rewrite.OutcomeRewritten:
		return &extproc.HeaderMutation{
			RemoveHeaders: []string{rewrite.HeaderName},
			SetHeaders: []*core.HeaderValueOption{
				{
					Header: &core.HeaderValue{
						Key:      rewrite.HeaderName,
						RawValue: []byte(result.After),
					},
					AppendAction: core.HeaderValueOption_OVERWRITE_IF_EXISTS_OR_ADD,
				},
			},
		}
	default:
		return nil
	}
}

func toFields(headers *extproc.HttpHeaders) []rewrite.Field {
	values := headers.GetHeaders().GetHeaders()
	fields := make([]rewrite.Field, 0, len(values))
	for _, h := range values {
		value := h.GetValue()
		// Newer Envoy versions only fill RawValue.
		if raw := h.GetRawValue(); raw != nil {
			value = string(raw)
		}
		fields = append(fields, rewrite.Field{Name: h.GetKey(), Value: value})
	}
	return fields
}

func lookup(fields []rewrite.Field, name string) string {
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

func newRequestID() string {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}

// ListenAndServe runs a gRPC server for s on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	gs := grpc.NewServer()
	extproc.RegisterExternalProcessorServer(gs, s)

	serveErr := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", lis.Addr().String()).Msg("ext_proc server listening")
		serveErr <- gs.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		gs.GracefulStop()
		return nil
	case err := <-serveErr:
		return err
	}
}
