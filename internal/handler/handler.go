package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"

	"github.com/angeloszaimis/api-failover/internal/forwarder"
	"github.com/angeloszaimis/api-failover/internal/metrics"
)

// Gate reports whether the interceptor currently controls traffic.
type Gate interface {
	Controlling() bool
}

// Forwarder runs one forwarding operation.
type Forwarder interface {
	Forward(ctx context.Context, req *forwarder.Request) (*forwarder.Response, error)
}

type InterceptorHandler struct {
	logger      *slog.Logger
	prefix      string
	gate        Gate
	forwarder   Forwarder
	passthrough http.Handler
	metrics     *metrics.Collector
}

func NewInterceptorHandler(
	logger *slog.Logger,
	prefix string,
	gate Gate,
	fwd Forwarder,
	passthrough http.Handler,
	collector *metrics.Collector,
) *InterceptorHandler {
	return &InterceptorHandler{
		logger:      logger,
		prefix:      prefix,
		gate:        gate,
		forwarder:   fwd,
		passthrough: passthrough,
		metrics:     collector,
	}
}

// InScope reports whether r is subject to forwarding.
func (h *InterceptorHandler) InScope(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, h.prefix)
}

func (h *InterceptorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.gate.Controlling() || !h.InScope(r) {
		h.metrics.Emit(metrics.MetricEvent{Type: metrics.EventPassthrough})
		h.passthrough.ServeHTTP(w, r)
		return
	}

	h.intercept(w, r)
}

func (h *InterceptorHandler) intercept(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	log := h.logger.With(slog.String("request_id", id))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Panic while forwarding",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			h.fault(w, log, fmt.Errorf("%v", rec))
		}
	}()

	log.Info("Intercepted request",
		slog.String("from", extractClientIP(r)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("user_agent", r.UserAgent()))

	req, err := forwarder.NewRequest(id, r)
	if err != nil {
		h.fault(w, log, err)
		return
	}

	resp, err := h.forwarder.Forward(r.Context(), req)
	if err != nil {
		h.fault(w, log, err)
		return
	}

	if err := resp.Send(w); err != nil {
		log.Warn("Failed to write response", slog.Any("err", err))
	}
}

func (h *InterceptorHandler) fault(w http.ResponseWriter, log *slog.Logger, cause error) {
	log.Error("Interceptor fault", slog.Any("err", cause))

	if err := forwarder.FaultResponse(cause).Send(w); err != nil {
		log.Warn("Failed to write fault response", slog.Any("err", err))
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
