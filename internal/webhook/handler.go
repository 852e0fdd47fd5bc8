// Package webhook is the transport boundary: it authenticates inbound
// gateway calls, rate limits them, and relays engine replies back out.
// Nothing past this package ever sees an unauthenticated request.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicflow/booking-engine/internal/gateway"
	"github.com/clinicflow/booking-engine/internal/observability/metrics"
	"github.com/clinicflow/booking-engine/pkg/logging"
)

var tracer = otel.Tracer("clinicflow.internal.webhook")

const fallbackReply = "😓 Sorry, something went wrong on our side. Please try again in a moment."

// ConversationEngine consumes one inbound message and produces the reply.
type ConversationEngine interface {
	Handle(ctx context.Context, sender, text string) (string, error)
}

// ReplyMessenger sends the reply back through the transport.
type ReplyMessenger interface {
	SendMessage(ctx context.Context, req gateway.SendRequest) error
}

// Handler handles gateway webhook requests.
type Handler struct {
	webhookSecret string
	engine        ConversationEngine
	messenger     ReplyMessenger
	limiter       *RateLimiter
	metrics       *metrics.WebhookMetrics
	fromNumber    string
	logger        *logging.Logger
}

// NewHandler creates a new webhook handler. limiter and m may be nil.
func NewHandler(webhookSecret string, eng ConversationEngine, messenger ReplyMessenger, limiter *RateLimiter, m *metrics.WebhookMetrics, fromNumber string, logger *logging.Logger) *Handler {
	if eng == nil {
		panic("webhook: engine cannot be nil")
	}
	if messenger == nil {
		panic("webhook: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		webhookSecret: webhookSecret,
		engine:        eng,
		messenger:     messenger,
		limiter:       limiter,
		metrics:       m,
		fromNumber:    fromNumber,
		logger:        logger.WithComponent("webhook"),
	}
}

// HandleMessage handles POST /webhooks/gateway/messages requests.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "webhook.message")
	defer span.End()
	started := time.Now()

	webhookURL := BuildAbsoluteURL(r)
	if h.webhookSecret != "" {
		if !ValidateSignature(r, h.webhookSecret, webhookURL) {
			h.logger.Warn("invalid gateway signature", "remote", r.RemoteAddr)
			h.metrics.ObserveInbound("unauthorized")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			span.RecordError(errors.New("invalid gateway signature"))
			return
		}
	}

	msg, err := ParseInbound(r)
	if err != nil {
		h.logger.Error("failed to parse gateway webhook", "error", err)
		h.metrics.ObserveInbound("bad_request")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	if msg.From == "" || msg.Body == "" {
		err := errors.New("missing required gateway fields")
		h.logger.Error("invalid gateway payload", "error", err)
		h.metrics.ObserveInbound("bad_request")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	span.SetAttributes(
		attribute.String("clinicflow.message_id", msg.MessageID),
		attribute.String("clinicflow.from", msg.From),
	)

	if h.limiter != nil {
		result := h.limiter.Allow(ctx, originAddr(r), msg.From)
		if !result.Allowed {
			h.metrics.ObserveInbound("rate_limited")
			w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
	}

	// The engine guarantees a usable reply even on internal failure;
	// the recover below is the last line of defense for anything else.
	reply := fallbackReply
	turnErr := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("webhook: turn panicked: %v", rec)
			}
		}()
		reply, err = h.engine.Handle(ctx, msg.From, msg.Body)
		if reply == "" {
			reply = fallbackReply
		}
		return err
	}()
	if turnErr != nil {
		h.logger.Error("conversation turn failed", "error", turnErr, "sender", msg.From, "message_id", msg.MessageID)
		h.metrics.ObserveTurn("error")
		span.RecordError(turnErr)
	} else {
		h.metrics.ObserveTurn("ok")
	}

	h.sendReply(ctx, msg, reply)

	h.metrics.ObserveInbound("ok")
	h.metrics.ObserveTurnLatency(time.Since(started).Seconds())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// sendReply is best-effort: a failed send is logged, never escalated,
// so the webhook is still acknowledged and the gateway does not retry
// a turn that already mutated state.
func (h *Handler) sendReply(ctx context.Context, msg *InboundMessage, reply string) {
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	to := msg.From
	from := msg.To
	if from == "" {
		from = h.fromNumber
	}
	if err := h.messenger.SendMessage(sendCtx, gateway.SendRequest{To: to, From: from, Body: reply}); err != nil {
		h.logger.Error("failed to send reply", "error", err, "sender", msg.From, "message_id", msg.MessageID)
		h.metrics.ObserveReply("error")
		return
	}
	h.metrics.ObserveReply("ok")
}

func originAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// HealthCheck returns a simple health check response.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
