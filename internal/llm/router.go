package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hession/mentorjournal/internal/config"
	"github.com/hession/mentorjournal/internal/stream"
)

// Request is one model call
type Request struct {
	Tier     Tier
	System   string // optional system prompt, sent first
	Messages []Message
}

// Completer starts a streamed completion. Failures are reported through
// the returned stream.
type Completer interface {
	Complete(ctx context.Context, req Request) *stream.Stream
}

// Observer receives per-call telemetry
type Observer interface {
	ObserveModelCall(tier, model string, elapsed time.Duration, err error)
	ObserveModelChunk(tier string)
}

// Router maps tiers to model names and runs calls on a Provider
type Router struct {
	provider Provider
	models   map[Tier]string
	observer Observer
	logger   *slog.Logger
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithObserver reports call metrics to o
func WithObserver(o Observer) RouterOption {
	return func(r *Router) { r.observer = o }
}

// WithLogger sets the router logger
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a router over provider using the configured models
func NewRouter(provider Provider, cfg config.ModelConfig, opts ...RouterOption) *Router {
	r := &Router{
		provider: provider,
		models: map[Tier]string{
			TierSmart:     cfg.SmartModel,
			TierFast:      cfg.FastModel,
			TierReasoning: cfg.ReasoningModel,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Model returns the model name used for a tier
func (r *Router) Model(tier Tier) (string, error) {
	model, ok := r.models[tier]
	if !ok || model == "" {
		return "", fmt.Errorf("no model configured for tier %q", tier)
	}
	return model, nil
}

// Complete implements Completer
func (r *Router) Complete(ctx context.Context, req Request) *stream.Stream {
	model, err := r.Model(req.Tier)
	if err != nil {
		return stream.Failed(err)
	}

	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.System})
	}
	messages = append(messages, req.Messages...)

	return stream.New(ctx, func(ctx context.Context, emit func(string) error) error {
		start := time.Now()
		_, err := r.provider.Stream(ctx, model, messages, func(chunk string) error {
			if r.observer != nil {
				r.observer.ObserveModelChunk(string(req.Tier))
			}
			return emit(chunk)
		})
		elapsed := time.Since(start)
		if r.observer != nil {
			r.observer.ObserveModelCall(string(req.Tier), model, elapsed, err)
		}
		if err != nil {
			r.logger.Error("model call failed", "tier", req.Tier, "model", model, "error", err)
			return fmt.Errorf("model %s: %w", model, err)
		}
		r.logger.Debug("model call finished", "tier", req.Tier, "model", model, "elapsed", elapsed)
		return nil
	})
}

// Text runs req to completion and returns its text without any reasoning
// preamble
func Text(ctx context.Context, c Completer, req Request) (string, error) {
	text, err := c.Complete(ctx, req).Result(ctx)
	if err != nil {
		return "", err
	}
	return StripThink(text), nil
}
