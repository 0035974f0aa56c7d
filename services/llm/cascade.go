// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("wirepro.llm.cascade")

// Attempt records one provider call.
type Attempt struct {
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Position int           `json:"position"`
	Kind     ErrorKind     `json:"error_kind,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Succeeded reports whether the attempt produced the answer.
func (a Attempt) Succeeded() bool { return a.Kind == "" }

// Outcome is a successful cascade run.
type Outcome struct {
	Response     Response  `json:"-"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Position     int       `json:"position"`
	FallbackUsed bool      `json:"fallback_used"`
	Attempts     []Attempt `json:"attempts"`
}

// CascadeError is returned when no provider produced an answer.
type CascadeError struct {
	Attempts []Attempt
	Last     error
	// Canceled is set when the request scope ended the cascade.
	Canceled bool
}

func (e *CascadeError) Error() string {
	names := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		names[i] = a.Provider
	}
	return fmt.Sprintf("all providers failed (%s): %v", strings.Join(names, ", "), e.Last)
}

func (e *CascadeError) Unwrap() error { return e.Last }

// Network reports whether the last failure was a connectivity failure. A
// cancelled cascade is never a network failure.
func (e *CascadeError) Network() bool { return !e.Canceled && IsNetwork(e.Last) }

// Cascade tries providers one at a time until one answers.
//
// # Description
//
// The provider list is fixed at construction. Each Run computes its own
// queue from the requested provider and the configured default; the shared
// list is never reordered, so concurrent runs do not interfere.
//
// # Thread Safety
//
// Safe for concurrent use.
type Cascade struct {
	providers       []Provider
	defaultProvider string
	logger          *slog.Logger
}

// NewCascade returns a Cascade over providers, in their given order.
// defaultProvider may be empty or name a provider that is not available.
func NewCascade(providers []Provider, defaultProvider string, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{
		providers:       append([]Provider(nil), providers...),
		defaultProvider: strings.ToLower(strings.TrimSpace(defaultProvider)),
		logger:          logger,
	}
}

// Available lists the provider names in registration order.
func (c *Cascade) Available() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Order returns the queue for one request: the requested provider if it is
// available, else the configured default if available, followed by the
// remaining providers in registration order.
func (c *Cascade) Order(requested string) []Provider {
	first := c.indexOf(strings.ToLower(strings.TrimSpace(requested)))
	if first < 0 {
		first = c.indexOf(c.defaultProvider)
	}
	queue := make([]Provider, 0, len(c.providers))
	if first >= 0 {
		queue = append(queue, c.providers[first])
	}
	for i, p := range c.providers {
		if i != first {
			queue = append(queue, p)
		}
	}
	return queue
}

func (c *Cascade) indexOf(name string) int {
	if name == "" {
		return -1
	}
	for i, p := range c.providers {
		if p.Name() == name {
			return i
		}
	}
	return -1
}

// Run sends req to the queue for requested until a provider answers.
//
// # Description
//
// Providers are called sequentially, never concurrently. A failure moves on
// to the next provider; cancellation of ctx stops the cascade at once. An
// answer made only of whitespace counts as a rejection.
//
// # Inputs
//
//   - ctx: request scope. Cancelling it aborts the in-flight call.
//   - requested: optional provider name hint.
//   - req: the generation request.
//
// # Outputs
//
//   - *Outcome: the answer with provider, model, queue position and every
//     attempt made.
//   - error: ErrNoProviders when nothing is configured, otherwise a
//     *CascadeError whose Last is the final failure (ctx.Err() when
//     cancelled).
func (c *Cascade) Run(ctx context.Context, requested string, req Request) (*Outcome, error) {
	queue := c.Order(requested)
	if len(queue) == 0 {
		return nil, ErrNoProviders
	}

	ctx, span := tracer.Start(ctx, "Cascade.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.requested", requested),
		attribute.Int("llm.queue_length", len(queue)),
	)

	var attempts []Attempt
	var lastErr error
	canceled := false
	for pos, p := range queue {
		if err := ctx.Err(); err != nil {
			lastErr, canceled = err, true
			break
		}

		attempt, resp, err := c.try(ctx, pos, p, req)
		attempts = append(attempts, attempt)
		if err == nil {
			if pos > 0 {
				c.logger.Warn("Answered by fallback provider",
					"provider", attempt.Provider, "position", pos, "requested", requested)
			}
			span.SetAttributes(attribute.String("llm.provider", attempt.Provider), attribute.Bool("llm.fallback", pos > 0))
			span.SetStatus(codes.Ok, "")
			return &Outcome{
				Response:     resp,
				Provider:     attempt.Provider,
				Model:        attempt.Model,
				Position:     pos,
				FallbackUsed: pos > 0,
				Attempts:     attempts,
			}, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			lastErr, canceled = fmt.Errorf("%w: %v", ctx.Err(), err), true
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all providers failed")
	return nil, &CascadeError{Attempts: attempts, Last: lastErr, Canceled: canceled}
}

func (c *Cascade) try(ctx context.Context, pos int, p Provider, req Request) (Attempt, Response, error) {
	ctx, span := tracer.Start(ctx, "Cascade.attempt", trace.WithAttributes(
		attribute.String("llm.provider", p.Name()),
		attribute.String("llm.model", p.Model()),
		attribute.Int("llm.position", pos),
	))
	defer span.End()

	start := time.Now()
	resp, err := p.Generate(ctx, req)
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = &ProviderError{Provider: p.Name(), Model: p.Model(), Kind: KindRejected, Err: errors.New("empty answer")}
	}
	attempt := Attempt{Provider: p.Name(), Model: p.Model(), Position: pos, Duration: time.Since(start)}

	if err != nil {
		attempt.Kind = Classify(err)
		if ctx.Err() != nil {
			attempt.Kind = KindCanceled
		}
		attempt.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(attempt.Kind))
		c.logger.Warn("Provider attempt failed",
			"provider", attempt.Provider,
			"model", attempt.Model,
			"position", pos,
			"error_kind", attempt.Kind,
			"duration_ms", attempt.Duration.Milliseconds(),
			"error", err)
		return attempt, Response{}, err
	}

	if resp.Model != "" {
		attempt.Model = resp.Model
	}
	c.logger.Info("Provider attempt succeeded",
		"provider", attempt.Provider,
		"model", attempt.Model,
		"position", pos,
		"duration_ms", attempt.Duration.Milliseconds())
	return attempt, resp, nil
}
