// Package stream runs model generation as an incremental stream:
// reasoning markers are stripped on the fly, visible text is forwarded
// to the caller chunk by chunk, and the accumulated answer is persisted
// to the conversation log when the stream completes.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sagekit/sage/internal/memory"
)

// ErrGenerationFailed indicates the model stream ended in error. The
// caller surfaces it as a system-role message instead of a transport
// failure.
var ErrGenerationFailed = errors.New("generation failed")

// Request describes one generation.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Generator produces a model response as a sequence of raw text chunks
// delivered to emit. An error returned by emit aborts the stream and is
// propagated back unchanged.
type Generator interface {
	Stream(ctx context.Context, req Request, emit func(chunk string) error) error
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request, emit func(chunk string) error) error

// Stream implements Generator.
func (f GeneratorFunc) Stream(ctx context.Context, req Request, emit func(chunk string) error) error {
	return f(ctx, req, emit)
}

// Persister appends the finished answer to the conversation log.
// *memory.Log satisfies it.
type Persister interface {
	Append(ctx context.Context, ns memory.Namespace, speaker memory.Speaker, text string) (int64, error)
}

// Coordinator tees one generation stream into two consumers: the
// caller's delta callback, fed as text arrives, and an accumulator
// whose final contents are persisted as a system turn.
type Coordinator struct {
	generator Generator
	persister Persister
	markers   Markers
	logger    *slog.Logger
}

// NewCoordinator creates a Coordinator. persister may be nil to skip
// persistence entirely.
func NewCoordinator(generator Generator, persister Persister, markers Markers, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		generator: generator,
		persister: persister,
		markers:   markers,
		logger:    logger,
	}
}

// Generate runs one streamed generation. Each visible delta is passed
// to onDelta as it arrives; reasoning regions never reach the caller.
// The full visible text is returned and, when non-empty, persisted as
// a system turn in ns.
//
// Persistence failure does not fail a completed generation: the answer
// already reached the client, so the coordinator logs the miss and
// returns success. An aborted stream persists nothing.
func (c *Coordinator) Generate(ctx context.Context, req Request, ns memory.Namespace, onDelta func(string) error) (string, error) {
	parser := NewParser(c.markers)
	var full strings.Builder

	forward := func(visible string) error {
		if visible == "" {
			return nil
		}
		full.WriteString(visible)
		if onDelta != nil {
			return onDelta(visible)
		}
		return nil
	}

	err := c.generator.Stream(ctx, req, func(chunk string) error {
		return forward(parser.Feed(chunk))
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if err := forward(parser.Flush()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	text := full.String()
	c.persist(ctx, ns, text)
	return text, nil
}

func (c *Coordinator) persist(ctx context.Context, ns memory.Namespace, text string) {
	if c.persister == nil || strings.TrimSpace(text) == "" {
		return
	}
	if _, err := c.persister.Append(ctx, ns, memory.SpeakerSystem, text); err != nil {
		c.logger.Warn("failed to persist generated answer",
			"namespace", ns.Key(), "error", err)
	}
}
