// Package knowledge handles explicit writes into the shared knowledge
// base: size-bounded, rate-limited per user, and reported loudly on
// failure. Unlike search, ingestion never degrades silently; a lost
// write is data loss.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/sagekit/sage/internal/memory"
	"github.com/sagekit/sage/internal/security"
)

var (
	// ErrIngestionFailed indicates the knowledge-base write did not
	// complete.
	ErrIngestionFailed = errors.New("knowledge ingestion failed")

	// ErrRateLimited indicates the user exceeded the ingestion rate.
	ErrRateLimited = errors.New("ingestion rate limited")

	// ErrContentTooLarge indicates the entry exceeds the size ceiling.
	ErrContentTooLarge = errors.New("content exceeds size limit")

	// ErrEmptyContent indicates the entry has no content to index.
	ErrEmptyContent = errors.New("content is empty")

	// ErrSuspectContent indicates the entry matched injection
	// screening and was rejected.
	ErrSuspectContent = errors.New("content failed injection screening")
)

// DefaultMaxChars bounds one entry's content.
const DefaultMaxChars = 50000

// Upserter embeds and stores one record. *memory.VectorStore
// satisfies it.
type Upserter interface {
	Upsert(ctx context.Context, ns memory.Namespace, text string, meta memory.Metadata) error
}

// Entry is one knowledge-base submission.
type Entry struct {
	Content  string   `json:"content"`
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Source   string   `json:"source"`
	Tags     []string `json:"tags"`
}

// Screener checks content before it enters the retrieval corpus.
// *security.Screen satisfies it.
type Screener interface {
	Check(text string) security.Finding
}

// Config wires a Service.
type Config struct {
	Store  Upserter
	Logger *slog.Logger

	// Screen rejects injection-patterned content; nil disables
	// screening.
	Screen Screener

	// MaxChars is the content ceiling; zero uses DefaultMaxChars.
	MaxChars int
	// RatePerMinute and Burst shape the per-user limiter; zero
	// disables rate limiting.
	RatePerMinute int
	Burst         int
}

// Service validates and writes knowledge entries.
//
// Service is safe for concurrent use by multiple goroutines.
type Service struct {
	store    Upserter
	logger   *slog.Logger
	screen   Screener
	maxChars int
	perMin   int
	burst    int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RatePerMinute
	}
	return &Service{
		store:    cfg.Store,
		logger:   cfg.Logger,
		screen:   cfg.Screen,
		maxChars: cfg.MaxChars,
		perMin:   cfg.RatePerMinute,
		burst:    cfg.Burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Ingest validates, rate-limits, and stores one entry under the global
// knowledge namespace.
func (s *Service) Ingest(ctx context.Context, user string, entry Entry) error {
	if strings.TrimSpace(entry.Content) == "" {
		return ErrEmptyContent
	}
	if len(entry.Content) > s.maxChars {
		return fmt.Errorf("%w: %d chars, limit %d", ErrContentTooLarge, len(entry.Content), s.maxChars)
	}
	if s.screen != nil {
		if finding := s.screen.Check(entry.Content); !finding.Clean {
			s.logger.Warn("ingestion rejected by injection screening",
				"user", user, "patterns", len(finding.Patterns))
			return ErrSuspectContent
		}
	}
	if !s.allow(user) {
		s.logger.Warn("ingestion rate limited", "user", user)
		return ErrRateLimited
	}

	meta := memory.Metadata{
		Kind:     memory.KindKnowledge,
		Source:   entry.Source,
		Title:    entry.Title,
		Category: entry.Category,
		Tags:     entry.Tags,
	}
	if err := s.store.Upsert(ctx, memory.KnowledgeNamespace(), entry.Content, meta); err != nil {
		return fmt.Errorf("%w: %v", ErrIngestionFailed, err)
	}

	s.logger.Info("knowledge entry ingested",
		"user", user, "title", entry.Title, "category", entry.Category,
		"content_length", len(entry.Content))
	return nil
}

// allow checks the caller's rate limiter, creating it on first use.
func (s *Service) allow(user string) bool {
	if s.perMin <= 0 {
		return true
	}

	s.mu.Lock()
	limiter, ok := s.limiters[user]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(s.perMin)/60), s.burst)
		s.limiters[user] = limiter
	}
	s.mu.Unlock()

	return limiter.Allow()
}
