// Package assemble fuses conversation history, vector retrieval, SQL
// results, and reranking into one context bundle for generation.
//
// Every retrieval source degrades independently: a failed history read
// or vector search shrinks the bundle instead of failing the request.
// The budget truncation is deterministic for the same inputs.
package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sagekit/sage/internal/memory"
	"github.com/sagekit/sage/internal/rerank"
	"github.com/sagekit/sage/internal/sqlpipe"
)

// Defaults applied by New when Config leaves them zero.
const (
	DefaultHistoryLimit = 10
	DefaultTopK         = 5
	DefaultBudget       = 12000
)

// HistoryReader reads recent conversation turns. *memory.Log satisfies it.
type HistoryReader interface {
	Recent(ctx context.Context, ns memory.Namespace, limit int32) ([]memory.Turn, error)
}

// Searcher performs namespaced vector search. *memory.VectorStore
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, ns memory.Namespace, query string, k int, filter *memory.Metadata) []memory.Match
}

// SQLRunner answers a data question through the generation/validation
// pipeline. *sqlpipe.Pipeline satisfies it.
type SQLRunner interface {
	Run(ctx context.Context, question string) sqlpipe.ExecutionResult
}

// PassageRanker reorders retrieved passages. *rerank.Reranker satisfies it.
type PassageRanker interface {
	Rerank(ctx context.Context, query string, candidates []string, threshold float64) []rerank.Ranked
}

// Request describes one assembly.
type Request struct {
	Question string
	// ChatNS is the conversation-history partition for this request.
	ChatNS memory.Namespace
	// Subject selects a per-document passage namespace; empty skips
	// document search.
	Subject          string
	UseKnowledgeBase bool
	// UseDatabase forces the SQL pipeline regardless of the heuristic.
	UseDatabase bool
	// TopK overrides the configured search k when positive. Evaluation
	// runs vary k per run; chat requests leave it zero.
	TopK int
}

// Citation labels the provenance of one passage that survived
// truncation.
type Citation struct {
	Kind   memory.MetadataKind `json:"kind"`
	Source string              `json:"source,omitempty"`
	Title  string              `json:"title,omitempty"`
}

// Bundle is the per-request fusion result. It is ephemeral: built,
// rendered into a prompt, and discarded.
type Bundle struct {
	ConversationExcerpt []memory.Turn
	DocumentPassages    []memory.Match
	KnowledgePassages   []memory.Match
	SQLResult           *sqlpipe.ExecutionResult
	SQLSummary          string
	RerankedPassages    []rerank.Ranked
	Citations           []Citation
	Truncated           bool
}

// Config wires an Assembler. SQL is optional; the rest are required.
type Config struct {
	History HistoryReader
	Vectors Searcher
	SQL     SQLRunner
	Ranker  PassageRanker
	Logger  *slog.Logger

	HistoryLimit    int32
	TopK            int
	RerankThreshold float64
	// Budget is the character ceiling for the rendered context.
	Budget int
}

// Assembler orchestrates retrieval into a Bundle.
type Assembler struct {
	history   HistoryReader
	vectors   Searcher
	sql       SQLRunner
	ranker    PassageRanker
	logger    *slog.Logger
	histLimit int32
	topK      int
	threshold float64
	budget    int
}

// New creates an Assembler, filling zero config fields with defaults.
func New(cfg Config) *Assembler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	return &Assembler{
		history:   cfg.History,
		vectors:   cfg.Vectors,
		sql:       cfg.SQL,
		ranker:    cfg.Ranker,
		logger:    cfg.Logger,
		histLimit: cfg.HistoryLimit,
		topK:      cfg.TopK,
		threshold: cfg.RerankThreshold,
		budget:    cfg.Budget,
	}
}

// Assemble builds the context bundle for one request: history, then
// vector search over the document and knowledge namespaces, then the
// SQL pipeline when the question looks like a data question, then a
// rerank of the passage union, then budget truncation.
func (a *Assembler) Assemble(ctx context.Context, req Request) *Bundle {
	bundle := &Bundle{}

	if a.history != nil {
		turns, err := a.history.Recent(ctx, req.ChatNS, a.histLimit)
		if err != nil {
			a.logger.Warn("history unavailable, continuing without it",
				"namespace", req.ChatNS.Key(), "error", err)
		}
		bundle.ConversationExcerpt = turns
	}

	if a.vectors != nil {
		k := a.topK
		if req.TopK > 0 {
			k = req.TopK
		}
		if req.Subject != "" {
			bundle.DocumentPassages = a.vectors.Search(ctx,
				memory.DocumentNamespace(req.Subject), req.Question, k, nil)
		}
		if req.UseKnowledgeBase {
			bundle.KnowledgePassages = a.vectors.Search(ctx,
				memory.KnowledgeNamespace(), req.Question, k, nil)
		}
	}

	if a.sql != nil && (req.UseDatabase || looksLikeDataQuestion(req.Question)) {
		res := a.sql.Run(ctx, req.Question)
		bundle.SQLResult = &res
		bundle.SQLSummary = summarizeSQL(res)
	}

	candidates := make([]string, 0, len(bundle.DocumentPassages)+len(bundle.KnowledgePassages))
	for _, m := range bundle.DocumentPassages {
		candidates = append(candidates, m.Text)
	}
	for _, m := range bundle.KnowledgePassages {
		candidates = append(candidates, m.Text)
	}
	if a.ranker != nil && len(candidates) > 0 {
		bundle.RerankedPassages = a.ranker.Rerank(ctx, req.Question, candidates, a.threshold)
	}

	a.truncate(bundle)
	bundle.Citations = a.citations(bundle)
	return bundle
}

// dataQuestionKeywords trigger the SQL pipeline without an explicit
// flag.
var dataQuestionKeywords = []string{
	"count", "how many", "average", "total", "sum", "list all",
}

func looksLikeDataQuestion(question string) bool {
	lower := strings.ToLower(question)
	for _, kw := range dataQuestionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// truncate drops items until the rendered bundle fits the budget.
// Priority order: conversation > SQL summary > reranked passages.
// Passages go first, lowest score first; then the SQL summary; then
// the oldest conversation turns.
func (a *Assembler) truncate(b *Bundle) {
	for a.renderedSize(b) > a.budget {
		b.Truncated = true
		switch {
		case len(b.RerankedPassages) > 0:
			b.RerankedPassages = b.RerankedPassages[:len(b.RerankedPassages)-1]
		case b.SQLSummary != "":
			b.SQLSummary = ""
		case len(b.ConversationExcerpt) > 0:
			b.ConversationExcerpt = b.ConversationExcerpt[1:]
		default:
			return
		}
	}
}

func (a *Assembler) renderedSize(b *Bundle) int {
	size := 0
	for _, t := range b.ConversationExcerpt {
		size += len(t.Speaker) + len(t.Text) + 4
	}
	size += len(b.SQLSummary)
	for _, p := range b.RerankedPassages {
		size += len(p.Text) + 4
	}
	return size
}

// citations collects provenance for the passages that survived
// truncation, deduplicated in rank order.
func (a *Assembler) citations(b *Bundle) []Citation {
	metaByText := make(map[string]memory.Metadata, len(b.DocumentPassages)+len(b.KnowledgePassages))
	for _, m := range b.DocumentPassages {
		metaByText[m.Text] = m.Metadata
	}
	for _, m := range b.KnowledgePassages {
		if _, ok := metaByText[m.Text]; !ok {
			metaByText[m.Text] = m.Metadata
		}
	}

	seen := make(map[Citation]bool)
	var out []Citation
	for _, p := range b.RerankedPassages {
		meta, ok := metaByText[p.Text]
		if !ok {
			continue
		}
		c := Citation{Kind: meta.Kind, Source: meta.Source, Title: meta.Title}
		if c == (Citation{}) || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// summarizeSQL renders an execution result as a compact text block for
// the prompt. Failures still summarize so the model can explain them.
func summarizeSQL(res sqlpipe.ExecutionResult) string {
	var sb strings.Builder
	if !res.Success {
		sb.WriteString("Database query failed")
		if res.ExecError != "" {
			fmt.Fprintf(&sb, ": %s", res.ExecError)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(&sb, "\n- %s/%s: %s", e.Kind, e.Severity, e.Message)
		}
		return sb.String()
	}

	fmt.Fprintf(&sb, "Query: %s\n", res.Query)
	sb.WriteString(strings.Join(res.Columns, " | "))
	for _, row := range res.Rows {
		sb.WriteString("\n")
		for i, v := range row {
			if i > 0 {
				sb.WriteString(" | ")
			}
			fmt.Fprintf(&sb, "%v", v)
		}
	}
	if res.Truncated {
		fmt.Fprintf(&sb, "\n(%d rows shown, result truncated)", res.RowCount)
	}
	return sb.String()
}
