package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/sagekit/sage/internal/sqlpipe"
)

const sqlSystemPrompt = `You translate questions into a single PostgreSQL
SELECT statement. Rules:
- one read-only SELECT or WITH statement, no writes, no DDL
- double quotes for identifiers, single quotes for string literals
- always include a LIMIT clause
Reply with only the SQL, no markdown, no commentary. Reply with the
single word NULL if the question cannot be answered with a query.`

// SQLGenerator translates questions into SQL with an external model.
// It satisfies sqlpipe.Generator.
type SQLGenerator struct {
	client *Client
	model  string
	schema string
}

// SQLGenerator returns an NL→SQL adapter bound to one model. schema is
// a textual description of the queryable tables, included verbatim in
// the prompt.
func (c *Client) SQLGenerator(model, schema string) *SQLGenerator {
	return &SQLGenerator{client: c, model: model, schema: schema}
}

// Generate produces one candidate query. An empty return signals the
// pipeline to use its deterministic default.
func (g *SQLGenerator) Generate(ctx context.Context, req sqlpipe.GenerateRequest) (string, error) {
	var sb strings.Builder
	if g.schema != "" {
		fmt.Fprintf(&sb, "Schema:\n%s\n\n", g.schema)
	}
	if req.Prompt != "" {
		fmt.Fprintf(&sb, "%s\n\n", req.Prompt)
	}
	fmt.Fprintf(&sb, "Question: %s\n", req.UserQuestion)

	// Feed back earlier failures so regeneration can avoid them.
	for _, attempt := range req.PreviousAttempts {
		fmt.Fprintf(&sb, "\nRejected attempt %d: %s", attempt.Number, attempt.Query)
	}
	for _, verr := range req.ValidationErrors {
		fmt.Fprintf(&sb, "\nValidation error (%s/%s): %s", verr.Kind, verr.Severity, verr.Message)
	}

	reply, err := g.client.complete(ctx, g.model, sqlSystemPrompt, sb.String(), 0)
	if err != nil {
		return "", fmt.Errorf("sql generation: %w", err)
	}

	query := strings.TrimSpace(stripFences(reply))
	if strings.EqualFold(query, "NULL") {
		return "", nil
	}
	return query, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return s
}
