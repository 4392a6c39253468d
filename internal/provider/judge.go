package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sagekit/sage/internal/eval"
)

const judgeSystemPrompt = `You are an impartial evaluation judge. Rate the
candidate answer against the expected answer on four criteria, each an
integer from 0 to 100:
- relevance: does the answer address the question
- clarity: is the answer precise and unambiguous
- coherence: is the answer internally consistent and well structured
- completeness: does the answer cover everything the expected answer does

Respond with only a JSON object:
{"relevance": N, "clarity": N, "coherence": N, "completeness": N, "overall_score": N}`

// JudgeAdapter asks an external model to rate answers. It satisfies
// eval.Judge.
type JudgeAdapter struct {
	client *Client
	model  string
}

// Judge returns a judge adapter bound to one model.
func (c *Client) Judge(model string) *JudgeAdapter {
	return &JudgeAdapter{client: c, model: model}
}

// Score rates one answer. Temperature is pinned to zero: a judge that
// rolls dice is not a judge.
func (j *JudgeAdapter) Score(ctx context.Context, req eval.JudgeRequest) (eval.JudgeScores, error) {
	prompt := fmt.Sprintf("Question:\n%s\n\nExpected answer:\n%s\n\nCandidate answer:\n%s",
		req.Question, req.Expected, req.Answer)

	reply, err := j.client.complete(ctx, j.model, judgeSystemPrompt, prompt, 0)
	if err != nil {
		return eval.JudgeScores{}, fmt.Errorf("judge call: %w", err)
	}

	var scores eval.JudgeScores
	if err := json.Unmarshal([]byte(extractJSON(reply)), &scores); err != nil {
		return eval.JudgeScores{}, fmt.Errorf("parsing judge reply %q: %w", reply, err)
	}
	return scores, nil
}
