package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/primestride/atlas-backend/internal/observability"
	"github.com/primestride/atlas-backend/internal/platform/openai"
)

const maxFollowUps = 3

type AgentOutput struct {
	Reply     string       `json:"reply"`
	FollowUps []string     `json:"follow_ups"`
	Sources   []Source     `json:"sources"`
	Status    AnswerStatus `json:"status"`
	// Malformed is set when the model's JSON could not be parsed and the raw
	// text was returned as the reply.
	Malformed bool `json:"malformed,omitempty"`
}

// AgentAnswer is Answer with a structured reply and suggested follow-ups.
func AgentAnswer(ctx context.Context, deps AnswerDeps, in AnswerInput) (AgentOutput, error) {
	out := AgentOutput{FollowUps: []string{}, Sources: []Source{}}
	ctx, span := observability.Tracer().Start(ctx, "knowledge.answer")
	defer span.End()
	span.SetAttributes(attribute.String("answer.kind", "agent"))

	g, err := retrieveGrounding(ctx, deps, in)
	if err != nil {
		return out, err
	}
	p := promptsOrDefault(deps.Prompts)
	if msg, ok := g.cannedMessage(p); ok {
		out.Reply, out.Status = msg, g.status
		return out, nil
	}

	system := render(p.Prompts.AgentSystem, map[string]string{
		"organization":   g.org.Name,
		"not_in_context": p.Messages.NotInContext,
		"context":        BuildContext(scoredDocs(g.ranked), ChatContextChars),
	})
	raw, err := deps.AI.Complete(ctx, openai.CompletionRequest{
		System:          system,
		Messages:        conversation(in.History, ChatHistoryTurns, in.Message),
		MaxOutputTokens: AgentMaxOutputTokens,
		Temperature:     0.3,
		JSON:            true,
	})
	if err != nil {
		deps.Log.Ctx(ctx).Warn("agent generation failed", "organization_id", in.OrganizationID, "error", err)
		return out, fmt.Errorf("%w: %w", ErrGenerationFailed, providerErr("complete", err))
	}

	reply, followUps, perr := ParseAgentReply(raw)
	if perr != nil {
		deps.Log.Ctx(ctx).Warn("agent reply was not valid JSON; returning raw text", "error", perr)
		out.Reply = strings.TrimSpace(raw)
		out.Malformed = true
	} else {
		out.Reply = reply
		out.FollowUps = followUps
	}
	out.Status = StatusAnswered
	out.Sources = sourcesFromScored(g.ranked)
	return out, nil
}

// ParseAgentReply decodes {"reply": ..., "follow_ups": [...]}, tolerating a
// surrounding markdown code fence. Any other shape is ErrMalformedResponse.
func ParseAgentReply(raw string) (string, []string, error) {
	body := stripCodeFence(raw)
	var parsed struct {
		Reply     string   `json:"reply"`
		FollowUps []string `json:"follow_ups"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	reply := strings.TrimSpace(parsed.Reply)
	if reply == "" {
		return "", nil, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}
	followUps := make([]string, 0, maxFollowUps)
	for _, f := range parsed.FollowUps {
		if f = strings.TrimSpace(f); f != "" {
			followUps = append(followUps, f)
		}
		if len(followUps) == maxFollowUps {
			break
		}
	}
	return reply, followUps, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
