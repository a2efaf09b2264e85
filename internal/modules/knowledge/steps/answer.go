package steps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/primestride/atlas-backend/internal/data/repos"
	types "github.com/primestride/atlas-backend/internal/domain"
	"github.com/primestride/atlas-backend/internal/observability"
	"github.com/primestride/atlas-backend/internal/platform/dbctx"
	"github.com/primestride/atlas-backend/internal/platform/logger"
	"github.com/primestride/atlas-backend/internal/platform/openai"
)

const contextDelimiter = "\n\n---\n\n"

type AnswerDeps struct {
	Log        *logger.Logger
	AI         openai.Client
	Orgs       repos.OrganizationRepo
	Docs       repos.DocumentRepo
	Embeddings repos.EmbeddingRepo
	Prompts    *Prompts
	Metrics    *observability.Metrics
}

type AnswerInput struct {
	OrganizationID uuid.UUID
	Access         repos.AccessFilter
	Message        string
	History        []ChatTurn
}

type AnswerOutput struct {
	Answer  string       `json:"answer"`
	Sources []Source     `json:"sources"`
	Status  AnswerStatus `json:"status"`
}

// Answer grounds a reply in the top semantic matches for the message.
// An organization without embeddings, or without a match above the chat
// threshold, gets a fixed message and no generation call.
func Answer(ctx context.Context, deps AnswerDeps, in AnswerInput) (AnswerOutput, error) {
	out := AnswerOutput{Sources: []Source{}}
	ctx, span := observability.Tracer().Start(ctx, "knowledge.answer")
	defer span.End()
	span.SetAttributes(attribute.String("answer.kind", "chat"))

	g, err := retrieveGrounding(ctx, deps, in)
	if err != nil {
		return out, err
	}
	p := promptsOrDefault(deps.Prompts)
	if msg, ok := g.cannedMessage(p); ok {
		out.Answer, out.Status = msg, g.status
		return out, nil
	}

	docs := scoredDocs(g.ranked)
	system := render(p.Prompts.ChatSystem, map[string]string{
		"organization":   g.org.Name,
		"not_in_context": p.Messages.NotInContext,
		"context":        BuildContext(docs, ChatContextChars),
	})
	text, err := deps.AI.Complete(ctx, openai.CompletionRequest{
		System:          system,
		Messages:        conversation(in.History, ChatHistoryTurns, in.Message),
		MaxOutputTokens: ChatMaxOutputTokens,
		Temperature:     0.3,
	})
	if err != nil {
		deps.Log.Ctx(ctx).Warn("chat generation failed", "organization_id", in.OrganizationID, "error", err)
		return out, fmt.Errorf("%w: %w", ErrGenerationFailed, providerErr("complete", err))
	}
	out.Answer = text
	out.Status = StatusAnswered
	out.Sources = sourcesFromScored(g.ranked)
	return out, nil
}

type ProjectAnswerInput struct {
	OrganizationID uuid.UUID
	ProjectID      uuid.UUID
	ProjectName    string
	Access         repos.AccessFilter
	Message        string
	History        []ChatTurn
}

// ProjectAnswer grounds a reply in every accessible document of one project.
// Sources are ordered by keyword relevance of the message, stable on ties.
func ProjectAnswer(ctx context.Context, deps AnswerDeps, in ProjectAnswerInput) (AnswerOutput, error) {
	out := AnswerOutput{Sources: []Source{}}
	if deps.Log == nil || deps.AI == nil || deps.Orgs == nil || deps.Docs == nil {
		return out, fmt.Errorf("project_answer: missing deps")
	}
	if in.OrganizationID == uuid.Nil || in.ProjectID == uuid.Nil || isBlank(in.Message) {
		return out, fmt.Errorf("project_answer: %w: organization, project and message are required", ErrInvalidInput)
	}
	ctx, span := observability.Tracer().Start(ctx, "knowledge.answer")
	defer span.End()
	span.SetAttributes(attribute.String("answer.kind", "project"))

	dbc := dbctx.Context{Ctx: ctx}
	org, err := loadOrganization(dbc, deps.Orgs, in.OrganizationID)
	if err != nil {
		return out, err
	}
	ids, err := deps.Docs.ListIDsByProject(dbc, in.OrganizationID, in.ProjectID, in.Access)
	if err != nil {
		return out, fmt.Errorf("project_answer: list project documents: %w", err)
	}
	docs, err := deps.Docs.GetContentByIDs(dbc, in.OrganizationID, ids)
	if err != nil {
		return out, fmt.Errorf("project_answer: load documents: %w", err)
	}
	p := promptsOrDefault(deps.Prompts)
	if len(docs) == 0 {
		out.Answer, out.Status = p.Messages.EmptyKnowledgeBase, StatusEmptyKnowledgeBase
		return out, nil
	}

	ranked := rankByQuestion(in.Message, docs)
	projectName := strings.TrimSpace(in.ProjectName)
	if projectName == "" {
		projectName = in.ProjectID.String()
	}
	system := render(p.Prompts.ProjectChatSystem, map[string]string{
		"organization":   org.Name,
		"project":        projectName,
		"not_in_context": p.Messages.NotInContext,
		"context":        BuildContext(docs, ProjectContextChars),
	})
	text, err := deps.AI.Complete(ctx, openai.CompletionRequest{
		System:          system,
		Messages:        conversation(in.History, ProjectHistoryTurns, in.Message),
		MaxOutputTokens: ProjectMaxOutputTokens,
		Temperature:     0.3,
	})
	if err != nil {
		deps.Log.Ctx(ctx).Warn("project chat generation failed", "project_id", in.ProjectID, "error", err)
		return out, fmt.Errorf("%w: %w", ErrGenerationFailed, providerErr("complete", err))
	}
	out.Answer = text
	out.Status = StatusAnswered
	out.Sources = sourcesFromScored(ranked)
	return out, nil
}

// grounding is the retrieval half shared by chat and agent answers.
type grounding struct {
	org    *types.Organization
	ranked []Scored
	status AnswerStatus
}

func (g grounding) cannedMessage(p *Prompts) (string, bool) {
	switch g.status {
	case StatusEmptyKnowledgeBase:
		return p.Messages.EmptyKnowledgeBase, true
	case StatusNoMatch:
		return p.Messages.NoMatch, true
	default:
		return "", false
	}
}

func retrieveGrounding(ctx context.Context, deps AnswerDeps, in AnswerInput) (grounding, error) {
	g := grounding{}
	if deps.Log == nil || deps.AI == nil || deps.Orgs == nil || deps.Docs == nil || deps.Embeddings == nil {
		return g, fmt.Errorf("answer: missing deps")
	}
	if in.OrganizationID == uuid.Nil || isBlank(in.Message) {
		return g, fmt.Errorf("answer: %w: organization and message are required", ErrInvalidInput)
	}
	dbc := dbctx.Context{Ctx: ctx}
	org, err := loadOrganization(dbc, deps.Orgs, in.OrganizationID)
	if err != nil {
		return g, err
	}
	g.org = org

	docs, err := deps.Docs.ListByOrganization(dbc, in.OrganizationID, in.Access)
	if err != nil {
		return g, fmt.Errorf("answer: list documents: %w", err)
	}
	cands, err := loadCandidates(dbc, deps.Embeddings, in.OrganizationID, docs)
	if err != nil {
		return g, fmt.Errorf("answer: %w", err)
	}
	if len(cands) == 0 {
		g.status = StatusEmptyKnowledgeBase
		return g, nil
	}
	deps.Metrics.IncRetrieval(string(ModeSemantic))

	qvec, err := deps.AI.Embed(ctx, in.Message)
	if err != nil {
		deps.Log.Ctx(ctx).Warn("question embedding failed", "organization_id", in.OrganizationID, "error", err)
		return g, fmt.Errorf("%w: %w", ErrGenerationFailed, providerErr("embed", err))
	}
	g.ranked = RankSemantic(qvec, cands, ChatThreshold, ChatTopN)
	if len(g.ranked) == 0 {
		g.status = StatusNoMatch
		return g, nil
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("answer.sources", len(g.ranked)))
	return g, nil
}

func loadOrganization(dbc dbctx.Context, orgs repos.OrganizationRepo, id uuid.UUID) (*types.Organization, error) {
	org, err := orgs.GetByID(dbc, id)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("load organization: %w", err)
	}
	return org, nil
}

// BuildContext renders one block per document, content capped at maxChars runes.
func BuildContext(docs []*types.Document, maxChars int) string {
	blocks := make([]string, 0, len(docs))
	for i, d := range docs {
		if d == nil {
			continue
		}
		docType := d.DocType
		if docType == "" {
			docType = "document"
		}
		blocks = append(blocks, fmt.Sprintf(
			"[Document %d]\nTitle: %s\nID: %s\nType: %s\n\n%s",
			i+1, d.Title, d.ID, docType, truncateRunes(strings.TrimSpace(d.Content), maxChars),
		))
	}
	return strings.Join(blocks, contextDelimiter)
}

// conversation keeps the last maxTurns user/assistant turns, then the new message.
func conversation(history []ChatTurn, maxTurns int, message string) []openai.Message {
	kept := make([]openai.Message, 0, len(history))
	for _, t := range history {
		role := strings.ToLower(strings.TrimSpace(t.Role))
		if role != openai.RoleUser && role != openai.RoleAssistant {
			continue
		}
		if isBlank(t.Content) {
			continue
		}
		kept = append(kept, openai.Message{Role: role, Content: t.Content})
	}
	if len(kept) > maxTurns {
		kept = kept[len(kept)-maxTurns:]
	}
	return append(kept, openai.Message{Role: openai.RoleUser, Content: strings.TrimSpace(message)})
}

func scoredDocs(ranked []Scored) []*types.Document {
	out := make([]*types.Document, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.Doc)
	}
	return out
}

func sourcesFromScored(ranked []Scored) []Source {
	out := make([]Source, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, Source{
			DocumentID: s.Doc.ID,
			Title:      s.Doc.Title,
			DocType:    s.Doc.DocType,
			Score:      s.Score,
		})
	}
	return out
}

// rankByQuestion scores each document by the keyword score of every question
// term. Questions without separable terms are scored as one phrase.
func rankByQuestion(question string, docs []*types.Document) []Scored {
	terms := questionTerms(question)
	out := make([]Scored, 0, len(docs))
	for _, d := range docs {
		total := 0
		for _, t := range terms {
			if s, _, ok := ScoreKeyword(t, d.Title, d.Content); ok {
				total += s
			}
		}
		out = append(out, Scored{Doc: d, Score: float64(total)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func questionTerms(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := map[string]bool{}
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	if len(terms) == 0 {
		if q := strings.TrimSpace(question); q != "" {
			return []string{q}
		}
	}
	return terms
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "what": true, "how": true,
	"who": true, "when": true, "where": true, "why": true, "does": true, "this": true,
	"that": true, "with": true, "from": true, "about": true, "can": true, "you": true,
	"our": true, "your": true, "there": true, "which": true, "have": true, "has": true,
}
