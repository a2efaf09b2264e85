package steps

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode selects the ranking strategy for a search.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
	// ModeAuto ranks semantically when the candidate set has embeddings and
	// falls back to keyword ranking otherwise.
	ModeAuto Mode = "auto"
)

func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeAuto:
		return ModeAuto, true
	case ModeSemantic:
		return ModeSemantic, true
	case ModeKeyword:
		return ModeKeyword, true
	default:
		return "", false
	}
}

const (
	// ChatThreshold is the minimum similarity for grounding a chat answer.
	ChatThreshold = 0.25
	// GraphThreshold is the minimum similarity for graph edges and related documents.
	GraphThreshold = 0.3

	ChatTopN  = 5
	GraphTopN = 3

	ChatContextChars    = 2000
	ProjectContextChars = 3000

	ChatHistoryTurns    = 6
	ProjectHistoryTurns = 10

	ChatMaxOutputTokens    = 1000
	ProjectMaxOutputTokens = 1500
	AgentMaxOutputTokens   = 1200
	ClusterNameMaxTokens   = 20

	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// Settings are the refresh-job limits and tuning knobs.
type Settings struct {
	MaxRunsPerUser int
	MaxDocsPerOrg  int
	Window         time.Duration
	Cooldown       time.Duration
	// DisableCooldown re-embeds every document on each run. A zero Cooldown
	// alone means the default.
	DisableCooldown bool
	Concurrency     int
	MaxEmbedChars   int
}

func DefaultSettings() Settings {
	return Settings{
		MaxRunsPerUser: 3,
		MaxDocsPerOrg:  500,
		Window:         24 * time.Hour,
		Cooldown:       24 * time.Hour,
		Concurrency:    4,
		MaxEmbedChars:  24000,
	}
}

func (s Settings) normalized() Settings {
	def := DefaultSettings()
	if s.MaxRunsPerUser <= 0 {
		s.MaxRunsPerUser = def.MaxRunsPerUser
	}
	if s.MaxDocsPerOrg <= 0 {
		s.MaxDocsPerOrg = def.MaxDocsPerOrg
	}
	if s.Window <= 0 {
		s.Window = def.Window
	}
	switch {
	case s.DisableCooldown:
		s.Cooldown = 0
	case s.Cooldown <= 0:
		s.Cooldown = def.Cooldown
	}
	if s.Concurrency <= 0 {
		s.Concurrency = def.Concurrency
	}
	if s.MaxEmbedChars <= 0 {
		s.MaxEmbedChars = def.MaxEmbedChars
	}
	return s
}

// RetrievalResult is one ranked document for a query. It is never persisted.
type RetrievalResult struct {
	DocumentID uuid.UUID `json:"document_id"`
	Title      string    `json:"title"`
	DocType    string    `json:"doc_type"`
	Score      float64   `json:"score"`
	Snippet    string    `json:"snippet"`
	WhyMatched []string  `json:"why_matched"`
}

// Source attributes an answer to a document.
type Source struct {
	DocumentID uuid.UUID `json:"document_id"`
	Title      string    `json:"title"`
	DocType    string    `json:"doc_type"`
	Score      float64   `json:"score"`
}

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AnswerStatus string

const (
	StatusAnswered           AnswerStatus = "answered"
	StatusEmptyKnowledgeBase AnswerStatus = "empty_knowledge_base"
	StatusNoMatch            AnswerStatus = "no_match"
)
