package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/primestride/atlas-backend/internal/http/response"
	"github.com/primestride/atlas-backend/internal/modules/knowledge"
	"github.com/primestride/atlas-backend/internal/modules/knowledge/steps"
	"github.com/primestride/atlas-backend/internal/platform/apierr"
	"github.com/primestride/atlas-backend/internal/platform/ctxutil"
	"github.com/primestride/atlas-backend/internal/platform/logger"
)

// KnowledgeService is the part of knowledge.Usecases the handler calls.
type KnowledgeService interface {
	Search(ctx context.Context, in knowledge.SearchInput) (knowledge.SearchOutput, error)
	Chat(ctx context.Context, in knowledge.AnswerInput) (knowledge.AnswerOutput, error)
	Agent(ctx context.Context, in knowledge.AnswerInput) (knowledge.AgentOutput, error)
	ProjectChat(ctx context.Context, in knowledge.ProjectAnswerInput) (knowledge.AnswerOutput, error)
	RefreshEmbeddings(ctx context.Context, in knowledge.RefreshInput) (knowledge.RefreshOutput, error)
	RefreshStatus(ctx context.Context, in knowledge.StatusInput) (knowledge.StatusOutput, error)
	Graph(ctx context.Context, in knowledge.GraphInput) (knowledge.GraphOutput, error)
	RelatedDocuments(ctx context.Context, in knowledge.RelatedInput) ([]knowledge.Source, error)
	Prompts() *steps.Prompts
}

type KnowledgeHandler struct {
	log       *logger.Logger
	knowledge KnowledgeService
}

func NewKnowledgeHandler(log *logger.Logger, svc KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{
		log:       log.With("handler", "KnowledgeHandler"),
		knowledge: svc,
	}
}

type searchReq struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
	Limit int    `json:"limit"`
}

// POST /api/knowledge/search
func (h *KnowledgeHandler) Search(c *gin.Context) {
	rd, ok := requireCaller(c)
	if !ok {
		return
	}
	var req searchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	mode, ok := steps.ParseMode(req.Mode)
	if !ok {
		response.RespondError(c, http.StatusBadRequest, "invalid_mode", errors.New("mode must be semantic, keyword or auto"))
		return
	}
	out, err := h.knowledge.Search(c.Request.Context(), knowledge.SearchInput{
		OrganizationID: rd.OrganizationID,
		Access:         accessFor(rd),
		Query:          req.Query,
		Mode:           mode,
		Limit:          req.Limit,
	})
	if err != nil {
		h.fail(c, "search", err)
		return
	}
	response.RespondOK(c, out)
}

type chatReq struct {
	Message     string               `json:"message"`
	History     []knowledge.ChatTurn `json:"history"`
	ProjectName string               `json:"project_name"`
}

// POST /api/knowledge/chat
func (h *KnowledgeHandler) Chat(c *gin.Context) {
	rd, ok := requireCaller(c)
	if !ok {
		return
	}
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.knowledge.Chat(c.Request.Context(), knowledge.AnswerInput{
		OrganizationID: rd.OrganizationID,
		Access:         accessFor(rd),
		Message:        req.Message,
		History:        req.History,
	})
	if err != nil {
		h.fail(c, "chat", err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/knowledge/agent
func (h *KnowledgeHandler) Agent(c *gin.Context) {
	rd, ok := requireCaller(c)
	if !ok {
		return
	}
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.knowledge.Agent(c.Request.Context(), knowledge.AnswerInput{
		OrganizationID: rd.OrganizationID,
		Access:         accessFor(rd),
		Message:        req.Message,
		History:        req.History,
	})
	if err != nil {
		h.fail(c, "agent", err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/projects/:id/chat
func (h *KnowledgeHandler) ProjectChat(c *gin.Context) {
	rd, ok := requireCaller(c)
	if !ok {
		return
	}
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return
	}
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.knowledge.ProjectChat(c.Request.Context(), knowledge.ProjectAnswerInput{
		OrganizationID: rd.OrganizationID,
		ProjectID:      projectID,
		ProjectName:    req.ProjectName,
		Access:         accessFor(rd),
		Message:        req.Message,
		History:        req.History,
	})
	if err != nil {
		h.fail(c, "project_chat", err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/knowledge/embeddings/refresh (admin)
func (h *KnowledgeHandler) RefreshEmbeddings(c *gin.Context) {
	rd, ok := requireCaller(c)
	if !ok {
		return
	}
	out, err := h.knowledge.RefreshEmbeddings(c.Request.Context(), knowledge.RefreshInput{
		OrganizationID: rd.OrganizationID,
		UserID:         rd.UserID,
	})
	if err != nil {
		h.fail(c, "refresh_embeddings", err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/knowledge/embeddings/status
func (h *KnowledgeHandler) RefreshStatus(c *gin.Context) {
	rd, ok := requireCaller(c)
	if !ok {
		return
	}
	out, err := h.knowledge.RefreshStatus(c.Request.Context(), knowledge.StatusInput{
		OrganizationID: rd.OrganizationID,
		UserID:         rd.UserID,
	})
	if err != nil {
		h.fail(c, "refresh_status", err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/knowledge/graph
func (h *KnowledgeHandler) Graph(c *gin.Context) {
	rd, ok := requireCaller(c)
	if !ok {
		return
	}
	out, err := h.knowledge.Graph(c.Request.Context(), knowledge.GraphInput{
		OrganizationID: rd.OrganizationID,
		Access:         accessFor(rd),
	})
	if err != nil {
		h.fail(c, "graph", err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/documents/:id/related
func (h *KnowledgeHandler) RelatedDocuments(c *gin.Context) {
	rd, ok := requireCaller(c)
	if !ok {
		return
	}
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	related, err := h.knowledge.RelatedDocuments(c.Request.Context(), knowledge.RelatedInput{
		OrganizationID: rd.OrganizationID,
		DocumentID:     docID,
		Access:         accessFor(rd),
	})
	if err != nil {
		h.fail(c, "related_documents", err)
		return
	}
	response.RespondOK(c, gin.H{"related": related})
}

func (h *KnowledgeHandler) fail(c *gin.Context, op string, err error) {
	ae := h.classify(err)
	log := h.log.Ctx(c.Request.Context())
	if ae.Status >= http.StatusInternalServerError {
		log.Error(op+" failed", "error", err, "status", ae.Status)
	} else {
		log.Debug(op+" rejected", "error", err, "status", ae.Status)
	}
	response.RespondAPIError(c, ae)
}

// classify maps knowledge errors onto client-facing API errors. Provider and
// storage error text is never passed through.
func (h *KnowledgeHandler) classify(err error) *apierr.Error {
	var rl *steps.RateLimitError
	switch {
	case errors.As(err, &rl):
		return apierr.New(http.StatusTooManyRequests, "rate_limited", errors.New("refresh limit reached, try again later")).
			WithDetails(map[string]any{
				"limit":          rl.Limit,
				"runs_used":      rl.RunsUsed,
				"runs_remaining": rl.RunsRemaining,
				"docs_used":      rl.DocsUsed,
				"docs_remaining": rl.DocsRemaining,
			})
	case errors.Is(err, steps.ErrInvalidInput):
		return apierr.New(http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, steps.ErrOrganizationNotFound):
		return apierr.New(http.StatusNotFound, "organization_not_found", steps.ErrOrganizationNotFound)
	case errors.Is(err, steps.ErrDocumentNotFound):
		return apierr.New(http.StatusNotFound, "document_not_found", steps.ErrDocumentNotFound)
	case errors.Is(err, steps.ErrGenerationFailed):
		msg := steps.DefaultPrompts().Messages.GenerationFailed
		if p := h.knowledge.Prompts(); p != nil {
			msg = p.Messages.GenerationFailed
		}
		return apierr.New(http.StatusBadGateway, "generation_failed", errors.New(msg))
	case errors.Is(err, steps.ErrProvider):
		return apierr.New(http.StatusBadGateway, "provider_unavailable", errors.New("upstream model provider unavailable"))
	default:
		return apierr.New(http.StatusInternalServerError, "internal_error", errors.New("internal error"))
	}
}

func requireCaller(c *gin.Context) (*ctxutil.RequestData, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil || rd.OrganizationID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing caller identity"))
		return nil, false
	}
	return rd, true
}

// accessFor lets admins see every document. Members see organization-wide
// documents, their teams' documents and their own.
func accessFor(rd *ctxutil.RequestData) knowledge.AccessFilter {
	if rd.IsAdmin() {
		return knowledge.AccessFilter{All: true}
	}
	return knowledge.AccessFilter{UserID: rd.UserID, TeamIDs: rd.TeamIDs}
}
