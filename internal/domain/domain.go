package domain

import "github.com/primestride/atlas-backend/internal/domain/knowledge"

type (
	Organization               = knowledge.Organization
	OrganizationEmbeddingState = knowledge.OrganizationEmbeddingState
	Document                   = knowledge.Document
	DocumentEmbedding          = knowledge.DocumentEmbedding
	ClusterName                = knowledge.ClusterName
	RefreshLogEntry            = knowledge.RefreshLogEntry
)

// Models lists every persisted model in migration order.
func Models() []any {
	return []any{
		&Organization{},
		&OrganizationEmbeddingState{},
		&Document{},
		&DocumentEmbedding{},
		&ClusterName{},
		&RefreshLogEntry{},
	}
}
