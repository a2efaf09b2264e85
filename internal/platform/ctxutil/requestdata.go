package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type requestDataKey struct{}

// RequestData is the caller identity resolved by the auth middleware.
type RequestData struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           string
	TeamIDs        []uuid.UUID
}

func (rd *RequestData) IsAdmin() bool {
	return rd != nil && rd.Role == RoleAdmin
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey{})
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}
