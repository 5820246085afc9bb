package testutil

import (
	"context"
	"net/http"

	"pollbank/pkg/domain"
	"pollbank/pkg/requestcontext"
)

// WithActor adds an authenticated actor to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithActor(req *http.Request, actor domain.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// AsAdmin authenticates req as an administrator.
func AsAdmin(req *http.Request) *http.Request {
	return WithActor(req, domain.Actor{UserID: "U_1", Role: domain.RoleAdmin})
}

// AsRegional authenticates req as the regional user userID.
func AsRegional(req *http.Request, userID string) *http.Request {
	return WithActor(req, domain.Actor{UserID: userID, Role: domain.RoleRegional})
}

// AsPersonnel authenticates req as the officer owning the given record.
func AsPersonnel(req *http.Request, category domain.Category, recordID string) *http.Request {
	return WithActor(req, domain.Actor{
		UserID:   recordID,
		Role:     domain.RolePersonnel,
		Category: category,
		RecordID: recordID,
	})
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
