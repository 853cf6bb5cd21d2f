// Package principalctx carries the authenticated principal through the
// request context. Separate from handlers so middleware can use it too.
package principalctx

import (
	"context"

	"github.com/shopcore/authcore/internal/models"
)

type ctxKey string

const principalKey ctxKey = "principal"

func NewContext(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func FromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}
