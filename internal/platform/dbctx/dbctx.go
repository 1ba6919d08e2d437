package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional transaction handle.
// Repositories receive it so callers decide the transaction boundary.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// DB returns the transaction handle bound to the request context, falling
// back to the given base handle when the caller did not open one.
func (c Context) DB(base *gorm.DB) *gorm.DB {
	if c.Tx != nil {
		return c.Tx.WithContext(c.ctx())
	}
	return base.WithContext(c.ctx())
}

func (c Context) ctx() context.Context {
	if c.Ctx != nil {
		return c.Ctx
	}
	return context.Background()
}
