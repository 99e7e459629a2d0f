package engine

import (
	"context"

	"github.com/99designs/gqlgen/graphql"
)

type DataSource interface {
	Process(ctx context.Context, oc *graphql.OperationContext) *graphql.Response
}

// errorResponse builds a response carrying only the errors recorded in ctx.
func errorResponse(ctx context.Context) *graphql.Response {
	return &graphql.Response{
		Errors: graphql.GetErrors(ctx),
	}
}
