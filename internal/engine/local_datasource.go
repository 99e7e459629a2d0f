package engine

import (
	"context"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/validator"
	_ "github.com/vektah/gqlparser/v2/validator/rules"
	"github.com/vvakame/walletop/internal/log"
)

var _ DataSource = (*LocalDataSource)(nil)

type LocalDataSource struct {
	ExecutableSchema graphql.ExecutableSchema
}

func (ds *LocalDataSource) Process(ctx context.Context, oc *graphql.OperationContext) *graphql.Response {
	ctx = graphql.WithResponseContext(ctx, graphql.DefaultErrorPresenter, graphql.DefaultRecover)

	schema := ds.ExecutableSchema.Schema()

	gErrs := validator.Validate(schema, oc.Doc)
	if len(gErrs) != 0 {
		return &graphql.Response{Errors: gErrs}
	}

	if oc.Operation == nil {
		oc.Operation = oc.Doc.Operations.ForName(oc.OperationName)
	}
	if oc.Operation == nil {
		graphql.AddErrorf(ctx, "operation %s not found", oc.OperationName)
		return errorResponse(ctx)
	}

	variables, err := validator.VariableValues(schema, oc.Operation, oc.Variables)
	if err != nil {
		graphql.AddError(ctx, err)
		return errorResponse(ctx)
	}
	oc.Variables = variables

	log.Debug(ctx, "local execution", "operation", oc.OperationName)

	ctx = graphql.WithOperationContext(ctx, oc)
	rh := ds.ExecutableSchema.Exec(ctx)
	resp := rh(ctx)
	if gErrs := graphql.GetErrors(ctx); len(gErrs) != 0 {
		resp.Errors = append(resp.Errors, gErrs...)
	}

	return resp
}
