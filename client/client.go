// Package client sends operation documents to a GraphQL server, either over HTTP or in process.
package client

import (
	"context"
	"net/http"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vvakame/walletop/internal/engine"
	"github.com/vvakame/walletop/operation"
)

type DataSource interface {
	Process(ctx context.Context, oc *graphql.OperationContext) *graphql.Response
}

var (
	_ DataSource = (*engine.RemoteDataSource)(nil)
	_ DataSource = (*engine.LocalDataSource)(nil)
)

type Option func(ds *engine.RemoteDataSource)

func WithHTTPClient(hc *http.Client) Option {
	return func(ds *engine.RemoteDataSource) {
		ds.Client = hc
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(ds *engine.RemoteDataSource) {
		if ds.Headers == nil {
			ds.Headers = make(http.Header)
		}
		ds.Headers.Add(key, value)
	}
}

// WithPersistedQueries enables Automatic Persisted Queries.
func WithPersistedQueries() Option {
	return func(ds *engine.RemoteDataSource) {
		ds.PersistedQueries = true
	}
}

// NewRemote returns a DataSource posting operations to url.
func NewRemote(url string, opts ...Option) DataSource {
	ds := &engine.RemoteDataSource{URL: url}
	for _, opt := range opts {
		opt(ds)
	}
	return ds
}

// NewLocal returns a DataSource executing operations against es in process.
func NewLocal(es graphql.ExecutableSchema) DataSource {
	return &engine.LocalDataSource{ExecutableSchema: es}
}

// OperationContext prepares doc for DataSource.Process.
// The returned context owns a private copy of the AST.
func OperationContext(doc *operation.Document, variables map[string]interface{}) (*graphql.OperationContext, error) {
	queryDoc, err := doc.CloneQueryDocument()
	if err != nil {
		return nil, err
	}

	op := queryDoc.Operations.ForName(doc.OperationName())
	if op == nil && len(queryDoc.Operations) == 1 {
		op = queryDoc.Operations[0]
	}

	return &graphql.OperationContext{
		RawQuery:      doc.Query(),
		Variables:     variables,
		OperationName: doc.OperationName(),
		Doc:           queryDoc,
		Operation:     op,
	}, nil
}

// Do builds the operation context of doc and processes it with ds.
func Do(ctx context.Context, ds DataSource, doc *operation.Document, variables map[string]interface{}) (*graphql.Response, error) {
	oc, err := OperationContext(doc, variables)
	if err != nil {
		return nil, err
	}
	return ds.Process(ctx, oc), nil
}
