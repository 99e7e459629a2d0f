package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vvakame/walletop/internal/log"
)

var _ DataSource = (*RemoteDataSource)(nil)

const persistedQueryNotFound = "PersistedQueryNotFound"

type RemoteDataSource struct {
	URL string

	Client  *http.Client
	Headers http.Header

	// PersistedQueries sends the query hash first and the full query only when the server asks for it.
	PersistedQueries bool
}

type rawParams struct {
	Query         string                 `json:"query,omitempty"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`
}

func (ds *RemoteDataSource) Process(ctx context.Context, oc *graphql.OperationContext) *graphql.Response {
	ctx = graphql.WithResponseContext(
		ctx,
		graphql.DefaultErrorPresenter,
		graphql.DefaultRecover,
	)
	ctx = log.WithValues(ctx, "url", ds.URL, "operation", oc.OperationName)

	params := &rawParams{
		Query:         oc.RawQuery,
		OperationName: oc.OperationName,
		Variables:     oc.Variables,
	}
	if !ds.PersistedQueries {
		return ds.post(ctx, params)
	}

	sum := sha256.Sum256([]byte(oc.RawQuery))
	params.Extensions = map[string]interface{}{
		"persistedQuery": map[string]interface{}{
			"version":    1,
			"sha256Hash": hex.EncodeToString(sum[:]),
		},
	}

	hashOnly := *params
	hashOnly.Query = ""
	resp := ds.post(ctx, &hashOnly)
	if !isPersistedQueryNotFound(resp) {
		return resp
	}

	log.Debug(ctx, "persisted query is not registered, sending full query")
	return ds.post(ctx, params)
}

func (ds *RemoteDataSource) post(ctx context.Context, params *rawParams) *graphql.Response {
	hc := ds.Client
	if hc == nil {
		hc = http.DefaultClient
	}

	b, err := json.Marshal(params)
	if err != nil {
		graphql.AddError(ctx, err)
		return errorResponse(ctx)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ds.URL, bytes.NewBuffer(b))
	if err != nil {
		graphql.AddError(ctx, err)
		return errorResponse(ctx)
	}
	for key, values := range ds.Headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		graphql.AddError(ctx, err)
		return errorResponse(ctx)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	b, err = io.ReadAll(resp.Body)
	if err != nil {
		graphql.AddError(ctx, err)
		return errorResponse(ctx)
	}

	log.Debug(ctx, "remote response", "status", resp.StatusCode, "bytes", len(b))

	gqlResp := &graphql.Response{}
	err = json.Unmarshal(b, gqlResp)

	if resp.StatusCode != http.StatusOK {
		// servers answer request errors with a non 200 status and a regular error body
		if err == nil && len(gqlResp.Errors) != 0 {
			return gqlResp
		}
		graphql.AddErrorf(ctx, "unexpected response code: %d", resp.StatusCode)
		return errorResponse(ctx)
	}
	if err != nil {
		graphql.AddError(ctx, err)
		return errorResponse(ctx)
	}

	return gqlResp
}

func isPersistedQueryNotFound(resp *graphql.Response) bool {
	for _, gErr := range resp.Errors {
		if gErr.Message == persistedQueryNotFound {
			return true
		}
		if code, ok := gErr.Extensions["code"].(string); ok && code == "PERSISTED_QUERY_NOT_FOUND" {
			return true
		}
	}
	return false
}
