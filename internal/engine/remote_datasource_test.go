package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/99designs/gqlgen/graphql"
	testlogr "github.com/go-logr/logr/testing"
	"github.com/vvakame/walletop/internal/log"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(context.Background(), testlogr.NewTestLogger(t))
}

func TestRemoteDataSource_Process(t *testing.T) {
	ctx := testContext(t)

	var got rawParams
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"walletComplete":{"firstLogIn":true}}}`))
	}))
	defer srv.Close()

	ds := &RemoteDataSource{
		URL:     srv.URL,
		Headers: http.Header{"Authorization": []string{"Bearer t"}},
	}
	resp := ds.Process(ctx, &graphql.OperationContext{
		RawQuery:      `mutation walletComplete { walletComplete { firstLogIn } }`,
		OperationName: "walletComplete",
		Variables:     map[string]interface{}{"input": map[string]interface{}{"nonce": "n"}},
	})

	if len(resp.Errors) != 0 {
		t.Fatal(resp.Errors)
	}
	if v := string(resp.Data); v != `{"walletComplete":{"firstLogIn":true}}` {
		t.Errorf("unexpected data: %s", v)
	}
	if got.OperationName != "walletComplete" || !strings.HasPrefix(got.Query, "mutation walletComplete") {
		t.Errorf("unexpected params: %+v", got)
	}
	if got.Extensions != nil {
		t.Errorf("unexpected extensions: %v", got.Extensions)
	}
	if v := gotHeader.Get("Authorization"); v != "Bearer t" {
		t.Errorf("unexpected Authorization header: %s", v)
	}
	if v := gotHeader.Get("Content-Type"); v != "application/json" {
		t.Errorf("unexpected Content-Type header: %s", v)
	}
}

func TestRemoteDataSource_Process_errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{
			name:    "error body with non 200 status",
			status:  http.StatusUnprocessableEntity,
			body:    `{"errors":[{"message":"Cannot query field \"balance\" on type \"Wallet\"."}],"data":null}`,
			wantErr: `Cannot query field "balance" on type "Wallet".`,
		},
		{
			name:    "non 200 status without body",
			status:  http.StatusBadGateway,
			body:    `bad gateway`,
			wantErr: "unexpected response code: 502",
		},
		{
			name:    "broken json",
			status:  http.StatusOK,
			body:    `{"data":`,
			wantErr: "unexpected end of JSON input",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			ds := &RemoteDataSource{URL: srv.URL}
			resp := ds.Process(ctx, &graphql.OperationContext{RawQuery: `{ wallet(address: "0x1") { id } }`})
			if len(resp.Errors) != 1 {
				t.Fatalf("unexpected errors: %v", resp.Errors)
			}
			if !strings.Contains(resp.Errors[0].Message, tt.wantErr) {
				t.Errorf("unexpected error: %s, want: %s", resp.Errors[0].Message, tt.wantErr)
			}
		})
	}
}

func TestRemoteDataSource_Process_persistedQueries(t *testing.T) {
	ctx := testContext(t)

	var mu sync.Mutex
	known := make(map[string]string)
	var requests []rawParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params rawParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Error(err)
		}

		mu.Lock()
		defer mu.Unlock()
		requests = append(requests, params)

		pq, _ := params.Extensions["persistedQuery"].(map[string]interface{})
		hash, _ := pq["sha256Hash"].(string)
		if params.Query == "" {
			if _, ok := known[hash]; !ok {
				_, _ = w.Write([]byte(`{"errors":[{"message":"PersistedQueryNotFound","extensions":{"code":"PERSISTED_QUERY_NOT_FOUND"}}],"data":null}`))
				return
			}
		} else {
			known[hash] = params.Query
		}
		_, _ = w.Write([]byte(`{"data":{"wallet":{"id":"w-1"}}}`))
	}))
	defer srv.Close()

	ds := &RemoteDataSource{URL: srv.URL, PersistedQueries: true}
	oc := &graphql.OperationContext{RawQuery: `query lookup { wallet(address: "0x1") { id } }`, OperationName: "lookup"}

	resp := ds.Process(ctx, oc)
	if len(resp.Errors) != 0 {
		t.Fatal(resp.Errors)
	}
	if len(requests) != 2 {
		t.Fatalf("unexpected request count: %d", len(requests))
	}
	if requests[0].Query != "" || requests[1].Query == "" {
		t.Errorf("unexpected requests: %+v", requests)
	}

	resp = ds.Process(ctx, oc)
	if len(resp.Errors) != 0 {
		t.Fatal(resp.Errors)
	}
	if len(requests) != 3 {
		t.Fatalf("unexpected request count: %d", len(requests))
	}
	if requests[2].Query != "" {
		t.Errorf("known query is sent again: %+v", requests[2])
	}
	if v := string(resp.Data); v != `{"wallet":{"id":"w-1"}}` {
		t.Errorf("unexpected data: %s", v)
	}
}
