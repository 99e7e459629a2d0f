package engine

import (
	"strings"
	"testing"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vvakame/walletop/internal/walletstub"
)

func TestLocalDataSource_Process(t *testing.T) {
	svc, err := walletstub.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	ds := &LocalDataSource{ExecutableSchema: svc}

	const query = `
		mutation walletComplete($input: WalletCompleteInput!) {
			walletComplete(input: $input) {
				firstLogIn
				wallet { address }
			}
		}
	`

	tests := []struct {
		name          string
		query         string
		operationName string
		variables     map[string]interface{}
		wantData      string
		wantErr       string
	}{
		{
			name:          "first sign in",
			query:         query,
			operationName: "walletComplete",
			variables: map[string]interface{}{
				"input": map[string]interface{}{
					"walletAddress": "0xABC",
					"signature":     "sig",
					"nonce":         "n-1",
				},
			},
			wantData: `{"walletComplete":{"firstLogIn":true,"wallet":{"address":"0xabc"}}}`,
		},
		{
			name:          "second sign in",
			query:         query,
			operationName: "walletComplete",
			variables: map[string]interface{}{
				"input": map[string]interface{}{
					"walletAddress": "0xabc",
					"signature":     "sig",
					"nonce":         "n-2",
				},
			},
			wantData: `{"walletComplete":{"firstLogIn":false,"wallet":{"address":"0xabc"}}}`,
		},
		{
			name:          "missing variable",
			query:         query,
			operationName: "walletComplete",
			wantErr:       "must be defined",
		},
		{
			name:    "validation error",
			query:   `{ wallet(address: "0xabc") { balance } }`,
			wantErr: `Cannot query field "balance" on type "Wallet".`,
		},
		{
			name:          "unknown operation",
			query:         query,
			operationName: "other",
			wantErr:       "operation other not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)

			doc, gErr := parser.ParseQuery(&ast.Source{Input: tt.query})
			if gErr != nil {
				t.Fatal(gErr)
			}

			resp := ds.Process(ctx, &graphql.OperationContext{
				RawQuery:      tt.query,
				Doc:           doc,
				OperationName: tt.operationName,
				Variables:     tt.variables,
			})

			if tt.wantErr != "" {
				if len(resp.Errors) == 0 {
					t.Fatalf("error is expected, got data: %s", string(resp.Data))
				}
				if !strings.Contains(resp.Errors[0].Message, tt.wantErr) {
					t.Errorf("unexpected error: %s, want: %s", resp.Errors[0].Message, tt.wantErr)
				}
				return
			}

			if len(resp.Errors) != 0 {
				t.Fatal(resp.Errors)
			}
			if v := string(resp.Data); v != tt.wantData {
				t.Errorf("unexpected data: %s, want: %s", v, tt.wantData)
			}
		})
	}
}
