// Package walletcomplete holds the walletComplete mutation, which signs a user in with a crypto wallet.
package walletcomplete

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vvakame/walletop/client"
	"github.com/vvakame/walletop/internal/log"
	"github.com/vvakame/walletop/operation"
)

//go:generate go run ../cmd/walletop gen --format go --package walletcomplete --output walletcomplete_gen.go walletComplete.graphql

var document = operation.MustParse(context.Background(), &ast.Source{
	Name:  "walletComplete.graphql",
	Input: WalletCompleteQuery,
})

var ErrNoPayload = errors.New("walletComplete is missing in the response")

// Document returns the walletComplete operation. It is shared and must not be modified.
func Document() *operation.Document {
	return document
}

type Input struct {
	WalletAddress string `json:"walletAddress" mapstructure:"walletAddress"`
	Signature     string `json:"signature" mapstructure:"signature"`
	Nonce         string `json:"nonce" mapstructure:"nonce"`
}

type Payload struct {
	FirstLogIn bool     `json:"firstLogIn"`
	Session    *Session `json:"session"`
	Wallet     *Wallet  `json:"wallet"`
}

type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Wallet struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
}

func Variables(input *Input) (map[string]interface{}, error) {
	if input == nil {
		return nil, errors.New("input is required")
	}

	fields := make(map[string]interface{})
	err := mapstructure.Decode(input, &fields)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"input": fields,
	}, nil
}

// Execute sends the walletComplete mutation through ds.
// Errors reported by the server are returned as a gqlerror.List.
func Execute(ctx context.Context, ds client.DataSource, input *Input) (*Payload, error) {
	ctx = log.WithValues(ctx, "operation", document.OperationName())

	variables, err := Variables(input)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(ctx, ds, document, variables)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) != 0 {
		return nil, resp.Errors
	}

	var data struct {
		WalletComplete *Payload `json:"walletComplete"`
	}
	if len(resp.Data) != 0 {
		err = json.Unmarshal(resp.Data, &data)
		if err != nil {
			return nil, fmt.Errorf("decode walletComplete response: %w", err)
		}
	}
	if data.WalletComplete == nil {
		return nil, ErrNoPayload
	}

	log.Debug(ctx, "wallet completed", "firstLogIn", data.WalletComplete.FirstLogIn)

	return data.WalletComplete, nil
}
