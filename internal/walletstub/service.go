package walletstub

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
	"github.com/vvakame/walletop/internal/execute"
	"github.com/vvakame/walletop/internal/log"
)

//go:embed schema.graphql
var SchemaSource string

const DefaultSessionTTL = 24 * time.Hour

var _ graphql.ExecutableSchema = (*Service)(nil)

var (
	ErrInvalidInput = errors.New("invalid wallet complete input")
	ErrNonceReused  = errors.New("nonce is already used")
)

type Config struct {
	SessionTTL time.Duration
	Now        func() time.Time // optional
}

// Service is an in-memory wallet service. Signatures are required but not verified.
type Service struct {
	schema     *ast.Schema
	sessionTTL time.Duration
	now        func() time.Time

	mu         sync.Mutex
	wallets    map[string]*Wallet
	usedNonces map[string]struct{}
}

type Input struct {
	WalletAddress string `mapstructure:"walletAddress"`
	Signature     string `mapstructure:"signature"`
	Nonce         string `mapstructure:"nonce"`
}

type Wallet struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
}

type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Payload struct {
	FirstLogIn bool     `json:"firstLogIn"`
	Session    *Session `json:"session"`
	Wallet     *Wallet  `json:"wallet"`
}

func LoadSchema() (*ast.Schema, error) {
	schemaDoc, gErr := parser.ParseSchemas(
		validator.Prelude,
		&ast.Source{
			Name:  "walletstub/schema.graphql",
			Input: SchemaSource,
		},
	)
	if gErr != nil {
		return nil, gErr
	}

	schema, gErr2 := validator.ValidateSchemaDocument(schemaDoc)
	if gErr2 != nil {
		return nil, gErr2
	}
	return schema, nil
}

func New(cfg *Config) (*Service, error) {
	schema, err := LoadSchema()
	if err != nil {
		return nil, err
	}

	s := &Service{
		schema:     schema,
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
		wallets:    make(map[string]*Wallet),
		usedNonces: make(map[string]struct{}),
	}
	if cfg != nil {
		if cfg.SessionTTL > 0 {
			s.sessionTTL = cfg.SessionTTL
		}
		if cfg.Now != nil {
			s.now = cfg.Now
		}
	}
	return s, nil
}

func (s *Service) Schema() *ast.Schema {
	return s.schema
}

func (s *Service) Complexity(typeName, fieldName string, childComplexity int, args map[string]interface{}) (int, bool) {
	return 0, false
}

func (s *Service) Exec(ctx context.Context) graphql.ResponseHandler {
	oc := graphql.GetOperationContext(ctx)

	resp := execute.Execute(ctx, &execute.ExecutionArgs{
		Schema:         s.schema,
		Document:       oc.Doc,
		VariableValues: oc.Variables,
		OperationName:  oc.OperationName,
		FieldResolver:  s.resolveField,
	})

	return func(ctx context.Context) *graphql.Response {
		return resp
	}
}

func (s *Service) resolveField(ctx context.Context, source interface{}, args map[string]interface{}, info *execute.ResolveInfo) (interface{}, error) {
	switch info.ParentType.Name + "." + info.FieldName {
	case "Query._service":
		return map[string]interface{}{"sdl": SchemaSource}, nil
	case "Query.wallet":
		address, _ := args["address"].(string)
		return s.Wallet(ctx, address), nil
	case "Mutation.walletComplete":
		input := &Input{}
		err := mapstructure.Decode(args["input"], input)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
		}
		return s.WalletComplete(ctx, input)
	}
	return execute.DefaultFieldResolver(ctx, source, args, info)
}

// Wallet returns nil for unknown addresses.
func (s *Service) Wallet(ctx context.Context, address string) *Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wallets[normalizeAddress(address)]
}

// WalletComplete signs in with a wallet. The wallet is created on its first sign in.
func (s *Service) WalletComplete(ctx context.Context, input *Input) (*Payload, error) {
	switch {
	case strings.TrimSpace(input.WalletAddress) == "":
		return nil, fmt.Errorf("%w: walletAddress is required", ErrInvalidInput)
	case input.Signature == "":
		return nil, fmt.Errorf("%w: signature is required", ErrInvalidInput)
	case input.Nonce == "":
		return nil, fmt.Errorf("%w: nonce is required", ErrInvalidInput)
	}

	address := normalizeAddress(input.WalletAddress)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	nonceKey := address + "/" + input.Nonce
	if _, ok := s.usedNonces[nonceKey]; ok {
		return nil, ErrNonceReused
	}
	s.usedNonces[nonceKey] = struct{}{}

	wallet, ok := s.wallets[address]
	firstLogIn := !ok
	if firstLogIn {
		wallet = &Wallet{
			ID:        uuid.NewString(),
			Address:   address,
			CreatedAt: now.UTC(),
		}
		s.wallets[address] = wallet
	}

	session := &Session{
		ID:        uuid.NewString(),
		Token:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		ExpiresAt: now.Add(s.sessionTTL).UTC(),
	}

	log.FromContext(ctx).Info("wallet completed", "address", address, "firstLogIn", firstLogIn, "walletID", wallet.ID)

	copied := *wallet
	return &Payload{
		FirstLogIn: firstLogIn,
		Session:    session,
		Wallet:     &copied,
	}, nil
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
