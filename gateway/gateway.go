package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
	"github.com/vvakame/walletop/client"
	"github.com/vvakame/walletop/internal/engine"
	"github.com/vvakame/walletop/internal/execute"
	"github.com/vvakame/walletop/internal/log"
	"github.com/vvakame/walletop/operation"
)

var _ graphql.ExecutableSchema = (*gatewayImpl)(nil)
var _ engine.DataSource = (DataSource)(nil)

const notRegisteredCode = "OPERATION_NOT_REGISTERED"

var ErrNotRegistered = errors.New("operation is not registered")

type GatewayConfig struct {
	ServiceDefinition *ServiceDefinition
	// Operations restricts the gateway to registered documents. nil forwards any operation.
	Operations *operation.Registry
}

type DataSource interface {
	Process(ctx context.Context, oc *graphql.OperationContext) *graphql.Response
}

type ServiceDefinition struct {
	Name       string
	URL        string // optional
	DataSource DataSource
}

type gatewayImpl struct {
	sync.RWMutex

	serviceDefinition *ServiceDefinition
	operations        *operation.Registry
	schema            *ast.Schema
}

// NewGateway builds an ExecutableSchema forwarding operations to the service.
// The schema is fetched from the service through `_service { sdl }`.
func NewGateway(ctx context.Context, cfg *GatewayConfig) (graphql.ExecutableSchema, error) {
	g := &gatewayImpl{
		serviceDefinition: cfg.ServiceDefinition,
		operations:        cfg.Operations,
	}
	err := g.validate()
	if err != nil {
		return nil, err
	}

	err = g.fetchSchema(ctx)
	if err != nil {
		return nil, err
	}

	return g, nil
}

func (g *gatewayImpl) validate() error {
	serviceDef := g.serviceDefinition
	if serviceDef == nil {
		return fmt.Errorf("service definition is must required")
	}
	if serviceDef.DataSource == nil {
		if serviceDef.URL == "" {
			return fmt.Errorf("service %s requires URL or DataSource", serviceDef.Name)
		}
		serviceDef.DataSource = &engine.RemoteDataSource{
			URL: serviceDef.URL,
		}
	}

	return nil
}

func (g *gatewayImpl) fetchSchema(ctx context.Context) error {
	g.RLock()
	serviceDef := g.serviceDefinition
	g.RUnlock()

	sdl, err := g.fetchSDL(ctx, serviceDef.DataSource)
	if err != nil {
		return fmt.Errorf("fetch sdl of %s: %w", serviceDef.Name, err)
	}

	schemaDoc, gErr := parser.ParseSchemas(
		validator.Prelude,
		&ast.Source{
			Name:    serviceDef.Name,
			Input:   sdl,
			BuiltIn: false,
		},
	)
	if gErr != nil {
		return gErr
	}
	schema, gErr2 := validator.ValidateSchemaDocument(schemaDoc)
	if gErr2 != nil {
		return gErr2
	}

	g.Lock()
	g.schema = schema
	g.Unlock()

	log.Debug(ctx, "service schema is fetched", "service", serviceDef.Name, "types", len(schema.Types))

	return nil
}

func (g *gatewayImpl) fetchSDL(ctx context.Context, datasource DataSource) (string, error) {
	source := &ast.Source{
		Input: `{ _service { sdl }}`,
	}
	queryDoc, gErr := parser.ParseQuery(source)
	if gErr != nil {
		return "", gErr
	}
	resp := datasource.Process(ctx, &graphql.OperationContext{
		RawQuery:  source.Input,
		Variables: make(map[string]interface{}),
		Doc:       queryDoc,
		Operation: queryDoc.Operations[0],
	})
	if len(resp.Errors) != 0 {
		return "", resp.Errors
	}

	type Resp struct {
		Service struct {
			SDL string `json:"sdl"`
		} `json:"_service"`
	}

	v := &Resp{}
	err := json.Unmarshal(resp.Data, v)
	if err != nil {
		return "", gqlerror.List{gqlerror.Errorf("%s", err.Error())}
	}

	if v.Service.SDL == "" {
		return "", gqlerror.List{gqlerror.Errorf("sdl fetch failed")}
	}

	return v.Service.SDL, nil
}

func (g *gatewayImpl) Schema() *ast.Schema {
	g.RLock()
	defer g.RUnlock()

	if g.schema == nil {
		panic("gateway doesn't have service schema")
	}
	return g.schema
}

func (g *gatewayImpl) Complexity(typeName, fieldName string, childComplexity int, args map[string]interface{}) (int, bool) {
	return 0, false
}

func (g *gatewayImpl) Exec(ctx context.Context) graphql.ResponseHandler {
	g.RLock()
	schema := g.schema
	serviceDef := g.serviceDefinition
	operations := g.operations
	g.RUnlock()

	oc := graphql.GetOperationContext(ctx)
	ctx = log.WithValues(ctx, "service", serviceDef.Name, "operation", oc.OperationName)

	if isIntrospectionOnly(oc) {
		return graphql.OneShot(execute.Execute(ctx, &execute.ExecutionArgs{
			Schema:         schema,
			Document:       oc.Doc,
			VariableValues: oc.Variables,
			OperationName:  oc.OperationName,
		}))
	}

	upstream := &graphql.OperationContext{
		RawQuery:      oc.RawQuery,
		Variables:     oc.Variables,
		OperationName: oc.OperationName,
		Doc:           oc.Doc,
		Operation:     oc.Operation,
	}
	if operations != nil {
		doc, gErr := lookupDocument(ctx, operations, oc)
		if gErr != nil {
			return graphql.OneShot(&graphql.Response{Errors: gqlerror.List{gErr}})
		}
		var err error
		upstream, err = client.OperationContext(doc, oc.Variables)
		if err != nil {
			return graphql.OneShot(&graphql.Response{Errors: gqlerror.List{gqlerror.Errorf("%s", err.Error())}})
		}
	}

	return graphql.OneShot(serviceDef.DataSource.Process(ctx, upstream))
}

// lookupDocument finds the registered document with the same canonical form as the request.
func lookupDocument(ctx context.Context, operations *operation.Registry, oc *graphql.OperationContext) (*operation.Document, *gqlerror.Error) {
	doc, err := operation.Parse(ctx, &ast.Source{Name: "request", Input: oc.RawQuery})
	if err != nil {
		return nil, notRegistered("", err)
	}

	registered, ok := operations.Lookup(doc.Hash())
	if !ok {
		log.FromContext(ctx).Info("unregistered operation is rejected", "hash", doc.Hash())
		return nil, notRegistered(doc.Hash(), nil)
	}

	log.Debug(ctx, "registered operation", "hash", registered.Hash())
	return registered, nil
}

func notRegistered(hash string, err error) *gqlerror.Error {
	gErr := &gqlerror.Error{
		Message: ErrNotRegistered.Error(),
		Extensions: map[string]interface{}{
			"code": notRegisteredCode,
		},
	}
	if hash != "" {
		gErr.Extensions["hash"] = hash
	}
	if err != nil {
		gErr.Message = fmt.Sprintf("%s: %s", gErr.Message, err.Error())
	}
	return gErr
}

func isIntrospectionOnly(oc *graphql.OperationContext) bool {
	if oc.Operation == nil || oc.Operation.Operation != ast.Query {
		return false
	}
	if len(oc.Operation.SelectionSet) == 0 {
		return false
	}
	for _, selection := range oc.Operation.SelectionSet {
		field, ok := selection.(*ast.Field)
		if !ok || !strings.HasPrefix(field.Name, "__") {
			return false
		}
	}
	return true
}
