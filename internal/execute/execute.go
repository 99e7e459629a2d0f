package execute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	_ "github.com/vektah/gqlparser/v2/validator/rules"
	"github.com/vvakame/walletop/internal/log"
	"github.com/vvakame/walletop/internal/utils"
)

type ExecutionContext struct {
	Schema         *ast.Schema
	Fragments      ast.FragmentDefinitionList
	Operation      *ast.OperationDefinition
	VariableValues map[string]interface{}
	FieldResolver  FieldResolver
	TypeResolver   TypeResolver

	mu     sync.Mutex
	errors gqlerror.List
}

type ExecutionArgs struct {
	Schema         *ast.Schema
	Document       *ast.QueryDocument
	RootValue      interface{}            // optional
	VariableValues map[string]interface{} // optional
	OperationName  string                 // optional
	FieldResolver  FieldResolver          // optional
	TypeResolver   TypeResolver           // optional
}

// ResolveInfo describes the field being resolved.
type ResolveInfo struct {
	FieldName      string
	FieldNodes     []*ast.Field
	ReturnType     *ast.Type
	ParentType     *ast.Definition
	Path           ast.Path
	Schema         *ast.Schema
	Fragments      ast.FragmentDefinitionList
	Operation      *ast.OperationDefinition
	VariableValues map[string]interface{}
}

var _ FieldResolver = DefaultFieldResolver

type FieldResolver func(ctx context.Context, source interface{}, args map[string]interface{}, info *ResolveInfo) (interface{}, error)

var _ TypeResolver = DefaultTypeResolver

type TypeResolver func(ctx context.Context, value interface{}, info *ResolveInfo, abstractType *ast.Definition) string

// Execute runs the operation of args.Document against args.RootValue.
//
// The document is validated against the schema first. Field errors are collected into
// the response, and never abort sibling fields.
func Execute(ctx context.Context, args *ExecutionArgs) *graphql.Response {
	if args.Document == nil {
		return &graphql.Response{Errors: gqlerror.List{gqlerror.Errorf("must provide document")}}
	}

	gErrs := validator.Validate(args.Schema, args.Document)
	if len(gErrs) != 0 {
		return &graphql.Response{Errors: gErrs}
	}

	exeContext, gErrs := buildExecutionContext(args)
	if len(gErrs) != 0 {
		return &graphql.Response{Errors: gErrs}
	}

	ctx = log.WithValues(ctx, "operation", exeContext.Operation.Name)
	log.Debug(ctx, "execute operation", "type", exeContext.Operation.Operation)

	data, gErr := executeOperation(ctx, exeContext, args.RootValue)
	if gErr != nil {
		exeContext.addError(gErr)
	}

	return buildResponse(exeContext, data)
}

func buildResponse(exeContext *ExecutionContext, data *orderedObject) *graphql.Response {
	resp := &graphql.Response{
		Errors: exeContext.errors,
	}

	var b []byte
	var err error
	if data == nil {
		b = []byte("null")
	} else {
		b, err = json.Marshal(data)
	}
	if err != nil {
		resp.Errors = append(resp.Errors, gqlerror.Errorf("failed to serialize response: %s", err.Error()))
		b = []byte("null")
	}
	resp.Data = b

	return resp
}

func buildExecutionContext(args *ExecutionArgs) (*ExecutionContext, gqlerror.List) {
	operation := args.Document.Operations.ForName(args.OperationName)
	if operation == nil {
		if args.OperationName != "" {
			return nil, gqlerror.List{gqlerror.Errorf(`unknown operation named "%s"`, args.OperationName)}
		}
		return nil, gqlerror.List{gqlerror.Errorf("must provide an operation")}
	}

	rawVariableValues := args.VariableValues
	if rawVariableValues == nil {
		rawVariableValues = make(map[string]interface{})
	}
	coercedVariableValues, err := validator.VariableValues(args.Schema, operation, rawVariableValues)
	if err != nil {
		return nil, gqlerror.List{asGQLError(err)}
	}

	fieldResolver := args.FieldResolver
	if fieldResolver == nil {
		fieldResolver = DefaultFieldResolver
	}
	typeResolver := args.TypeResolver
	if typeResolver == nil {
		typeResolver = DefaultTypeResolver
	}

	return &ExecutionContext{
		Schema:         args.Schema,
		Fragments:      args.Document.Fragments,
		Operation:      operation,
		VariableValues: coercedVariableValues,
		FieldResolver:  fieldResolver,
		TypeResolver:   typeResolver,
	}, nil
}

func asGQLError(err error) *gqlerror.Error {
	var gErr *gqlerror.Error
	if errors.As(err, &gErr) {
		return gErr
	}
	return &gqlerror.Error{Message: err.Error()}
}

func (exeContext *ExecutionContext) addError(gErr *gqlerror.Error) {
	exeContext.mu.Lock()
	defer exeContext.mu.Unlock()

	exeContext.errors = append(exeContext.errors, gErr)
}

func executeOperation(ctx context.Context, exeContext *ExecutionContext, rootValue interface{}) (*orderedObject, *gqlerror.Error) {
	operation := exeContext.Operation

	var typ *ast.Definition
	switch operation.Operation {
	case ast.Query:
		typ = exeContext.Schema.Query
		if typ == nil {
			return nil, gqlerror.ErrorPosf(operation.Position, "schema does not define the required query root type")
		}
	case ast.Mutation:
		typ = exeContext.Schema.Mutation
		if typ == nil {
			return nil, gqlerror.ErrorPosf(operation.Position, "schema is not configured for mutations")
		}
	default:
		return nil, gqlerror.ErrorPosf(operation.Position, "can only execute query and mutation operations")
	}

	fields := exeContext.newFieldCollector(typ).collect(operation.SelectionSet, &groupedFields{})

	if operation.Operation == ast.Mutation {
		return executeFieldsSerially(ctx, exeContext, typ, rootValue, nil, fields)
	}
	return executeFields(ctx, exeContext, typ, rootValue, nil, fields)
}

// executeFieldsSerially runs each field after the previous one has completed.
func executeFieldsSerially(ctx context.Context, exeContext *ExecutionContext, parentType *ast.Definition, sourceValue interface{}, path ast.Path, fields *groupedFields) (*orderedObject, *gqlerror.Error) {
	out := newOrderedObject(fields.keys)
	for i, responseName := range fields.keys {
		fieldPath := appendPath(path, ast.PathName(responseName))
		value, gErr := executeField(ctx, exeContext, parentType, sourceValue, fields.byKey[responseName], fieldPath)
		if gErr != nil {
			return nil, gErr
		}
		out.values[i] = value
	}
	return out, nil
}

// executeFields runs the fields concurrently.
func executeFields(ctx context.Context, exeContext *ExecutionContext, parentType *ast.Definition, sourceValue interface{}, path ast.Path, fields *groupedFields) (*orderedObject, *gqlerror.Error) {
	out := newOrderedObject(fields.keys)
	gErrs := make([]*gqlerror.Error, len(fields.keys))

	var wg sync.WaitGroup
	wg.Add(len(fields.keys))
	for i, responseName := range fields.keys {
		i := i
		responseName := responseName
		go func() {
			defer wg.Done()
			fieldPath := appendPath(path, ast.PathName(responseName))
			out.values[i], gErrs[i] = executeField(ctx, exeContext, parentType, sourceValue, fields.byKey[responseName], fieldPath)
		}()
	}
	wg.Wait()

	for _, gErr := range gErrs {
		if gErr != nil {
			return nil, gErr
		}
	}
	return out, nil
}

// executeField resolves a field and completes its value.
// A returned error has to be propagated to the parent because the field is non-null.
func executeField(ctx context.Context, exeContext *ExecutionContext, parentType *ast.Definition, source interface{}, fieldNodes []*ast.Field, path ast.Path) (value interface{}, gErr *gqlerror.Error) {
	fieldNode := fieldNodes[0]
	fieldName := fieldNode.Name

	if fieldName == "__typename" {
		return parentType.Name, nil
	}

	fieldDef := parentType.Fields.ForName(fieldName)
	if fieldDef == nil {
		return nil, nil
	}
	returnType := fieldDef.Type

	info := &ResolveInfo{
		FieldName:      fieldName,
		FieldNodes:     fieldNodes,
		ReturnType:     returnType,
		ParentType:     parentType,
		Path:           path,
		Schema:         exeContext.Schema,
		Fragments:      exeContext.Fragments,
		Operation:      exeContext.Operation,
		VariableValues: exeContext.VariableValues,
	}

	defer func() {
		if r := recover(); r != nil {
			log.FromContext(ctx).Error(fmt.Errorf("%v", r), "resolver panic", "path", path.String())
			value, gErr = handleFieldError(exeContext, locatedError(fmt.Errorf("internal system error"), fieldNodes, path), returnType)
		}
	}()

	resolver := exeContext.FieldResolver
	if isIntrospection(parentType, fieldName) {
		resolver = resolveIntrospection
	}

	args := fieldNode.ArgumentMap(exeContext.VariableValues)
	result, err := resolver(ctx, source, args, info)
	if err != nil {
		return handleFieldError(exeContext, locatedError(err, fieldNodes, path), returnType)
	}

	completed, gErr := completeValue(ctx, exeContext, returnType, fieldNodes, info, path, result)
	if gErr != nil {
		return handleFieldError(exeContext, gErr, returnType)
	}

	return completed, nil
}

func handleFieldError(exeContext *ExecutionContext, gErr *gqlerror.Error, returnType *ast.Type) (interface{}, *gqlerror.Error) {
	// If the field type is non-nullable, then it is resolved without any
	// protection from errors, however it still properly locates the error.
	if returnType.NonNull {
		return nil, gErr
	}
	// Otherwise, error protection is applied, logging the error and resolving
	// a null value for this field if one is encountered.
	exeContext.addError(gErr)
	return nil, nil
}

func locatedError(err error, fieldNodes []*ast.Field, path ast.Path) *gqlerror.Error {
	var gErr *gqlerror.Error
	if errors.As(err, &gErr) {
		// resolvers may return the same error value from concurrent fields
		copied := *gErr
		gErr = &copied
	} else {
		gErr = &gqlerror.Error{Message: err.Error()}
	}
	if gErr.Path == nil {
		gErr.Path = path
	}
	if len(gErr.Locations) == 0 {
		locations := make([]gqlerror.Location, 0, len(fieldNodes))
		for _, node := range fieldNodes {
			if node.Position == nil {
				continue
			}
			locations = append(locations, gqlerror.Location{
				Line:   node.Position.Line,
				Column: node.Position.Column,
			})
		}
		gErr.Locations = locations
	}
	return gErr
}

// completeValue converts a resolved value into its response form.
//
// Non-null types fail when the inner value completes to null. Lists complete each item.
// Scalars and enums are serialized, abstract types are narrowed to their runtime type, and
// objects execute their sub-selections.
func completeValue(ctx context.Context, exeContext *ExecutionContext, returnType *ast.Type, fieldNodes []*ast.Field, info *ResolveInfo, path ast.Path, result interface{}) (interface{}, *gqlerror.Error) {
	if err, ok := result.(error); ok && err != nil {
		return nil, locatedError(err, fieldNodes, path)
	}

	if returnType.NonNull {
		if returnType.Elem != nil && isNilSlice(result) {
			// a nil slice still satisfies a non-null list
			result = []interface{}{}
		}
		copied := *returnType
		copied.NonNull = false
		completed, gErr := completeValue(ctx, exeContext, &copied, fieldNodes, info, path, result)
		if gErr != nil {
			return nil, gErr
		}
		if completed == nil {
			return nil, locatedError(
				fmt.Errorf("cannot return null for non-nullable field %s.%s", info.ParentType.Name, info.FieldName),
				fieldNodes,
				path,
			)
		}
		return completed, nil
	}

	result = indirect(result)
	if result == nil {
		return nil, nil
	}

	if returnType.Elem != nil {
		return completeListValue(ctx, exeContext, returnType, fieldNodes, info, path, result)
	}

	def := exeContext.Schema.Types[returnType.NamedType]
	switch {
	case utils.IsLeafType(def):
		return completeLeafValue(result, fieldNodes, path)
	case utils.IsAbstractType(def):
		return completeAbstractValue(ctx, exeContext, def, fieldNodes, info, path, result)
	case utils.IsObjectType(def):
		return completeObjectValue(ctx, exeContext, def, fieldNodes, path, result)
	}

	return nil, locatedError(fmt.Errorf("cannot complete value of unexpected output type: %s", returnType.String()), fieldNodes, path)
}

func completeListValue(ctx context.Context, exeContext *ExecutionContext, returnType *ast.Type, fieldNodes []*ast.Field, info *ResolveInfo, path ast.Path, result interface{}) (interface{}, *gqlerror.Error) {
	resultRV := reflect.ValueOf(result)
	if resultRV.Kind() != reflect.Slice && resultRV.Kind() != reflect.Array {
		return nil, locatedError(fmt.Errorf(`expected slice, but did not find one for field "%s.%s"`, info.ParentType.Name, info.FieldName), fieldNodes, path)
	}

	itemType := returnType.Elem
	completed := make([]interface{}, resultRV.Len())
	for index := 0; index < resultRV.Len(); index++ {
		itemPath := appendPath(path, ast.PathIndex(index))
		item, gErr := completeValue(ctx, exeContext, itemType, fieldNodes, info, itemPath, resultRV.Index(index).Interface())
		if gErr != nil {
			item, gErr = handleFieldError(exeContext, gErr, itemType)
			if gErr != nil {
				return nil, gErr
			}
		}
		completed[index] = item
	}

	return completed, nil
}

func completeLeafValue(result interface{}, fieldNodes []*ast.Field, path ast.Path) (interface{}, *gqlerror.Error) {
	switch result := result.(type) {
	case bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return result, nil
	case time.Time:
		return result.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return result.String(), nil
	default:
		return nil, locatedError(fmt.Errorf("unsupported leaf type: %T", result), fieldNodes, path)
	}
}

func completeAbstractValue(ctx context.Context, exeContext *ExecutionContext, returnType *ast.Definition, fieldNodes []*ast.Field, info *ResolveInfo, path ast.Path, result interface{}) (interface{}, *gqlerror.Error) {
	runtimeTypeName := exeContext.TypeResolver(ctx, result, info, returnType)
	if runtimeTypeName == "" {
		return nil, locatedError(fmt.Errorf(`abstract type "%s" must resolve to an Object type at runtime for field "%s.%s"`, returnType.Name, info.ParentType.Name, info.FieldName), fieldNodes, path)
	}

	runtimeType := exeContext.Schema.Types[runtimeTypeName]
	if runtimeType == nil {
		return nil, locatedError(fmt.Errorf(`abstract type "%s" was resolved to a type "%s" that does not exist inside the schema`, returnType.Name, runtimeTypeName), fieldNodes, path)
	}
	if runtimeType.Kind != ast.Object {
		return nil, locatedError(fmt.Errorf(`abstract type "%s" was resolved to a non-object type "%s"`, returnType.Name, runtimeTypeName), fieldNodes, path)
	}
	if !utils.IsTypeDefSubTypeOf(exeContext.Schema, runtimeType, returnType) {
		return nil, locatedError(fmt.Errorf(`runtime Object type "%s" is not a possible type for "%s"`, runtimeType.Name, returnType.Name), fieldNodes, path)
	}

	return completeObjectValue(ctx, exeContext, runtimeType, fieldNodes, path, result)
}

func completeObjectValue(ctx context.Context, exeContext *ExecutionContext, returnType *ast.Definition, fieldNodes []*ast.Field, path ast.Path, result interface{}) (interface{}, *gqlerror.Error) {
	subFieldNodes := collectSubfields(exeContext, returnType, fieldNodes)
	obj, gErr := executeFields(ctx, exeContext, returnType, result, path, subFieldNodes)
	if gErr != nil {
		return nil, gErr
	}
	return obj, nil
}

// DefaultTypeResolver reads `__typename` from map values.
func DefaultTypeResolver(ctx context.Context, value interface{}, info *ResolveInfo, abstractType *ast.Definition) string {
	if obj, ok := value.(map[string]interface{}); ok {
		if typename, ok := obj["__typename"].(string); ok {
			return typename
		}
	}
	return ""
}

// DefaultFieldResolver reads the property named after the field.
// Maps are looked up by key. Structs are matched by json tag, then by field name ignoring case.
func DefaultFieldResolver(ctx context.Context, source interface{}, args map[string]interface{}, info *ResolveInfo) (interface{}, error) {
	if obj, ok := source.(map[string]interface{}); ok {
		return obj[info.FieldName], nil
	}

	rv := reflect.ValueOf(source)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := strings.Split(sf.Tag.Get("json"), ",")[0]
		if name == info.FieldName || (name == "" && strings.EqualFold(sf.Name, info.FieldName)) {
			return rv.Field(i).Interface(), nil
		}
	}
	return nil, nil
}

// indirect dereferences pointers and reports nil pointers as nil.
func indirect(value interface{}) interface{} {
	if value == nil {
		return nil
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map) && rv.IsNil() {
		return nil
	}
	return rv.Interface()
}

func isNilSlice(value interface{}) bool {
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Slice && rv.IsNil()
}

func appendPath(path ast.Path, elem ast.PathElement) ast.Path {
	copied := make(ast.Path, 0, len(path)+1)
	copied = append(copied, path...)
	return append(copied, elem)
}
