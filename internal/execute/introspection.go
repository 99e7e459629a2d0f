package execute

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/99designs/gqlgen/graphql/introspection"
	"github.com/vektah/gqlparser/v2/ast"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func isIntrospection(parentType *ast.Definition, fieldName string) bool {
	return strings.HasPrefix(fieldName, "__") || strings.HasPrefix(parentType.Name, "__")
}

// resolveIntrospection answers __schema and __type, and the fields of the introspection types.
func resolveIntrospection(ctx context.Context, source interface{}, args map[string]interface{}, info *ResolveInfo) (interface{}, error) {
	switch info.FieldName {
	case "__schema":
		return introspection.WrapSchema(info.Schema), nil
	case "__type":
		name, _ := args["name"].(string)
		def := info.Schema.Types[name]
		if def == nil {
			return nil, nil
		}
		return introspection.WrapTypeFromDef(info.Schema, def), nil
	}

	v, ok, err := callMethod(source, info.FieldName, args)
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	return DefaultFieldResolver(ctx, source, args, info)
}

// callMethod calls the method named after fieldName on source.
// bool parameters receive the includeDeprecated argument.
func callMethod(source interface{}, fieldName string, args map[string]interface{}) (interface{}, bool, error) {
	rv := reflect.ValueOf(source)
	if !rv.IsValid() {
		return nil, false, nil
	}
	if rv.Kind() != reflect.Ptr {
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		rv = ptr
	}

	rs := []rune(fieldName)
	rs[0] = unicode.ToUpper(rs[0])
	method := rv.MethodByName(string(rs))
	if !method.IsValid() {
		return nil, false, nil
	}

	mt := method.Type()
	in := make([]reflect.Value, 0, mt.NumIn())
	for i := 0; i < mt.NumIn(); i++ {
		if mt.In(i).Kind() != reflect.Bool {
			return nil, false, errors.New("unsupported introspection method: " + string(rs))
		}
		includeDeprecated, _ := args["includeDeprecated"].(bool)
		in = append(in, reflect.ValueOf(includeDeprecated))
	}

	out := method.Call(in)
	switch {
	case len(out) == 0:
		return nil, true, nil
	case len(out) == 2 && mt.Out(1).Implements(errorType):
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, true, err
		}
	}
	return out[0].Interface(), true, nil
}
