package utils

import "github.com/vektah/gqlparser/v2/ast"

func IsTypeDefSubTypeOf(schema *ast.Schema, maybeSubType, superType *ast.Definition) bool {
	// *ast.Definition carries no list or nullability information, so only named types are compared.

	if maybeSubType == superType {
		return true
	}

	if !IsAbstractType(superType) {
		return false
	}
	if maybeSubType.Kind != ast.Interface && maybeSubType.Kind != ast.Object {
		return false
	}
	for _, def := range schema.GetPossibleTypes(superType) {
		if def == maybeSubType {
			return true
		}
	}
	return false
}

func IsAbstractType(def *ast.Definition) bool {
	if def == nil {
		return false
	}
	switch def.Kind {
	case ast.Interface, ast.Union:
		return true
	default:
		return false
	}
}

func IsLeafType(def *ast.Definition) bool {
	if def == nil {
		return false
	}
	switch def.Kind {
	case ast.Scalar, ast.Enum:
		return true
	default:
		return false
	}
}

func IsObjectType(def *ast.Definition) bool {
	return def != nil && def.Kind == ast.Object
}
