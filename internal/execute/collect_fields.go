package execute

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vvakame/walletop/internal/utils"
)

// groupedFields holds field nodes by response key. keys keeps the first selection order.
type groupedFields struct {
	keys  []string
	byKey map[string][]*ast.Field
}

func (g *groupedFields) add(field *ast.Field) {
	key := field.Alias
	if key == "" {
		key = field.Name
	}
	if g.byKey == nil {
		g.byKey = make(map[string][]*ast.Field)
	}
	if _, ok := g.byKey[key]; !ok {
		g.keys = append(g.keys, key)
	}
	g.byKey[key] = append(g.byKey[key], field)
}

// fieldCollector flattens selection sets for one runtime type.
// A fragment is expanded once per collector.
type fieldCollector struct {
	schema      *ast.Schema
	fragments   ast.FragmentDefinitionList
	variables   map[string]interface{}
	runtimeType *ast.Definition
	visited     map[string]struct{}
}

func (exeContext *ExecutionContext) newFieldCollector(runtimeType *ast.Definition) *fieldCollector {
	return &fieldCollector{
		schema:      exeContext.Schema,
		fragments:   exeContext.Fragments,
		variables:   exeContext.VariableValues,
		runtimeType: runtimeType,
		visited:     make(map[string]struct{}),
	}
}

func (c *fieldCollector) collect(selectionSet ast.SelectionSet, fields *groupedFields) *groupedFields {
	for _, selection := range selectionSet {
		switch selection := selection.(type) {
		case *ast.Field:
			if c.included(selection.Directives) {
				fields.add(selection)
			}

		case *ast.InlineFragment:
			if !c.included(selection.Directives) || !c.matches(selection.TypeCondition) {
				continue
			}
			c.collect(selection.SelectionSet, fields)

		case *ast.FragmentSpread:
			if _, ok := c.visited[selection.Name]; ok || !c.included(selection.Directives) {
				continue
			}
			c.visited[selection.Name] = struct{}{}
			fragment := c.fragments.ForName(selection.Name)
			if fragment == nil || !c.matches(fragment.TypeCondition) {
				continue
			}
			c.collect(fragment.SelectionSet, fields)
		}
	}

	return fields
}

// collectSubfields merges the sub-selections of every node sharing one response key.
func collectSubfields(exeContext *ExecutionContext, returnType *ast.Definition, fieldNodes []*ast.Field) *groupedFields {
	c := exeContext.newFieldCollector(returnType)
	fields := &groupedFields{}
	for _, node := range fieldNodes {
		c.collect(node.SelectionSet, fields)
	}
	return fields
}

// included evaluates @skip and @include. @skip wins when both apply.
func (c *fieldCollector) included(directives ast.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if v, ok := skip.ArgumentMap(c.variables)["if"].(bool); ok && v {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if v, ok := include.ArgumentMap(c.variables)["if"].(bool); ok && !v {
			return false
		}
	}
	return true
}

func (c *fieldCollector) matches(typeCondition string) bool {
	if typeCondition == "" {
		return true
	}
	conditionalType := c.schema.Types[typeCondition]
	if conditionalType == c.runtimeType {
		return true
	}
	if utils.IsAbstractType(conditionalType) {
		return utils.IsTypeDefSubTypeOf(c.schema, c.runtimeType, conditionalType)
	}
	return false
}
