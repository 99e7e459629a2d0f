package operation

import (
	"github.com/vektah/gqlparser/v2/ast"
)

// Loc is the span of a node in its source text.
// Start and End are byte offsets, Line and Column locate Start.
type Loc struct {
	Start  int `json:"start"`
	End    int `json:"end"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

func posLoc(pos *ast.Position) *Loc {
	if pos == nil {
		return nil
	}
	return &Loc{
		Start:  pos.Start,
		End:    pos.End,
		Line:   pos.Line,
		Column: pos.Column,
	}
}

// extend widens l so that it also covers o.
func (l *Loc) extend(o *Loc) *Loc {
	if o == nil {
		return l
	}
	if l == nil {
		copied := *o
		return &copied
	}
	if o.Start < l.Start {
		l.Start = o.Start
		l.Line = o.Line
		l.Column = o.Column
	}
	if o.End > l.End {
		l.End = o.End
	}
	return l
}

func typeLoc(typ *ast.Type) *Loc {
	if typ == nil {
		return nil
	}
	loc := posLoc(typ.Position)
	return loc.extend(typeLoc(typ.Elem))
}

func valueLoc(value *ast.Value) *Loc {
	if value == nil {
		return nil
	}
	loc := posLoc(value.Position)
	for _, child := range value.Children {
		loc = loc.extend(posLoc(child.Position))
		loc = loc.extend(valueLoc(child.Value))
	}
	return loc
}

func argumentsLoc(loc *Loc, args ast.ArgumentList) *Loc {
	for _, arg := range args {
		loc = loc.extend(posLoc(arg.Position))
		loc = loc.extend(valueLoc(arg.Value))
	}
	return loc
}

func directivesLoc(loc *Loc, directives ast.DirectiveList) *Loc {
	for _, directive := range directives {
		loc = loc.extend(posLoc(directive.Position))
		loc = argumentsLoc(loc, directive.Arguments)
	}
	return loc
}

func selectionSetLoc(loc *Loc, selectionSet ast.SelectionSet) *Loc {
	for _, selection := range selectionSet {
		loc = loc.extend(selectionLoc(selection))
	}
	return loc
}

// selectionLoc spans from the first token of the selection to the last token of its
// deepest descendant. The closing brace of a selection set is not part of the span.
func selectionLoc(selection ast.Selection) *Loc {
	switch selection := selection.(type) {
	case *ast.Field:
		loc := posLoc(selection.Position)
		loc = argumentsLoc(loc, selection.Arguments)
		loc = directivesLoc(loc, selection.Directives)
		return selectionSetLoc(loc, selection.SelectionSet)
	case *ast.FragmentSpread:
		loc := posLoc(selection.Position)
		return directivesLoc(loc, selection.Directives)
	case *ast.InlineFragment:
		loc := posLoc(selection.Position)
		loc = directivesLoc(loc, selection.Directives)
		return selectionSetLoc(loc, selection.SelectionSet)
	default:
		return nil
	}
}

func variableDefinitionLoc(def *ast.VariableDefinition) *Loc {
	loc := posLoc(def.Position)
	loc = loc.extend(typeLoc(def.Type))
	loc = loc.extend(valueLoc(def.DefaultValue))
	return directivesLoc(loc, def.Directives)
}

func operationLoc(op *ast.OperationDefinition) *Loc {
	loc := posLoc(op.Position)
	for _, def := range op.VariableDefinitions {
		loc = loc.extend(variableDefinitionLoc(def))
	}
	loc = directivesLoc(loc, op.Directives)
	return selectionSetLoc(loc, op.SelectionSet)
}

func fragmentLoc(frag *ast.FragmentDefinition) *Loc {
	loc := posLoc(frag.Position)
	for _, def := range frag.VariableDefinition {
		loc = loc.extend(variableDefinitionLoc(def))
	}
	loc = directivesLoc(loc, frag.Directives)
	return selectionSetLoc(loc, frag.SelectionSet)
}
