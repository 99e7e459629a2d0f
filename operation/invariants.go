package operation

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
)

// CheckInvariants reports the first structural problem found in doc.
// src may be nil, in which case spans are not checked against the source length.
func CheckInvariants(doc *ast.QueryDocument, src *ast.Source) error {
	limit := -1
	if src != nil {
		limit = len(src.Input)
	}

	names := make(map[string]*ast.FragmentDefinition, len(doc.Fragments))
	for _, frag := range doc.Fragments {
		if _, ok := names[frag.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateFragment, frag.Name)
		}
		names[frag.Name] = frag
	}

	c := &invariantChecker{limit: limit, fragments: names}
	for _, op := range doc.Operations {
		if err := c.checkPosition(op.Position); err != nil {
			return err
		}
		for _, def := range op.VariableDefinitions {
			if err := c.checkVariableDefinition(def); err != nil {
				return err
			}
		}
		if err := c.checkDirectives(op.Directives); err != nil {
			return err
		}
		if err := c.checkSelectionSet(op.SelectionSet); err != nil {
			return err
		}
	}
	for _, frag := range doc.Fragments {
		if err := c.checkPosition(frag.Position); err != nil {
			return err
		}
		if err := c.checkDirectives(frag.Directives); err != nil {
			return err
		}
		if err := c.checkSelectionSet(frag.SelectionSet); err != nil {
			return err
		}
	}

	return checkFragmentCycles(doc.Fragments)
}

type invariantChecker struct {
	limit     int
	fragments map[string]*ast.FragmentDefinition
}

func (c *invariantChecker) checkPosition(pos *ast.Position) error {
	if pos == nil {
		return nil
	}
	if pos.Start < 0 || pos.End < pos.Start {
		return fmt.Errorf("%w: %d:%d has span [%d, %d)", ErrInvalidLocation, pos.Line, pos.Column, pos.Start, pos.End)
	}
	if c.limit >= 0 && pos.End > c.limit {
		return fmt.Errorf("%w: %d:%d ends at %d past source length %d", ErrInvalidLocation, pos.Line, pos.Column, pos.End, c.limit)
	}
	return nil
}

func (c *invariantChecker) checkValue(value *ast.Value) error {
	if value == nil {
		return nil
	}
	if err := c.checkPosition(value.Position); err != nil {
		return err
	}
	for _, child := range value.Children {
		if err := c.checkPosition(child.Position); err != nil {
			return err
		}
		if err := c.checkValue(child.Value); err != nil {
			return err
		}
	}
	return nil
}

func (c *invariantChecker) checkArguments(args ast.ArgumentList) error {
	for _, arg := range args {
		if err := c.checkPosition(arg.Position); err != nil {
			return err
		}
		if err := c.checkValue(arg.Value); err != nil {
			return err
		}
	}
	return nil
}

func (c *invariantChecker) checkDirectives(directives ast.DirectiveList) error {
	for _, directive := range directives {
		if err := c.checkPosition(directive.Position); err != nil {
			return err
		}
		if err := c.checkArguments(directive.Arguments); err != nil {
			return err
		}
	}
	return nil
}

func (c *invariantChecker) checkVariableDefinition(def *ast.VariableDefinition) error {
	if err := c.checkPosition(def.Position); err != nil {
		return err
	}
	for typ := def.Type; typ != nil; typ = typ.Elem {
		if err := c.checkPosition(typ.Position); err != nil {
			return err
		}
	}
	if err := c.checkValue(def.DefaultValue); err != nil {
		return err
	}
	return c.checkDirectives(def.Directives)
}

func (c *invariantChecker) checkSelectionSet(selectionSet ast.SelectionSet) error {
	for _, selection := range selectionSet {
		switch selection := selection.(type) {
		case *ast.Field:
			if err := c.checkPosition(selection.Position); err != nil {
				return err
			}
			if err := c.checkArguments(selection.Arguments); err != nil {
				return err
			}
			if err := c.checkDirectives(selection.Directives); err != nil {
				return err
			}
			if err := c.checkSelectionSet(selection.SelectionSet); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			if err := c.checkPosition(selection.Position); err != nil {
				return err
			}
			if _, ok := c.fragments[selection.Name]; !ok {
				return fmt.Errorf("%w: %s", ErrUnknownFragment, selection.Name)
			}
			if err := c.checkDirectives(selection.Directives); err != nil {
				return err
			}
		case *ast.InlineFragment:
			if err := c.checkPosition(selection.Position); err != nil {
				return err
			}
			if err := c.checkDirectives(selection.Directives); err != nil {
				return err
			}
			if err := c.checkSelectionSet(selection.SelectionSet); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkFragmentCycles(fragments ast.FragmentDefinitionList) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(fragments))

	var visit func(frag *ast.FragmentDefinition) error
	visit = func(frag *ast.FragmentDefinition) error {
		switch state[frag.Name] {
		case visiting:
			return fmt.Errorf("%w: %s", ErrFragmentCycle, frag.Name)
		case done:
			return nil
		}
		state[frag.Name] = visiting
		for _, name := range fragmentSpreadNames(frag.SelectionSet) {
			next := fragments.ForName(name)
			if next == nil {
				continue
			}
			if err := visit(next); err != nil {
				return err
			}
		}
		state[frag.Name] = done
		return nil
	}

	for _, frag := range fragments {
		if err := visit(frag); err != nil {
			return err
		}
	}
	return nil
}

// fragmentSpreadNames lists the fragments spread directly or through inline fragments
// and sub-selections, in document order.
func fragmentSpreadNames(selectionSet ast.SelectionSet) []string {
	var names []string
	for _, selection := range selectionSet {
		switch selection := selection.(type) {
		case *ast.Field:
			names = append(names, fragmentSpreadNames(selection.SelectionSet)...)
		case *ast.FragmentSpread:
			names = append(names, selection.Name)
		case *ast.InlineFragment:
			names = append(names, fragmentSpreadNames(selection.SelectionSet)...)
		}
	}
	return names
}
