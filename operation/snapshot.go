package operation

import (
	"bytes"
	"encoding/json"

	"github.com/goccy/go-yaml"
	"github.com/vektah/gqlparser/v2/ast"
)

var _ yaml.BytesMarshaler = (*Snapshot)(nil)

// Snapshot is the serializable form of a Document.
type Snapshot struct {
	FieldName  string           `json:"fieldName"`
	FieldNodes []*Node          `json:"fieldNodes"`
	Fragments  map[string]*Node `json:"fragments"`
	Operation  *Node            `json:"operation"`
}

type Kind string

const (
	KindOperationDefinition Kind = "OperationDefinition"
	KindVariableDefinition  Kind = "VariableDefinition"
	KindFragmentDefinition  Kind = "FragmentDefinition"
	KindField               Kind = "Field"
	KindFragmentSpread      Kind = "FragmentSpread"
	KindInlineFragment      Kind = "InlineFragment"
	KindArgument            Kind = "Argument"
	KindDirective           Kind = "Directive"
)

type Node struct {
	Kind                Kind    `json:"kind"`
	Operation           string  `json:"operation,omitempty"`
	Alias               string  `json:"alias,omitempty"`
	Name                string  `json:"name,omitempty"`
	TypeCondition       string  `json:"typeCondition,omitempty"`
	Type                string  `json:"type,omitempty"`
	Value               *Value  `json:"value,omitempty"`
	DefaultValue        *Value  `json:"defaultValue,omitempty"`
	VariableDefinitions []*Node `json:"variableDefinitions,omitempty"`
	Arguments           []*Node `json:"arguments,omitempty"`
	Directives          []*Node `json:"directives,omitempty"`
	SelectionSet        []*Node `json:"selectionSet,omitempty"`
	Loc                 *Loc    `json:"loc,omitempty"`
}

// Value is a literal or variable reference. Name is set on object fields.
type Value struct {
	Kind     string   `json:"kind"`
	Name     string   `json:"name,omitempty"`
	Raw      string   `json:"raw,omitempty"`
	Children []*Value `json:"children,omitempty"`
	Loc      *Loc     `json:"loc,omitempty"`
}

// Snapshot builds a new serializable tree each time it is called.
func (doc *Document) Snapshot() *Snapshot {
	fieldNodes := make([]*Node, 0, len(doc.fieldNodes))
	for _, field := range doc.fieldNodes {
		fieldNodes = append(fieldNodes, selectionNode(field))
	}
	fragments := make(map[string]*Node, len(doc.query.Fragments))
	for _, frag := range doc.query.Fragments {
		fragments[frag.Name] = fragmentNode(frag)
	}

	return &Snapshot{
		FieldName:  doc.fieldName,
		FieldNodes: fieldNodes,
		Fragments:  fragments,
		Operation:  operationNode(doc.operation),
	}
}

// MarshalIndentJSON renders the snapshot as indented JSON. Object keys come out in a stable order.
func (s *Snapshot) MarshalIndentJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalYAML renders the snapshot as YAML with the same key order as MarshalIndentJSON.
func (s *Snapshot) MarshalYAML() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return yaml.JSONToYAML(b)
}

// StripLocations returns a deep copy of s without any Loc.
func (s *Snapshot) StripLocations() *Snapshot {
	copied := &Snapshot{
		FieldName:  s.FieldName,
		FieldNodes: stripNodes(s.FieldNodes),
		Operation:  stripNode(s.Operation),
	}
	if s.Fragments != nil {
		copied.Fragments = make(map[string]*Node, len(s.Fragments))
		for name, node := range s.Fragments {
			copied.Fragments[name] = stripNode(node)
		}
	}
	return copied
}

func stripNodes(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	copied := make([]*Node, 0, len(nodes))
	for _, node := range nodes {
		copied = append(copied, stripNode(node))
	}
	return copied
}

func stripNode(node *Node) *Node {
	if node == nil {
		return nil
	}
	copied := *node
	copied.Loc = nil
	copied.Value = stripValue(node.Value)
	copied.DefaultValue = stripValue(node.DefaultValue)
	copied.VariableDefinitions = stripNodes(node.VariableDefinitions)
	copied.Arguments = stripNodes(node.Arguments)
	copied.Directives = stripNodes(node.Directives)
	copied.SelectionSet = stripNodes(node.SelectionSet)
	return &copied
}

func stripValue(value *Value) *Value {
	if value == nil {
		return nil
	}
	copied := *value
	copied.Loc = nil
	if value.Children != nil {
		copied.Children = make([]*Value, 0, len(value.Children))
		for _, child := range value.Children {
			copied.Children = append(copied.Children, stripValue(child))
		}
	}
	return &copied
}

func operationNode(op *ast.OperationDefinition) *Node {
	return &Node{
		Kind:                KindOperationDefinition,
		Operation:           string(op.Operation),
		Name:                op.Name,
		VariableDefinitions: variableDefinitionNodes(op.VariableDefinitions),
		Directives:          directiveNodes(op.Directives),
		SelectionSet:        selectionSetNodes(op.SelectionSet),
		Loc:                 operationLoc(op),
	}
}

func fragmentNode(frag *ast.FragmentDefinition) *Node {
	return &Node{
		Kind:                KindFragmentDefinition,
		Name:                frag.Name,
		TypeCondition:       frag.TypeCondition,
		VariableDefinitions: variableDefinitionNodes(frag.VariableDefinition),
		Directives:          directiveNodes(frag.Directives),
		SelectionSet:        selectionSetNodes(frag.SelectionSet),
		Loc:                 fragmentLoc(frag),
	}
}

func variableDefinitionNodes(defs ast.VariableDefinitionList) []*Node {
	if len(defs) == 0 {
		return nil
	}
	nodes := make([]*Node, 0, len(defs))
	for _, def := range defs {
		node := &Node{
			Kind:         KindVariableDefinition,
			Name:         def.Variable,
			DefaultValue: valueNode(def.DefaultValue),
			Directives:   directiveNodes(def.Directives),
			Loc:          variableDefinitionLoc(def),
		}
		if def.Type != nil {
			node.Type = def.Type.String()
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func directiveNodes(directives ast.DirectiveList) []*Node {
	if len(directives) == 0 {
		return nil
	}
	nodes := make([]*Node, 0, len(directives))
	for _, directive := range directives {
		nodes = append(nodes, &Node{
			Kind:      KindDirective,
			Name:      directive.Name,
			Arguments: argumentNodes(directive.Arguments),
			Loc:       argumentsLoc(posLoc(directive.Position), directive.Arguments),
		})
	}
	return nodes
}

func argumentNodes(args ast.ArgumentList) []*Node {
	if len(args) == 0 {
		return nil
	}
	nodes := make([]*Node, 0, len(args))
	for _, arg := range args {
		nodes = append(nodes, &Node{
			Kind:  KindArgument,
			Name:  arg.Name,
			Value: valueNode(arg.Value),
			Loc:   posLoc(arg.Position).extend(valueLoc(arg.Value)),
		})
	}
	return nodes
}

func selectionSetNodes(selectionSet ast.SelectionSet) []*Node {
	if len(selectionSet) == 0 {
		return nil
	}
	nodes := make([]*Node, 0, len(selectionSet))
	for _, selection := range selectionSet {
		if node := selectionNode(selection); node != nil {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

func selectionNode(selection ast.Selection) *Node {
	switch selection := selection.(type) {
	case *ast.Field:
		return &Node{
			Kind:         KindField,
			Alias:        aliasOf(selection),
			Name:         selection.Name,
			Arguments:    argumentNodes(selection.Arguments),
			Directives:   directiveNodes(selection.Directives),
			SelectionSet: selectionSetNodes(selection.SelectionSet),
			Loc:          selectionLoc(selection),
		}
	case *ast.FragmentSpread:
		return &Node{
			Kind:       KindFragmentSpread,
			Name:       selection.Name,
			Directives: directiveNodes(selection.Directives),
			Loc:        selectionLoc(selection),
		}
	case *ast.InlineFragment:
		return &Node{
			Kind:          KindInlineFragment,
			TypeCondition: selection.TypeCondition,
			Directives:    directiveNodes(selection.Directives),
			SelectionSet:  selectionSetNodes(selection.SelectionSet),
			Loc:           selectionLoc(selection),
		}
	default:
		return nil
	}
}

// aliasOf reports the alias only when it differs from the field name.
// The parser fills Alias with the name when no alias is written.
func aliasOf(field *ast.Field) string {
	if field.Alias == field.Name {
		return ""
	}
	return field.Alias
}

func valueNode(value *ast.Value) *Value {
	if value == nil {
		return nil
	}
	node := &Value{
		Kind: valueKindName(value.Kind),
		Loc:  valueLoc(value),
	}
	switch value.Kind {
	case ast.ListValue:
		for _, child := range value.Children {
			node.Children = append(node.Children, valueNode(child.Value))
		}
	case ast.ObjectValue:
		for _, child := range value.Children {
			childNode := valueNode(child.Value)
			if childNode == nil {
				continue
			}
			childNode.Name = child.Name
			childNode.Loc = posLoc(child.Position).extend(childNode.Loc)
			node.Children = append(node.Children, childNode)
		}
	default:
		node.Raw = value.Raw
	}
	return node
}

func valueKindName(kind ast.ValueKind) string {
	switch kind {
	case ast.Variable:
		return "Variable"
	case ast.IntValue:
		return "IntValue"
	case ast.FloatValue:
		return "FloatValue"
	case ast.StringValue:
		return "StringValue"
	case ast.BlockValue:
		return "BlockValue"
	case ast.BooleanValue:
		return "BooleanValue"
	case ast.NullValue:
		return "NullValue"
	case ast.EnumValue:
		return "EnumValue"
	case ast.ListValue:
		return "ListValue"
	case ast.ObjectValue:
		return "ObjectValue"
	default:
		return "Unknown"
	}
}
