package operation

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
	_ "github.com/vektah/gqlparser/v2/validator/rules"
	"github.com/vvakame/walletop/internal/log"
)

// Document is a parsed GraphQL document holding exactly one operation.
//
// A Document never changes after Parse returns. The AST nodes reachable from it are
// shared between callers and must be treated as read-only.
type Document struct {
	source    *ast.Source
	query     *ast.QueryDocument
	operation *ast.OperationDefinition

	fieldName  string
	fieldNodes []*ast.Field

	printed string
	hash    string
}

func Parse(ctx context.Context, src *ast.Source) (*Document, error) {
	logger := log.FromContext(ctx).WithValues("source", src.Name)

	queryDoc, err := parser.ParseQuery(src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.Name, err)
	}

	switch len(queryDoc.Operations) {
	case 0:
		return nil, fmt.Errorf("%s: %w", src.Name, ErrNoOperation)
	case 1:
	default:
		return nil, fmt.Errorf("%s: %w", src.Name, ErrMultipleOperations)
	}

	if err := CheckInvariants(queryDoc, src); err != nil {
		return nil, fmt.Errorf("%s: %w", src.Name, err)
	}

	op := queryDoc.Operations[0]
	fieldNodes := collectRootFields(queryDoc.Fragments, op.SelectionSet, nil, make(map[string]struct{}))
	if len(fieldNodes) == 0 {
		return nil, fmt.Errorf("%s: %w", src.Name, ErrNoRootField)
	}
	fieldName := fieldNodes[0].Name
	for _, field := range fieldNodes[1:] {
		if field.Name != fieldName {
			return nil, fmt.Errorf("%s: %w: %s and %s", src.Name, ErrMultipleRootFields, fieldName, field.Name)
		}
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(queryDoc)
	printed := buf.String()
	sum := sha256.Sum256([]byte(printed))

	doc := &Document{
		source:     src,
		query:      queryDoc,
		operation:  op,
		fieldName:  fieldName,
		fieldNodes: fieldNodes,
		printed:    printed,
		hash:       hex.EncodeToString(sum[:]),
	}

	logger.V(1).Info("parsed operation", "operation", op.Name, "type", op.Operation, "fieldName", fieldName, "fragments", len(queryDoc.Fragments))

	return doc, nil
}

// MustParse is like Parse but panics on error. It is meant for package-level documents.
func MustParse(ctx context.Context, src *ast.Source) *Document {
	doc, err := Parse(ctx, src)
	if err != nil {
		panic(err)
	}
	return doc
}

// collectRootFields flattens fragment spreads and inline fragments of the root selection set.
func collectRootFields(fragments ast.FragmentDefinitionList, selectionSet ast.SelectionSet, fields []*ast.Field, visited map[string]struct{}) []*ast.Field {
	for _, selection := range selectionSet {
		switch selection := selection.(type) {
		case *ast.Field:
			fields = append(fields, selection)
		case *ast.InlineFragment:
			fields = collectRootFields(fragments, selection.SelectionSet, fields, visited)
		case *ast.FragmentSpread:
			if _, ok := visited[selection.Name]; ok {
				continue
			}
			visited[selection.Name] = struct{}{}
			frag := fragments.ForName(selection.Name)
			if frag == nil {
				continue
			}
			fields = collectRootFields(fragments, frag.SelectionSet, fields, visited)
		}
	}
	return fields
}

// FieldName is the schema name of the root field. Aliases are not applied.
func (doc *Document) FieldName() string {
	return doc.fieldName
}

// FieldNodes returns every root selection of FieldName, in document order.
func (doc *Document) FieldNodes() []*ast.Field {
	fieldNodes := make([]*ast.Field, len(doc.fieldNodes))
	copy(fieldNodes, doc.fieldNodes)
	return fieldNodes
}

func (doc *Document) Fragments() ast.FragmentDefinitionList {
	fragments := make(ast.FragmentDefinitionList, len(doc.query.Fragments))
	copy(fragments, doc.query.Fragments)
	return fragments
}

func (doc *Document) Fragment(name string) *ast.FragmentDefinition {
	return doc.query.Fragments.ForName(name)
}

func (doc *Document) Operation() *ast.OperationDefinition {
	return doc.operation
}

func (doc *Document) OperationName() string {
	return doc.operation.Name
}

func (doc *Document) OperationType() ast.Operation {
	return doc.operation.Operation
}

// CloneQueryDocument parses the source again and returns a private AST.
// Validation and execution annotate the AST they are given, so callers hand them a clone.
func (doc *Document) CloneQueryDocument() (*ast.QueryDocument, error) {
	queryDoc, err := parser.ParseQuery(doc.source)
	if err != nil {
		return nil, err
	}
	return queryDoc, nil
}

// Source returns the text the document was parsed from.
func (doc *Document) Source() *ast.Source {
	src := *doc.source
	return &src
}

// Query returns the canonical printed form of the document.
func (doc *Document) Query() string {
	return doc.printed
}

// Hash is the hex encoded sha256 of Query. It is the persisted query id of the document.
func (doc *Document) Hash() string {
	return doc.hash
}

func (doc *Document) Validate(schema *ast.Schema) error {
	queryDoc, err := doc.CloneQueryDocument()
	if err != nil {
		return err
	}
	gErrs := validator.Validate(schema, queryDoc)
	if len(gErrs) != 0 {
		return gErrs
	}
	return nil
}
