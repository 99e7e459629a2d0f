package operation

import (
	"context"
	"errors"
	"os"
	"path"
	"strconv"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	testlogr "github.com/go-logr/logr/testing"
	"github.com/google/go-cmp/cmp"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
	"github.com/vvakame/walletop/internal/log"
	"github.com/vvakame/walletop/internal/testutils"
)

var walletSchema = heredoc.Doc(`
	type Query {
		wallet(address: String!): Wallet
	}

	type Mutation {
		walletComplete(input: WalletCompleteInput!): WalletCompletePayload!
	}

	input WalletCompleteInput {
		walletAddress: String!
		signature: String!
		nonce: String!
	}

	type WalletCompletePayload {
		firstLogIn: Boolean!
		session: Session!
		wallet: Wallet!
	}

	type Session {
		id: ID!
		token: String!
		expiresAt: String!
	}

	type Wallet {
		id: ID!
		address: String!
		createdAt: String!
	}
`)

var walletCompleteQuery = heredoc.Doc(`
	mutation walletComplete($input: WalletCompleteInput!) {
		walletComplete(input: $input) {
			firstLogIn
			session {
				...SessionFields
			}
			wallet {
				...WalletFields
			}
		}
	}

	fragment SessionFields on Session {
		id
		token
		expiresAt
	}

	fragment WalletFields on Wallet {
		id
		address
		createdAt
	}
`)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(context.Background(), testlogr.NewTestLogger(t))
}

func loadSchema(t *testing.T) *ast.Schema {
	t.Helper()

	schemaDoc, gErr := parser.ParseSchemas(
		validator.Prelude,
		&ast.Source{Name: "schema.graphql", Input: walletSchema},
	)
	if gErr != nil {
		t.Fatal(gErr)
	}
	schema, gErr2 := validator.ValidateSchemaDocument(schemaDoc)
	if gErr2 != nil {
		t.Fatal(gErr2)
	}
	return schema
}

func TestParse(t *testing.T) {
	const testFileDir = "./_testdata/assets"
	const expectFileDir = "./_testdata/expected"

	errorsByName := map[string]error{
		"noOperation":        ErrNoOperation,
		"multipleOperations": ErrMultipleOperations,
		"multipleRootFields": ErrMultipleRootFields,
		"unknownFragment":    ErrUnknownFragment,
		"duplicateFragment":  ErrDuplicateFragment,
		"fragmentCycle":      ErrFragmentCycle,
	}

	files, err := os.ReadDir(testFileDir)
	if err != nil {
		t.Fatal(err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".graphql") {
			continue
		}

		file := file
		t.Run(file.Name(), func(t *testing.T) {
			ctx := testContext(t)

			b, err := os.ReadFile(path.Join(testFileDir, file.Name()))
			if err != nil {
				t.Fatal(err)
			}
			input := string(b)

			doc, err := Parse(ctx, &ast.Source{Name: file.Name(), Input: input})

			if errName := testutils.FindOptionString(t, "error", input); errName != "" {
				want, ok := errorsByName[errName]
				if !ok {
					t.Fatalf("unknown error name: %s", errName)
				}
				if !errors.Is(err, want) {
					t.Fatalf("unexpected error: %v, want: %v", err, want)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}

			if v := testutils.FindOptionString(t, "fieldName", input); v != "" && v != doc.FieldName() {
				t.Errorf("unexpected fieldName: %s, want: %s", doc.FieldName(), v)
			}
			if v := testutils.FindOptionString(t, "fieldNodes", input); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					t.Fatal(err)
				}
				if len(doc.FieldNodes()) != n {
					t.Errorf("unexpected fieldNodes length: %d, want: %d", len(doc.FieldNodes()), n)
				}
			}

			snapshot := doc.Snapshot()
			checkLocations(t, snapshot, len(input))

			jsonBytes, err := snapshot.MarshalIndentJSON()
			if err != nil {
				t.Fatal(err)
			}
			testutils.CheckGoldenFile(t, jsonBytes, path.Join(expectFileDir, file.Name()+".json"))

			yamlBytes, err := snapshot.MarshalYAML()
			if err != nil {
				t.Fatal(err)
			}
			testutils.CheckGoldenFile(t, yamlBytes, path.Join(expectFileDir, file.Name()+".yaml"))
		})
	}
}

func checkLocations(t *testing.T, snapshot *Snapshot, sourceLen int) {
	t.Helper()

	var walkValue func(value *Value)
	walkValue = func(value *Value) {
		if value == nil {
			return
		}
		checkLoc(t, value.Kind, value.Loc, sourceLen)
		for _, child := range value.Children {
			walkValue(child)
		}
	}
	var walk func(node *Node)
	walk = func(node *Node) {
		if node == nil {
			return
		}
		checkLoc(t, string(node.Kind), node.Loc, sourceLen)
		walkValue(node.Value)
		walkValue(node.DefaultValue)
		for _, list := range [][]*Node{node.VariableDefinitions, node.Arguments, node.Directives, node.SelectionSet} {
			for _, child := range list {
				walk(child)
			}
		}
	}

	walk(snapshot.Operation)
	for _, node := range snapshot.FieldNodes {
		walk(node)
	}
	for _, node := range snapshot.Fragments {
		walk(node)
	}
}

func checkLoc(t *testing.T, kind string, loc *Loc, sourceLen int) {
	t.Helper()

	if loc == nil {
		t.Errorf("%s has no loc", kind)
		return
	}
	if loc.End < loc.Start {
		t.Errorf("%s has loc.end %d < loc.start %d", kind, loc.End, loc.Start)
	}
	if loc.End > sourceLen {
		t.Errorf("%s has loc.end %d past source length %d", kind, loc.End, sourceLen)
	}
}

func TestDocument_accessors(t *testing.T) {
	ctx := testContext(t)

	doc, err := Parse(ctx, &ast.Source{Name: "walletComplete.graphql", Input: walletCompleteQuery})
	if err != nil {
		t.Fatal(err)
	}

	if v := doc.FieldName(); v != "walletComplete" {
		t.Errorf("unexpected fieldName: %s", v)
	}
	if v := doc.OperationName(); v != "walletComplete" {
		t.Errorf("unexpected operation name: %s", v)
	}
	if v := doc.OperationType(); v != ast.Mutation {
		t.Errorf("unexpected operation type: %s", v)
	}

	vars := doc.Operation().VariableDefinitions
	if len(vars) != 1 {
		t.Fatalf("unexpected variable definitions: %d", len(vars))
	}
	if vars[0].Variable != "input" || vars[0].Type.String() != "WalletCompleteInput!" {
		t.Errorf("unexpected variable definition: $%s: %s", vars[0].Variable, vars[0].Type.String())
	}

	var names []string
	for _, frag := range doc.Fragments() {
		names = append(names, frag.Name+" on "+frag.TypeCondition)
	}
	if diff := cmp.Diff([]string{"SessionFields on Session", "WalletFields on Wallet"}, names); diff != "" {
		t.Errorf("unexpected fragments (-want +got):\n%s", diff)
	}
	if doc.Fragment("WalletFields") == nil {
		t.Error("WalletFields is not found")
	}
	if doc.Fragment("Missing") != nil {
		t.Error("unexpected fragment")
	}

	var selected []string
	for _, selection := range doc.FieldNodes()[0].SelectionSet {
		selected = append(selected, selection.(*ast.Field).Name)
	}
	if diff := cmp.Diff([]string{"firstLogIn", "session", "wallet"}, selected); diff != "" {
		t.Errorf("unexpected selections (-want +got):\n%s", diff)
	}

	if len(doc.Hash()) != 64 {
		t.Errorf("unexpected hash: %s", doc.Hash())
	}
}

func TestDocument_readOnly(t *testing.T) {
	ctx := testContext(t)

	doc, err := Parse(ctx, &ast.Source{Name: "walletComplete.graphql", Input: walletCompleteQuery})
	if err != nil {
		t.Fatal(err)
	}

	fieldNodes := doc.FieldNodes()
	fieldNodes[0] = nil
	if doc.FieldNodes()[0] == nil {
		t.Error("FieldNodes shares its backing array")
	}

	fragments := doc.Fragments()
	fragments[0] = nil
	if doc.Fragments()[0] == nil {
		t.Error("Fragments shares its backing array")
	}

	src := doc.Source()
	src.Input = ""
	if doc.Source().Input == "" {
		t.Error("Source shares its value")
	}

	if err := doc.Validate(loadSchema(t)); err != nil {
		t.Fatal(err)
	}
	field := doc.FieldNodes()[0]
	if field.Definition != nil {
		t.Error("Validate annotated the shared AST")
	}

	before, err := doc.Snapshot().MarshalIndentJSON()
	if err != nil {
		t.Fatal(err)
	}
	snapshot := doc.Snapshot()
	snapshot.FieldName = "mutated"
	snapshot.Operation.SelectionSet = nil
	after, err := doc.Snapshot().MarshalIndentJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("Snapshot shares its tree")
	}
}

func TestDocument_Validate(t *testing.T) {
	ctx := testContext(t)
	schema := loadSchema(t)

	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{
			name:  "walletComplete",
			query: walletCompleteQuery,
		},
		{
			name: "unknown field",
			query: heredoc.Doc(`
				mutation walletComplete($input: WalletCompleteInput!) {
					walletComplete(input: $input) {
						firstLogIn
						balance
					}
				}
			`),
			wantErr: true,
		},
		{
			name: "wrong variable type",
			query: heredoc.Doc(`
				mutation walletComplete($input: String!) {
					walletComplete(input: $input) {
						firstLogIn
					}
				}
			`),
			wantErr: true,
		},
		{
			name: "fragment on wrong type",
			query: heredoc.Doc(`
				mutation walletComplete($input: WalletCompleteInput!) {
					walletComplete(input: $input) {
						wallet {
							...SessionFields
						}
					}
				}

				fragment SessionFields on Session {
					token
				}
			`),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(ctx, &ast.Source{Name: tt.name, Input: tt.query})
			if err != nil {
				t.Fatal(err)
			}

			err = doc.Validate(schema)
			if (err != nil) != tt.wantErr {
				t.Errorf("unexpected error: %v, wantErr: %v", err, tt.wantErr)
			}
		})
	}
}

func TestSnapshot_roundTrip(t *testing.T) {
	ctx := testContext(t)

	doc1, err := Parse(ctx, &ast.Source{Name: "walletComplete.graphql", Input: walletCompleteQuery})
	if err != nil {
		t.Fatal(err)
	}

	// Parsing the canonical text again must produce the same tree.
	doc2, err := Parse(ctx, &ast.Source{Name: "printed.graphql", Input: doc1.Query()})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(doc1.Snapshot().StripLocations(), doc2.Snapshot().StripLocations()); diff != "" {
		t.Errorf("tree changed after printing (-want +got):\n%s", diff)
	}
	if doc1.Query() != doc2.Query() {
		t.Errorf("printing is not stable:\n%s\n---\n%s", doc1.Query(), doc2.Query())
	}
	if doc1.Hash() != doc2.Hash() {
		t.Errorf("hash is not stable: %s, %s", doc1.Hash(), doc2.Hash())
	}

	// Generating twice from the same source must be byte identical.
	doc3, err := Parse(ctx, &ast.Source{Name: "walletComplete.graphql", Input: walletCompleteQuery})
	if err != nil {
		t.Fatal(err)
	}
	for _, marshal := range []func(s *Snapshot) ([]byte, error){
		(*Snapshot).MarshalIndentJSON,
		(*Snapshot).MarshalYAML,
	} {
		b1, err := marshal(doc1.Snapshot())
		if err != nil {
			t.Fatal(err)
		}
		b3, err := marshal(doc3.Snapshot())
		if err != nil {
			t.Fatal(err)
		}
		if string(b1) != string(b3) {
			t.Errorf("output is not deterministic:\n%s\n---\n%s", b1, b3)
		}
	}
}

func TestSnapshot_values(t *testing.T) {
	ctx := testContext(t)

	doc, err := Parse(ctx, &ast.Source{
		Name: "literal.graphql",
		Input: heredoc.Doc(`
			mutation literal {
				walletComplete(input: {walletAddress: "0xabc", signature: "0xsig", nonce: "n-1"}) {
					firstLogIn
				}
			}
		`),
	})
	if err != nil {
		t.Fatal(err)
	}

	snapshot := doc.Snapshot().StripLocations()
	args := snapshot.FieldNodes[0].Arguments
	if len(args) != 1 {
		t.Fatalf("unexpected arguments: %d", len(args))
	}
	want := &Value{
		Kind: "ObjectValue",
		Children: []*Value{
			{Kind: "StringValue", Name: "walletAddress", Raw: "0xabc"},
			{Kind: "StringValue", Name: "signature", Raw: "0xsig"},
			{Kind: "StringValue", Name: "nonce", Raw: "n-1"},
		},
	}
	if diff := cmp.Diff(want, args[0].Value); diff != "" {
		t.Errorf("unexpected value (-want +got):\n%s", diff)
	}
}

func TestCheckInvariants_locations(t *testing.T) {
	queryDoc, gErr := parser.ParseQuery(&ast.Source{Input: walletCompleteQuery})
	if gErr != nil {
		t.Fatal(gErr)
	}

	if err := CheckInvariants(queryDoc, &ast.Source{Input: walletCompleteQuery}); err != nil {
		t.Fatal(err)
	}
	if err := CheckInvariants(queryDoc, nil); err != nil {
		t.Fatal(err)
	}

	// A shorter source than the one the AST was parsed from.
	err := CheckInvariants(queryDoc, &ast.Source{Input: walletCompleteQuery[:10]})
	if !errors.Is(err, ErrInvalidLocation) {
		t.Errorf("unexpected error: %v", err)
	}

	field := queryDoc.Operations[0].SelectionSet[0].(*ast.Field)
	field.Position = &ast.Position{Start: 10, End: 5, Line: 2, Column: 2}
	err = CheckInvariants(queryDoc, nil)
	if !errors.Is(err, ErrInvalidLocation) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMustParse(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustParse didn't panic")
		}
	}()

	MustParse(context.Background(), &ast.Source{Name: "broken.graphql", Input: "mutation {"})
}
