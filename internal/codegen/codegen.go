package codegen

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/vvakame/walletop/internal/log"
	"github.com/vvakame/walletop/operation"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatGo   Format = "go"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML, FormatGo:
		return f, nil
	}
	return "", fmt.Errorf("unknown format: %q", s)
}

type Options struct {
	Format Format
	// Package of the generated Go file. defaults to "operations".
	Package string
	// Name prefixes the generated Go identifiers. defaults to the operation name.
	Name string
	// Source is written into the header of the generated Go file.
	Source string
}

var goTemplate = template.Must(template.New("go").Funcs(template.FuncMap{
	"quote": strconv.Quote,
}).Parse(`// Code generated by walletop; DO NOT EDIT.
{{- if .Source }}
// source: {{ .Source }}
{{- end }}

package {{ .Package }}

const (
	{{ .Name }}OperationName = {{ quote .OperationName }}
	{{ .Name }}OperationType = {{ quote .OperationType }}
	{{ .Name }}FieldName     = {{ quote .FieldName }}
	{{ .Name }}Hash          = {{ quote .Hash }}
)

{{- if .Fragments }}

// {{ .Name }}Fragments lists the fragment names in document order.
var {{ .Name }}Fragments = []string{
{{- range .Fragments }}
	{{ quote . }},
{{- end }}
}
{{- end }}

const {{ .Name }}Query = {{ .Query }}
`))

type goParams struct {
	Source        string
	Package       string
	Name          string
	OperationName string
	OperationType string
	FieldName     string
	Hash          string
	Fragments     []string
	Query         string
}

// Generate renders doc in the requested format. The output only depends on doc and opts.
func Generate(ctx context.Context, doc *operation.Document, opts *Options) ([]byte, error) {
	if opts == nil {
		opts = &Options{}
	}
	f := opts.Format
	if f == "" {
		f = FormatJSON
	}

	log.Debug(ctx, "generate", "operation", doc.OperationName(), "format", f)

	switch f {
	case FormatJSON:
		return doc.Snapshot().MarshalIndentJSON()
	case FormatYAML:
		return doc.Snapshot().MarshalYAML()
	case FormatGo:
		return generateGo(doc, opts)
	}
	return nil, fmt.Errorf("unknown format: %q", f)
}

func generateGo(doc *operation.Document, opts *Options) ([]byte, error) {
	params := &goParams{
		Source:        opts.Source,
		Package:       opts.Package,
		Name:          opts.Name,
		OperationName: doc.OperationName(),
		OperationType: string(doc.OperationType()),
		FieldName:     doc.FieldName(),
		Hash:          doc.Hash(),
		Query:         rawString(doc.Query()),
	}
	if params.Package == "" {
		params.Package = "operations"
	}
	if params.Name == "" {
		params.Name = exportedName(doc.OperationName())
	}
	if params.Name == "" {
		params.Name = exportedName(doc.FieldName())
	}
	if !isIdentifier(params.Name) {
		return nil, fmt.Errorf("invalid name: %q", params.Name)
	}
	if !isIdentifier(params.Package) {
		return nil, fmt.Errorf("invalid package: %q", params.Package)
	}
	for _, frag := range doc.Fragments() {
		params.Fragments = append(params.Fragments, frag.Name)
	}

	var buf bytes.Buffer
	err := goTemplate.Execute(&buf, params)
	if err != nil {
		return nil, err
	}

	b, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format generated code: %w", err)
	}
	return b, nil
}

// rawString quotes s as a raw string literal, or as an interpreted one when s has a backquote or carriage return.
func rawString(s string) string {
	if strings.ContainsAny(s, "`\r") {
		return strconv.Quote(s)
	}
	return "`" + s + "`"
}

func exportedName(s string) string {
	if s == "" {
		return ""
	}
	rs := []rune(s)
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', unicode.IsLetter(r):
		case i != 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}
