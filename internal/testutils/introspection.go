package testutils

import (
	"encoding/json"
	"fmt"
)

// IntrospectionQuery is the query GraphQL Playground and GraphiQL send to load a schema.
const IntrospectionQuery = `
query IntrospectionQuery {
  __schema {
    description
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types {
      ...FullType
    }
    directives {
      name
      description
      isRepeatable
      locations
      args {
        ...InputValue
      }
    }
  }
}

fragment FullType on __Type {
  kind
  name
  description
  specifiedByURL
  fields(includeDeprecated: true) {
    name
    description
    args {
      ...InputValue
    }
    type {
      ...TypeRef
    }
    isDeprecated
    deprecationReason
  }
  inputFields {
    ...InputValue
  }
  interfaces {
    ...TypeRef
  }
  enumValues(includeDeprecated: true) {
    name
    description
    isDeprecated
    deprecationReason
  }
  possibleTypes {
    ...TypeRef
  }
}

fragment InputValue on __InputValue {
  name
  description
  type { ...TypeRef }
  defaultValue
}

fragment TypeRef on __Type {
  kind
  name
  ofType {
    kind
    name
    ofType {
      kind
      name
      ofType {
        kind
        name
        ofType {
          kind
          name
        }
      }
    }
  }
}
`

// IntrospectionField is a field of IntrospectionType.
type IntrospectionField struct {
	Name string            `json:"name"`
	Args []json.RawMessage `json:"args"`
}

// IntrospectionType is a type of the IntrospectionQuery result.
type IntrospectionType struct {
	Kind   string                `json:"kind"`
	Name   string                `json:"name"`
	Fields []*IntrospectionField `json:"fields"`
}

// IntrospectionSchema is the __schema of the IntrospectionQuery result.
type IntrospectionSchema struct {
	MutationType *struct {
		Name string `json:"name"`
	} `json:"mutationType"`
	Types      []*IntrospectionType `json:"types"`
	Directives []*struct {
		Name string            `json:"name"`
		Args []json.RawMessage `json:"args"`
	} `json:"directives"`
}

// CheckIntrospectionResult decodes the data of IntrospectionQuery.
// It fails when a list the client requires is null.
func CheckIntrospectionResult(t TestingT, data []byte) *IntrospectionSchema {
	t.Helper()

	var v struct {
		Schema *IntrospectionSchema `json:"__schema"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatal(err)
	}
	if v.Schema == nil {
		t.Fatal("__schema is null")
	}

	for _, typ := range v.Schema.Types {
		if typ.Kind != "OBJECT" && typ.Kind != "INTERFACE" {
			continue
		}
		if typ.Fields == nil {
			t.Error(fmt.Sprintf("fields of %s is null", typ.Name))
			continue
		}
		for _, field := range typ.Fields {
			if field.Args == nil {
				t.Error(fmt.Sprintf("args of %s.%s is null", typ.Name, field.Name))
			}
		}
	}
	for _, directive := range v.Schema.Directives {
		if directive.Args == nil {
			t.Error(fmt.Sprintf("args of @%s is null", directive.Name))
		}
	}
	return v.Schema
}

// FindType returns the named type of the IntrospectionQuery result.
func (s *IntrospectionSchema) FindType(name string) *IntrospectionType {
	for _, typ := range s.Types {
		if typ.Name == name {
			return typ
		}
	}
	return nil
}

// FindField returns the named field.
func (typ *IntrospectionType) FindField(name string) *IntrospectionField {
	for _, field := range typ.Fields {
		if field.Name == name {
			return field
		}
	}
	return nil
}
