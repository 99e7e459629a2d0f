package gateway

import (
	"github.com/99designs/gqlgen/graphql"
	"github.com/vvakame/walletop/client"
)

func NewLocalServiceDefinition(name string, es graphql.ExecutableSchema) *ServiceDefinition {
	return &ServiceDefinition{
		Name:       name,
		DataSource: client.NewLocal(es),
	}
}
