package gateway

import (
	"github.com/vvakame/walletop/client"
)

func NewRemoteServiceDefinition(name string, endpointURL string, opts ...client.Option) *ServiceDefinition {
	return &ServiceDefinition{
		Name:       name,
		URL:        endpointURL,
		DataSource: client.NewRemote(endpointURL, opts...),
	}
}
