package testresources

import (
	"strconv"

	"github.com/mainlaunch/mainlaunch/framework/resources"
)

const (
	RedisName       = "redis"
	ConsulName      = "consul"
	DynamoDBName    = "dynamodb"
	MockServiceName = "mock-service"
)

// Register adds every resource in this package to registry.
func Register(registry *resources.Registry) {
	registry.Register(RedisName, func() resources.Resource { return &Redis{} })
	registry.Register(ConsulName, func() resources.Resource { return &Consul{} })
	registry.Register(DynamoDBName, func() resources.Resource { return &DynamoDB{} })
	registry.Register(MockServiceName, func() resources.Resource { return &MockService{} })
}

func boolArg(ic resources.InitContext, name string, defaultValue bool) (bool, error) {
	s := ic.Arg(name, "")
	if s == "" {
		return defaultValue, nil
	}
	return strconv.ParseBool(s)
}
