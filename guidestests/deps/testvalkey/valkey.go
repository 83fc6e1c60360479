package testvalkey

import (
	"context"

	"github.com/testcontainers/testcontainers-go"
	tcvalkey "github.com/testcontainers/testcontainers-go/modules/valkey"

	"github.com/wosguides/guides/guidestests/definition"
)

const (
	Kind  = "valkey"
	Image = "docker.io/valkey/valkey:latest"
)

// New describes a valkey server. Its URI uses the redis:// scheme.
func New(opts ...definition.ContainerOption) definition.Dependency {
	defaults := definition.ContainerOpts{ImageName: Image, NetworkAliases: []string{"valkey"}}
	return definition.NewContainer(Kind, run, defaults, opts...)
}

func run(ctx context.Context, opts definition.ContainerOpts,
	customizers ...testcontainers.ContainerCustomizer) (string, testcontainers.Container, error) {
	ctr, err := tcvalkey.Run(ctx, opts.ImageName, customizers...)
	if ctr == nil {
		return "", nil, err
	}
	if err != nil {
		return "", ctr, err
	}

	uri, err := ctr.ConnectionString(ctx)
	return uri, ctr, err
}
