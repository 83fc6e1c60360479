package testnats

import (
	"context"

	"github.com/testcontainers/testcontainers-go"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wosguides/guides/guidestests/definition"
)

const (
	Kind  = "nats"
	Image = "nats:latest"
)

// New describes a NATS server with JetStream enabled.
func New(opts ...definition.ContainerOption) definition.Dependency {
	defaults := definition.ContainerOpts{ImageName: Image, NetworkAliases: []string{"nats"}}
	return definition.NewContainer(Kind, run, defaults, opts...)
}

func run(ctx context.Context, opts definition.ContainerOpts,
	customizers ...testcontainers.ContainerCustomizer) (string, testcontainers.Container, error) {
	customizers = append(customizers,
		testcontainers.WithCmdArgs("--js"),
		testcontainers.WithWaitStrategy(wait.ForLog("Server is ready").WithStartupTimeout(opts.StartupTimeout)),
	)

	ctr, err := tcnats.Run(ctx, opts.ImageName, customizers...)
	if ctr == nil {
		return "", nil, err
	}
	if err != nil {
		return "", ctr, err
	}

	uri, err := ctr.ConnectionString(ctx)
	return uri, ctr, err
}
