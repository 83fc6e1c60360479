// Package definition describes containerised dependencies for integration suites.
package definition

import (
	"context"
	"fmt"
	"time"

	"github.com/pitabwire/util"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
)

const defaultStartupTimeout = time.Minute

// Dependency is a backing service started once per suite.
type Dependency interface {
	// Kind names the service, e.g. "valkey". Suites look dependencies up by kind.
	Kind() string
	Start(ctx context.Context, ntwk *testcontainers.DockerNetwork) error
	// URI is the connection string reachable from the test process.
	URI() string
	Stop(ctx context.Context)
}

type ContainerOpts struct {
	ImageName      string
	NetworkAliases []string
	StartupTimeout time.Duration
}

type ContainerOption func(*ContainerOpts)

func WithImageName(imageName string) ContainerOption {
	return func(o *ContainerOpts) {
		o.ImageName = imageName
	}
}

func WithNetworkAliases(aliases ...string) ContainerOption {
	return func(o *ContainerOpts) {
		o.NetworkAliases = aliases
	}
}

func WithStartupTimeout(timeout time.Duration) ContainerOption {
	return func(o *ContainerOpts) {
		o.StartupTimeout = timeout
	}
}

// RunFunc starts a testcontainers module and reports its connection string.
type RunFunc func(ctx context.Context, opts ContainerOpts,
	customizers ...testcontainers.ContainerCustomizer) (string, testcontainers.Container, error)

type container struct {
	kind string
	opts ContainerOpts
	run  RunFunc

	uri string
	ctr testcontainers.Container
}

// NewContainer builds a Dependency from defaults overridden by opts.
func NewContainer(kind string, run RunFunc, defaults ContainerOpts, opts ...ContainerOption) Dependency {
	for _, opt := range opts {
		opt(&defaults)
	}
	if defaults.StartupTimeout <= 0 {
		defaults.StartupTimeout = defaultStartupTimeout
	}
	return &container{kind: kind, opts: defaults, run: run}
}

func (c *container) Kind() string {
	return c.kind
}

func (c *container) Start(ctx context.Context, ntwk *testcontainers.DockerNetwork) error {
	var customizers []testcontainers.ContainerCustomizer
	if ntwk != nil {
		customizers = append(customizers, network.WithNetwork(c.opts.NetworkAliases, ntwk))
	}

	uri, ctr, err := c.run(ctx, c.opts, customizers...)
	c.ctr = ctr
	if err != nil {
		return fmt.Errorf("start %s (%s): %w", c.kind, c.opts.ImageName, err)
	}
	c.uri = uri
	return nil
}

func (c *container) URI() string {
	return c.uri
}

func (c *container) Stop(ctx context.Context) {
	if c.ctr == nil {
		return
	}
	if err := testcontainers.TerminateContainer(c.ctr); err != nil {
		util.Log(ctx).WithError(err).WithField("kind", c.kind).Error("could not terminate container")
	}
}
