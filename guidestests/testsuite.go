package guidestests

import (
	"context"

	"github.com/pitabwire/util"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"

	"github.com/wosguides/guides/guidestests/definition"
)

// BaseTestSuite starts the suite's dependencies on a shared network before the first test.
// Suites are skipped when no healthy container provider is available.
type BaseTestSuite struct {
	suite.Suite

	// Dependencies lists what to start. It must be set before SetupSuite runs.
	Dependencies func() []definition.Dependency

	Network *testcontainers.DockerNetwork
	started map[string]definition.Dependency
}

func (s *BaseTestSuite) SetupSuite() {
	t := s.T()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	s.Require().NotNil(s.Dependencies, "Dependencies is required")

	ctx := t.Context()
	log := util.Log(ctx)

	ntwk, err := network.New(ctx)
	s.Require().NoError(err, "could not create network")
	s.Network = ntwk

	s.started = map[string]definition.Dependency{}
	for _, dep := range s.Dependencies() {
		log.WithField("kind", dep.Kind()).Info("starting test dependency")
		s.started[dep.Kind()] = dep
		s.Require().NoError(dep.Start(ctx, ntwk))
	}
}

// URI returns the connection string of the dependency of the given kind, or "" when none was started.
func (s *BaseTestSuite) URI(kind string) string {
	if dep, ok := s.started[kind]; ok {
		return dep.URI()
	}
	return ""
}

func (s *BaseTestSuite) TearDownSuite() {
	ctx := context.Background()

	for _, dep := range s.started {
		dep.Stop(ctx)
	}

	if s.Network != nil {
		s.NoError(s.Network.Remove(ctx), "could not remove network")
	}
}
