package workerpool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/wosguides/guides/config"
	"github.com/wosguides/guides/workerpool"
)

type WorkerPoolSuite struct {
	suite.Suite
}

func TestWorkerPoolSuite(t *testing.T) {
	suite.Run(t, new(WorkerPoolSuite))
}

func (s *WorkerPoolSuite) newManager(count int, opts ...workerpool.Option) workerpool.Manager {
	cfg := &config.ConfigurationDefault{
		WorkerPoolCapacity:       4,
		WorkerPoolCount:          count,
		WorkerPoolExpiryDuration: "1s",
	}

	m, err := workerpool.NewManager(context.Background(), cfg, opts...)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func (s *WorkerPoolSuite) TestSubmitRunsTasks() {
	for _, count := range []int{1, 3} {
		m := s.newManager(count)

		var wg sync.WaitGroup
		var ran atomic.Int32
		ids := map[string]bool{}
		for range 4 {
			wg.Add(1)
			id, err := m.Submit(context.Background(), "count", func(context.Context) {
				defer wg.Done()
				ran.Add(1)
			})
			s.Require().NoError(err)
			s.NotEmpty(id)
			ids[id] = true
		}

		wg.Wait()
		s.Equal(int32(4), ran.Load())
		s.Len(ids, 4)
	}
}

func (s *WorkerPoolSuite) TestTaskContextOutlivesSubmitter() {
	m := s.newManager(1)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	result := make(chan error, 1)
	_, err := m.Submit(ctx, "detached", func(taskCtx context.Context) {
		<-started
		result <- taskCtx.Err()
	})
	s.Require().NoError(err)

	cancel()
	close(started)
	s.NoError(<-result)
}

func (s *WorkerPoolSuite) TestSubmitRejectsCancelledContextAndNilTask() {
	m := s.newManager(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Submit(ctx, "cancelled", func(context.Context) {})
	s.ErrorIs(err, context.Canceled)

	_, err = m.Submit(context.Background(), "nil", nil)
	s.Error(err)
}

func (s *WorkerPoolSuite) TestShutdownIsIdempotentAndRefusesWork() {
	m := s.newManager(1)
	s.NoError(m.Shutdown(context.Background()))
	s.NoError(m.Shutdown(context.Background()))

	_, err := m.Submit(context.Background(), "late", func(context.Context) {})
	s.Error(err)

	ran := make(chan struct{}, 1)
	s.False(workerpool.Go(context.Background(), m, "late", func(context.Context) { ran <- struct{}{} }))
	select {
	case <-ran:
		s.Fail("task ran on a released pool")
	case <-time.After(50 * time.Millisecond):
	}
}

func (s *WorkerPoolSuite) TestGoWithoutManagerUsesGoroutine() {
	done := make(chan struct{})
	s.True(workerpool.Go(context.Background(), nil, "plain", func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("task did not run")
	}
}

func (s *WorkerPoolSuite) TestGoFallsBackWhenSaturated() {
	m := s.newManager(1, workerpool.WithSinglePoolCapacity(1))

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(3)
	for range 3 {
		scheduled := workerpool.Go(context.Background(), m, "saturate", func(context.Context) {
			defer wg.Done()
			<-block
		})
		s.True(scheduled)
	}

	close(block)
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		s.Fail("saturated tasks were not all run")
	}
}

func (s *WorkerPoolSuite) TestPanicsAreContained() {
	m := s.newManager(1)
	_, err := m.Submit(context.Background(), "panics", func(context.Context) { panic("boom") })
	s.Require().NoError(err)

	done := make(chan struct{})
	_, err = m.Submit(context.Background(), "after", func(context.Context) { close(done) })
	s.Require().NoError(err)

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("pool stopped after a panic")
	}
}
