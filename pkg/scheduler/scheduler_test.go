package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/services/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var quietLogger = logging.NewLoggerWithWriter(io.Discard, logging.DEBUG, false)

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, compensate bool) (*settlement.ReconcileReport, error) {
	args := m.Called(ctx, compensate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.ReconcileReport), args.Error(1)
}

type fakeMaintainer struct {
	mu       sync.Mutex
	rotated  int
	pruned   int
	pruneErr error
}

func (f *fakeMaintainer) RotateIndices(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rotated++
	return nil
}

func (f *fakeMaintainer) PruneOldIndices(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned++
	if f.pruneErr != nil {
		return nil, f.pruneErr
	}
	return []string{"spinz_results_2020.01"}, nil
}

func (f *fakeMaintainer) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rotated, f.pruned
}

func TestSchedulerRunsImmediatelyAndOnInterval(t *testing.T) {
	// Setup
	s := NewScheduler(quietLogger)
	var runs atomic.Int32
	s.AddTask("count", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("ignored")
	})

	// Execute
	s.Start(context.Background())
	s.Start(context.Background())

	// Assert
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()
	stopped := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())
	s.Stop()

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "count", status[0].Name)
	assert.Equal(t, int(stopped), status[0].Runs)
	assert.Equal(t, status[0].Runs, status[0].Failures)
}

func TestSchedulerCancelsSlowRuns(t *testing.T) {
	// Setup
	s := NewScheduler(quietLogger)
	done := make(chan error, 1)
	s.AddTask("slow", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		select {
		case done <- ctx.Err():
		default:
		}
		return ctx.Err()
	})

	// Execute
	s.Start(context.Background())
	defer s.Stop()

	// Assert
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("slow run was not cancelled")
	}
}

func TestSchedulerStopsWithParentContext(t *testing.T) {
	// Setup
	s := NewScheduler(quietLogger)
	started := make(chan struct{}, 1)
	s.AddTask("block", time.Hour, func(ctx context.Context) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())

	// Execute
	s.Start(ctx)
	<-started
	cancel()

	// Assert
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestReconcileSchedulerReportsOnly(t *testing.T) {
	// Setup
	reconciler := new(MockReconciler)
	report := &settlement.ReconcileReport{
		Failed: []*entities.GameResult{{ID: "res-1", AccountID: "acc-1", FailureReason: "draw timed out"}},
	}
	reconciler.On("Reconcile", mock.Anything, false).Return(report, nil)
	s := NewReconcileScheduler(reconciler, time.Hour, false, quietLogger)

	// Execute
	err := s.reconcileFailedBets(context.Background())

	// Assert
	require.NoError(t, err)
	reconciler.AssertExpectations(t)
}

func TestReconcileSchedulerCompensatesWhenEnabled(t *testing.T) {
	// Setup
	reconciler := new(MockReconciler)
	called := make(chan struct{}, 1)
	reconciler.On("Reconcile", mock.Anything, true).
		Run(func(args mock.Arguments) { called <- struct{}{} }).
		Return(&settlement.ReconcileReport{}, nil).Once()
	s := NewReconcileScheduler(reconciler, time.Hour, true, quietLogger)

	// Execute
	s.Start(context.Background())
	defer s.Stop()

	// Assert
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("reconcile task did not run")
	}
}

func TestReconcileSchedulerReturnsErrors(t *testing.T) {
	// Setup
	reconciler := new(MockReconciler)
	reconciler.On("Reconcile", mock.Anything, false).Return(nil, errors.New("store down"))
	s := NewReconcileScheduler(reconciler, 0, false, quietLogger)

	// Execute
	err := s.reconcileFailedBets(context.Background())

	// Assert
	assert.EqualError(t, err, "store down")
	assert.Equal(t, 5*time.Minute, s.interval)
}

func TestElasticsearchMaintenance(t *testing.T) {
	// Setup
	sink := &fakeMaintainer{}
	s := NewElasticsearchMaintenanceScheduler(sink, time.Hour, quietLogger)

	// Execute
	s.Start(context.Background())

	// Assert
	assert.Eventually(t, func() bool {
		rotated, pruned := sink.counts()
		return rotated == 1 && pruned == 1
	}, time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestElasticsearchPruneError(t *testing.T) {
	// Setup
	sink := &fakeMaintainer{pruneErr: errors.New("forbidden")}
	s := NewElasticsearchMaintenanceScheduler(sink, 0, quietLogger)

	// Execute
	err := s.pruneOldIndices(context.Background())

	// Assert
	assert.EqualError(t, err, "forbidden")
	assert.Equal(t, 24*time.Hour, s.rotationInterval)
}
