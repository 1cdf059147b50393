package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/phrazzld/alpipe/internal/config"
	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/platform/logger"
	"github.com/phrazzld/alpipe/internal/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDeps(t *testing.T) Deps {
	log, _ := logger.GetTestLogger(t)
	snap := testSnapshot(nil)
	return Deps{
		Reloader: config.NewReloader(snap, func() (*config.Snapshot, error) { return snap, nil }),
		Stages: stage.Set{
			Builder: &fakeBuilder{},
			Sampler: &fakeSampler{},
			Labeler: &fakeLabeler{},
			Trainer: &fakeTrainer{},
			Checker: stage.NewStructChecker(),
		},
		Executors: Executors{
			Builder: inlineExecutor{},
			Sampler: inlineExecutor{},
			Labeler: inlineExecutor{},
			Trainer: inlineExecutor{},
		},
		Store:  &memStore{},
		Shards: &memShards{},
		Logger: log,
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	tests := []struct {
		name    string
		status  *domain.Status
		mutate  func(d *Deps)
		wantErr string
	}{
		{name: "missing status", mutate: func(*Deps) {}, wantErr: "status is required"},
		{name: "missing reloader", status: domain.NewStatus(0, 0), mutate: func(d *Deps) { d.Reloader = nil }, wantErr: "reloader"},
		{name: "missing stage", status: domain.NewStatus(0, 0), mutate: func(d *Deps) { d.Stages.Labeler = nil }, wantErr: "every stage"},
		{name: "missing checker", status: domain.NewStatus(0, 0), mutate: func(d *Deps) { d.Stages.Checker = nil }, wantErr: "checker"},
		{name: "missing executor", status: domain.NewStatus(0, 0), mutate: func(d *Deps) { d.Executors.Trainer = nil }, wantErr: "executor"},
		{name: "missing store", status: domain.NewStatus(0, 0), mutate: func(d *Deps) { d.Store = nil }, wantErr: "status store"},
		{name: "missing shard writer", status: domain.NewStatus(0, 0), mutate: func(d *Deps) { d.Shards = nil }, wantErr: "shard writer"},
		{name: "missing logger", status: domain.NewStatus(0, 0), mutate: func(d *Deps) { d.Logger = nil }, wantErr: "logger"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deps := validDeps(t)
			tc.mutate(&deps)

			c, err := New(tc.status, deps)

			require.Error(t, err)
			assert.Nil(t, c)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestNewDefaultsOptionalDependencies(t *testing.T) {
	c, err := New(domain.NewStatus(0, 0), validDeps(t))

	require.NoError(t, err)
	assert.IsType(t, SystemClock{}, c.clock)
	require.NoError(t, c.BootstrapTick(context.Background()))
}

func TestStatusReturnsCopy(t *testing.T) {
	h := newHarness(t, withStatus(modelStatus(1, 2, 2, 0)))

	s := h.c.Status()
	s.MoleculeID = 1000

	assert.Equal(t, 0, h.c.Status().MoleculeID)
}

func TestNeedsBootstrap(t *testing.T) {
	assert.True(t, newHarness(t, withStatus(domain.NewStatus(0, 0))).c.NeedsBootstrap())
	assert.False(t, newHarness(t, withStatus(domain.NewStatus(0, 1))).c.NeedsBootstrap())
	assert.False(t, newHarness(t, withStatus(domain.NewStatus(3, 0))).c.NeedsBootstrap())
}

func TestSystemClockSleep(t *testing.T) {
	var clock SystemClock

	assert.NoError(t, clock.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, clock.Sleep(ctx, time.Hour), context.Canceled)
}
