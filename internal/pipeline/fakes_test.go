package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/alpipe/internal/config"
	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/events"
	"github.com/phrazzld/alpipe/internal/platform/logger"
	"github.com/phrazzld/alpipe/internal/stage"
	"github.com/phrazzld/alpipe/internal/store"
	"github.com/phrazzld/alpipe/internal/task"
	"github.com/stretchr/testify/require"
)

// inlineExecutor runs every job before Submit returns.
type inlineExecutor struct{}

func (inlineExecutor) Submit(job task.Job) error {
	job(context.Background())
	return nil
}

// manualExecutor holds jobs until runAll is called.
type manualExecutor struct {
	mu   sync.Mutex
	jobs []task.Job
}

func (e *manualExecutor) Submit(job task.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return nil
}

func (e *manualExecutor) runAll() {
	e.mu.Lock()
	jobs := e.jobs
	e.jobs = nil
	e.mu.Unlock()
	for _, job := range jobs {
		job(context.Background())
	}
}

func (e *manualExecutor) pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}

func structure(id string) domain.Structure {
	return domain.Structure{MoleculeID: id, Data: json.RawMessage(fmt.Sprintf(`{"id":%q}`, id))}
}

type fakeBuilder struct {
	mu    sync.Mutex
	ids   []string
	cfgs  []domain.StageConfig
	build func(id string) (domain.Structure, error)
}

func (b *fakeBuilder) Build(_ context.Context, id string, cfg domain.StageConfig) (domain.Structure, error) {
	b.mu.Lock()
	b.ids = append(b.ids, id)
	b.cfgs = append(b.cfgs, cfg)
	b.mu.Unlock()
	if b.build != nil {
		return b.build(id)
	}
	return structure(id), nil
}

func (b *fakeBuilder) built() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ids...)
}

type fakeSampler struct {
	mu     sync.Mutex
	models []domain.ModelHandle
	// selectFn decides selection; nil selects everything.
	selectFn func(s domain.Structure) bool
	// output replaces the returned structure when set.
	output func(s domain.Structure) domain.Structure
}

func (f *fakeSampler) Sample(_ context.Context, s domain.Structure, _ domain.StageConfig, model domain.ModelHandle) (domain.SampleResult, error) {
	f.mu.Lock()
	f.models = append(f.models, model)
	f.mu.Unlock()
	r := domain.SampleResult{Structure: s}
	if f.output != nil {
		r.Structure = f.output(s)
	}
	if f.selectFn == nil || f.selectFn(s) {
		r.Selection = json.RawMessage(`{"uncertainty":0.9}`)
	}
	return r, nil
}

type fakeLabeler struct {
	mu       sync.Mutex
	scratch  []string
	props    [][]string
	failWith error
}

func (f *fakeLabeler) Label(_ context.Context, s domain.Structure, _ domain.StageConfig, scratchDir string, properties []string) (domain.Structure, error) {
	f.mu.Lock()
	f.scratch = append(f.scratch, scratchDir)
	f.props = append(f.props, properties)
	f.mu.Unlock()
	if f.failWith != nil {
		return domain.Structure{}, f.failWith
	}
	return domain.Structure{
		MoleculeID: s.MoleculeID,
		Data:       json.RawMessage(fmt.Sprintf(`{"id":%q,"energy":-1.5}`, s.MoleculeID)),
	}, nil
}

type fakeTrainer struct {
	mu       sync.Mutex
	requests []domain.TrainRequest
	result   domain.TrainResult
	err      error
	// train overrides result and err when set.
	train func(req domain.TrainRequest) (domain.TrainResult, error)
}

func (f *fakeTrainer) Train(_ context.Context, req domain.TrainRequest) (domain.TrainResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.train != nil {
		return f.train(req)
	}
	return f.result, f.err
}

func (f *fakeTrainer) submitted() []domain.TrainRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TrainRequest(nil), f.requests...)
}

// memStore is an in-memory status store keeping a copy of every save.
type memStore struct {
	saved   *domain.Status
	saves   int
	saveErr error
	// ctxAware makes Save fail on a done context, like the network stores.
	ctxAware bool
}

func (m *memStore) Load(context.Context) (*domain.Status, error) {
	if m.saved == nil {
		return nil, store.ErrStatusNotFound
	}
	return m.saved.Clone(), nil
}

func (m *memStore) Save(ctx context.Context, s *domain.Status) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.ctxAware && ctx.Err() != nil {
		return ctx.Err()
	}
	m.saves++
	m.saved = s.Clone()
	return nil
}

type shardRecord struct {
	id         int
	records    []domain.Structure
	properties []string
}

type memShards struct {
	written []shardRecord
	err     error
}

func (m *memShards) WriteShard(_ context.Context, id int, records []domain.Structure, properties []string) error {
	if m.err != nil {
		return m.err
	}
	m.written = append(m.written, shardRecord{id: id, records: records, properties: properties})
	return nil
}

// recordingEmitter keeps every emitted event.
type recordingEmitter struct {
	events []*events.Event
}

func (r *recordingEmitter) EmitEvent(_ context.Context, e *events.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEmitter) ofType(eventType string) []*events.Event {
	var out []*events.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeClock counts sleeps and runs onSleep after each one.
type fakeClock struct {
	now     time.Time
	sleeps  int
	onSleep func(n int)
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, _ time.Duration) error {
	c.sleeps++
	if c.onSleep != nil {
		c.onSleep(c.sleeps)
	}
	return ctx.Err()
}

func testSnapshot(mutate func(*config.Config)) *config.Snapshot {
	master := &config.Config{
		TickInterval: time.Second,
		Thresholds: config.Thresholds{
			ParallelBuilders:   5,
			ParallelSamplers:   4,
			TargetQueuedLabels: 10,
			MinBuilderBatch:    0,
			MinSamplerBatch:    0,
			SaveShardThreshold: 100,
			BootstrapSetSize:   5,
		},
		Paths: config.PathsConfig{
			StatusPath: "/run/status.json",
			ShardPath:  "/run/data/shard-%04d.json",
			DataDir:    "/run/data",
			ModelPath:  "/run/models/model-%04d",
			ScratchDir: "/run/scratch",
		},
		Properties:       []string{"energy", "forces"},
		TrainerResources: 2,
	}
	if mutate != nil {
		mutate(master)
	}
	return &config.Snapshot{
		Master:  master,
		Builder: domain.StageConfig{"variant": "init"},
		Sampler: domain.StageConfig{},
		Labeler: domain.StageConfig{},
		Trainer: domain.StageConfig{"epochs": 10},
	}
}

// harness bundles a Controller with its fakes.
type harness struct {
	c        *Controller
	builder  *fakeBuilder
	sampler  *fakeSampler
	labeler  *fakeLabeler
	trainer  *fakeTrainer
	store    *memStore
	shards   *memShards
	emitter  *recordingEmitter
	clock    *fakeClock
	reloader *config.Reloader
	logs     *logger.TestLogBuffer
}

type harnessOption func(*harnessSetup)

type harnessSetup struct {
	snap      *config.Snapshot
	load      config.LoadFunc
	executors Executors
	status    *domain.Status
}

func withSnapshot(snap *config.Snapshot) harnessOption {
	return func(s *harnessSetup) { s.snap = snap }
}

func withLoad(load config.LoadFunc) harnessOption {
	return func(s *harnessSetup) { s.load = load }
}

func withStatus(status *domain.Status) harnessOption {
	return func(s *harnessSetup) { s.status = status }
}

func withTrainerExecutor(e task.Executor) harnessOption {
	return func(s *harnessSetup) { s.executors.Trainer = e }
}

func withExecutors(e Executors) harnessOption {
	return func(s *harnessSetup) { s.executors = e }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	setup := &harnessSetup{
		snap:   testSnapshot(nil),
		status: domain.NewStatus(0, 0),
		executors: Executors{
			Builder: inlineExecutor{},
			Sampler: inlineExecutor{},
			Labeler: inlineExecutor{},
			Trainer: inlineExecutor{},
		},
	}
	for _, opt := range opts {
		opt(setup)
	}
	if setup.load == nil {
		snap := setup.snap
		setup.load = func() (*config.Snapshot, error) { return snap, nil }
	}

	log, buf := logger.GetTestLogger(t)
	h := &harness{
		builder:  &fakeBuilder{},
		sampler:  &fakeSampler{},
		labeler:  &fakeLabeler{},
		trainer:  &fakeTrainer{result: domain.TrainResult{Success: []bool{true, true}, ModelID: 1}},
		store:    &memStore{},
		shards:   &memShards{},
		emitter:  &recordingEmitter{},
		clock:    &fakeClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		reloader: config.NewReloader(setup.snap, setup.load),
		logs:     buf,
	}

	c, err := New(setup.status, Deps{
		Reloader: h.reloader,
		Stages: stage.Set{
			Builder: h.builder,
			Sampler: h.sampler,
			Labeler: h.labeler,
			Trainer: h.trainer,
			Checker: stage.NewStructChecker(),
		},
		Executors: setup.executors,
		Store:     h.store,
		Shards:    h.shards,
		Emitter:   h.emitter,
		Clock:     h.clock,
		Logger:    log,
	})
	require.NoError(t, err)
	h.c = c
	return h
}

func modelStatus(model, training, shard, molecule int) *domain.Status {
	s := domain.NewStatus(training, shard)
	s.ModelID = &model
	s.MoleculeID = molecule
	return s
}

var errStage = errors.New("stage failed")
