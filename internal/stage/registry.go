package stage

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/phrazzld/alpipe/internal/config"
	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/stage/command"
)

// ErrUnknownStrategy is returned by Resolve when a configured strategy name
// has not been registered for its stage.
var ErrUnknownStrategy = errors.New("unknown stage strategy")

// Constructors build a stage implementation. They receive a logger already
// scoped to the stage.
type (
	BuilderFactory func(logger *slog.Logger) Builder
	SamplerFactory func(logger *slog.Logger) Sampler
	LabelerFactory func(logger *slog.Logger) Labeler
	TrainerFactory func(logger *slog.Logger) Trainer
)

// Registry maps strategy names to constructors, per stage.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]BuilderFactory
	samplers map[string]SamplerFactory
	labelers map[string]LabelerFactory
	trainers map[string]TrainerFactory
	checker  Checker
}

// NewRegistry creates an empty registry using the default structural checker.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]BuilderFactory),
		samplers: make(map[string]SamplerFactory),
		labelers: make(map[string]LabelerFactory),
		trainers: make(map[string]TrainerFactory),
		checker:  NewStructChecker(),
	}
}

// Default returns a registry with the built-in "command" strategy registered
// for every stage.
func Default() *Registry {
	r := NewRegistry()
	r.mustRegister(r.RegisterBuilder(command.Name, func(l *slog.Logger) Builder { return command.NewBuilder(l) }))
	r.mustRegister(r.RegisterSampler(command.Name, func(l *slog.Logger) Sampler { return command.NewSampler(l) }))
	r.mustRegister(r.RegisterLabeler(command.Name, func(l *slog.Logger) Labeler { return command.NewLabeler(l) }))
	r.mustRegister(r.RegisterTrainer(command.Name, func(l *slog.Logger) Trainer { return command.NewTrainer(l) }))
	return r
}

func (r *Registry) mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}

func register[F any](mu *sync.RWMutex, m map[string]F, stage domain.Stage, name string, f F, isNil bool) error {
	if name == "" {
		return fmt.Errorf("empty %s strategy name", stage)
	}
	if isNil {
		return fmt.Errorf("nil %s constructor for %q", stage, name)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := m[name]; exists {
		return fmt.Errorf("%s strategy already registered for name=%s", stage, name)
	}
	m[name] = f
	return nil
}

// RegisterBuilder registers a builder constructor under name.
func (r *Registry) RegisterBuilder(name string, f BuilderFactory) error {
	return register(&r.mu, r.builders, domain.StageBuilder, name, f, f == nil)
}

// RegisterSampler registers a sampler constructor under name.
func (r *Registry) RegisterSampler(name string, f SamplerFactory) error {
	return register(&r.mu, r.samplers, domain.StageSampler, name, f, f == nil)
}

// RegisterLabeler registers a labeler constructor under name.
func (r *Registry) RegisterLabeler(name string, f LabelerFactory) error {
	return register(&r.mu, r.labelers, domain.StageLabeler, name, f, f == nil)
}

// RegisterTrainer registers a trainer constructor under name.
func (r *Registry) RegisterTrainer(name string, f TrainerFactory) error {
	return register(&r.mu, r.trainers, domain.StageTrainer, name, f, f == nil)
}

// SetChecker replaces the structural checker handed out by Resolve.
func (r *Registry) SetChecker(c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checker = c
}

func lookup[F any](m map[string]F, stage domain.Stage, name string) (F, error) {
	f, ok := m[name]
	if !ok {
		known := make([]string, 0, len(m))
		for k := range m {
			known = append(known, k)
		}
		sort.Strings(known)
		return f, fmt.Errorf("%w: %s %q (known: %s)", ErrUnknownStrategy, stage, name, strings.Join(known, ", "))
	}
	return f, nil
}

// Resolve builds the implementation named for each stage in cfg.
func (r *Registry) Resolve(cfg config.StagesConfig, logger *slog.Logger) (Set, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scoped := func(stage domain.Stage) *slog.Logger {
		return logger.With("stage", stage.String(), "strategy", cfg.Get(stage).Task)
	}

	var set Set
	var errs []error

	if f, err := lookup(r.builders, domain.StageBuilder, cfg.Builder.Task); err != nil {
		errs = append(errs, err)
	} else {
		set.Builder = f(scoped(domain.StageBuilder))
	}
	if f, err := lookup(r.samplers, domain.StageSampler, cfg.Sampler.Task); err != nil {
		errs = append(errs, err)
	} else {
		set.Sampler = f(scoped(domain.StageSampler))
	}
	if f, err := lookup(r.labelers, domain.StageLabeler, cfg.Labeler.Task); err != nil {
		errs = append(errs, err)
	} else {
		set.Labeler = f(scoped(domain.StageLabeler))
	}
	if f, err := lookup(r.trainers, domain.StageTrainer, cfg.Trainer.Task); err != nil {
		errs = append(errs, err)
	} else {
		set.Trainer = f(scoped(domain.StageTrainer))
	}

	if err := errors.Join(errs...); err != nil {
		return Set{}, err
	}

	set.Checker = r.checker
	return set, nil
}
