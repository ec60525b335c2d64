package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"geodash/internal/evo"
	"geodash/internal/model"
	"geodash/internal/sim"
	"geodash/internal/storage"
)

type Config struct {
	Store   storage.Store
	Courses []sim.CourseSpec
}

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

// TopPolicyCount bounds how many ranked policies a run persists.
const TopPolicyCount = 5

type TrainConfig struct {
	RunID          string
	Course         string
	PopulationSize int
	Generations    int
	MutationRate   float64
	EliteFraction  float64
	Mutator        evo.Mutator
	Selector       evo.Selector
	Workers        int
	Seed           int64
	Control        chan evo.Command
	OnGeneration   func(model.GenerationDiagnostics)
	Initial        []model.Policy
}

type TrainResult struct {
	RunID            string
	Course           string
	EliteCount       int
	BestByGeneration []float64
	Diagnostics      []model.GenerationDiagnostics
	BestFinalFitness float64
	TopFinal         []evo.Scored
	BestEver         evo.Scored
	Evaluations      int
}

// Arena owns the registered courses, the artifact store, and the control
// channels of in-flight training runs.
type Arena struct {
	store storage.Store

	mu sync.RWMutex

	engines        map[string]*sim.Engine
	courses        map[string]sim.CourseSpec
	started        bool
	lastStopReason StopReason
	runs           map[string]chan evo.Command

	config Config
}

func NewArena(cfg Config) *Arena {
	return &Arena{
		store:          cfg.Store,
		engines:        make(map[string]*sim.Engine),
		courses:        make(map[string]sim.CourseSpec),
		runs:           make(map[string]chan evo.Command),
		config:         cfg,
		lastStopReason: StopReasonNormal,
	}
}

func (a *Arena) Init(ctx context.Context) error {
	if a.store == nil {
		return fmt.Errorf("store is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	if err := a.store.Init(ctx); err != nil {
		return err
	}

	specs := a.config.Courses
	if len(specs) == 0 {
		specs = sim.BuiltinCourses()
	}
	for i, spec := range specs {
		if spec.Name == "" {
			a.engines = make(map[string]*sim.Engine)
			a.courses = make(map[string]sim.CourseSpec)
			return fmt.Errorf("course name is required at index %d", i)
		}
		if _, exists := a.courses[spec.Name]; exists {
			a.engines = make(map[string]*sim.Engine)
			a.courses = make(map[string]sim.CourseSpec)
			return fmt.Errorf("duplicate course: %s", spec.Name)
		}
		engine, err := sim.NewEngine(spec.Name, spec.Config)
		if err != nil {
			a.engines = make(map[string]*sim.Engine)
			a.courses = make(map[string]sim.CourseSpec)
			return fmt.Errorf("build course %s: %w", spec.Name, err)
		}
		a.courses[spec.Name] = spec
		a.engines[spec.Name] = engine
	}

	a.started = true
	return nil
}

func (a *Arena) Reset(ctx context.Context) error {
	_ = a.StopWithReason(StopReasonShutdown)
	if resetter, ok := a.store.(storage.Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			return err
		}
	}
	return a.Init(ctx)
}

func (a *Arena) RegisterCourse(spec sim.CourseSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("course name is required")
	}
	engine, err := sim.NewEngine(spec.Name, spec.Config)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return fmt.Errorf("arena is not initialized")
	}
	a.courses[spec.Name] = spec
	a.engines[spec.Name] = engine
	return nil
}

// Course resolves a course by name or alias.
func (a *Arena) Course(name string) (*sim.Engine, bool) {
	canonical, err := sim.NormalizeCourseName(name)
	if err != nil {
		return nil, false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	engine, ok := a.engines[canonical]
	return engine, ok
}

func (a *Arena) Courses() []sim.CourseSpec {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.courses))
	for name := range a.courses {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]sim.CourseSpec, 0, len(names))
	for _, name := range names {
		out = append(out, a.courses[name])
	}
	return out
}

func (a *Arena) Stop() {
	_ = a.StopWithReason(StopReasonNormal)
}

func (a *Arena) Shutdown() {
	_ = a.StopWithReason(StopReasonShutdown)
}

func (a *Arena) StopWithReason(reason StopReason) error {
	if reason == "" {
		reason = StopReasonNormal
	}
	if !isValidStopReason(reason) {
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, control := range a.runs {
		select {
		case control <- evo.CommandStop:
		default:
		}
	}

	a.started = false
	a.lastStopReason = reason
	a.engines = make(map[string]*sim.Engine)
	a.courses = make(map[string]sim.CourseSpec)
	a.runs = make(map[string]chan evo.Command)
	return nil
}

func (a *Arena) Train(ctx context.Context, cfg TrainConfig) (TrainResult, error) {
	if cfg.Course == "" {
		return TrainResult{}, fmt.Errorf("course is required")
	}
	canonical, err := sim.NormalizeCourseName(cfg.Course)
	if err != nil {
		return TrainResult{}, err
	}

	a.mu.RLock()
	engine, ok := a.engines[canonical]
	started := a.started
	a.mu.RUnlock()

	if !started {
		return TrainResult{}, fmt.Errorf("arena is not initialized")
	}
	if !ok {
		return TrainResult{}, fmt.Errorf("course not registered: %s", canonical)
	}

	runID := cfg.RunID
	if runID == "" {
		runID = fmt.Sprintf("train:%s:%d", canonical, cfg.Seed)
	}
	control := cfg.Control
	if control == nil {
		control = make(chan evo.Command, 16)
	}
	if err := a.registerRunControl(runID, control); err != nil {
		return TrainResult{}, err
	}
	defer a.unregisterRunControl(runID)

	trainer, err := evo.NewTrainer(evo.TrainerConfig{
		Course:         engine,
		PopulationSize: cfg.PopulationSize,
		Generations:    cfg.Generations,
		MutationRate:   cfg.MutationRate,
		EliteFraction:  cfg.EliteFraction,
		Mutator:        cfg.Mutator,
		Selector:       cfg.Selector,
		Workers:        cfg.Workers,
		Seed:           cfg.Seed,
		Control:        control,
		OnGeneration:   cfg.OnGeneration,
	})
	if err != nil {
		return TrainResult{}, err
	}

	initial := cfg.Initial
	if initial == nil {
		initial = trainer.SeedPopulation()
	} else if len(initial) != cfg.PopulationSize {
		return TrainResult{}, fmt.Errorf("initial population mismatch: got=%d want=%d", len(initial), cfg.PopulationSize)
	}

	result, err := trainer.Run(ctx, initial)
	if err != nil {
		return TrainResult{}, err
	}

	finalPolicies := make([]model.Policy, 0, len(result.FinalPopulation))
	for _, scored := range result.FinalPopulation {
		policy := scored.Policy
		policy.VersionedRecord = storage.CurrentVersions()
		finalPolicies = append(finalPolicies, policy)
	}
	if err := a.store.SavePopulation(ctx, model.Population{
		VersionedRecord: storage.CurrentVersions(),
		ID:              runID,
		Generation:      len(result.BestByGeneration),
		Policies:        finalPolicies,
	}); err != nil {
		return TrainResult{}, err
	}
	if err := a.store.SaveFitnessHistory(ctx, runID, result.BestByGeneration); err != nil {
		return TrainResult{}, err
	}
	if err := a.store.SaveDiagnostics(ctx, runID, result.Diagnostics); err != nil {
		return TrainResult{}, err
	}

	bestFinal := 0.0
	topFinal := []evo.Scored{}
	if len(result.FinalPopulation) > 0 {
		bestFinal = result.FinalPopulation[0].Fitness
		topCount := TopPolicyCount
		if len(result.FinalPopulation) < topCount {
			topCount = len(result.FinalPopulation)
		}
		topFinal = append(topFinal, result.FinalPopulation[:topCount]...)
	}
	if err := a.store.SaveTopPolicies(ctx, runID, toTopPolicyRecords(topFinal)); err != nil {
		return TrainResult{}, err
	}
	if err := a.updateCourseSummary(ctx, canonical, result.BestEver.Fitness); err != nil {
		return TrainResult{}, err
	}

	return TrainResult{
		RunID:            runID,
		Course:           canonical,
		EliteCount:       trainer.EliteCount(),
		BestByGeneration: result.BestByGeneration,
		Diagnostics:      result.Diagnostics,
		BestFinalFitness: bestFinal,
		TopFinal:         topFinal,
		BestEver:         result.BestEver,
		Evaluations:      result.Evaluations,
	}, nil
}

func toTopPolicyRecords(top []evo.Scored) []model.TopPolicyRecord {
	out := make([]model.TopPolicyRecord, 0, len(top))
	for i, item := range top {
		policy := item.Policy
		policy.VersionedRecord = storage.CurrentVersions()
		out = append(out, model.TopPolicyRecord{
			Rank:    i + 1,
			Fitness: item.Fitness,
			Policy:  policy,
		})
	}
	return out
}

func (a *Arena) updateCourseSummary(ctx context.Context, course string, fitness float64) error {
	summary, ok, err := a.store.GetCourseSummary(ctx, course)
	if err != nil {
		return err
	}
	if !ok {
		summary = model.CourseSummary{
			VersionedRecord: storage.CurrentVersions(),
			Name:            course,
			Description:     fmt.Sprintf("best observed survival time for course %s", course),
		}
	}
	if fitness > summary.BestFitness {
		summary.BestFitness = fitness
	}
	return a.store.SaveCourseSummary(ctx, summary)
}

func (a *Arena) PauseRun(runID string) error {
	return a.sendRunCommand(runID, evo.CommandPause)
}

func (a *Arena) ContinueRun(runID string) error {
	return a.sendRunCommand(runID, evo.CommandContinue)
}

func (a *Arena) StopRun(runID string) error {
	return a.sendRunCommand(runID, evo.CommandStop)
}

func (a *Arena) registerRunControl(runID string, control chan evo.Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return fmt.Errorf("arena is not initialized")
	}
	if _, exists := a.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	a.runs[runID] = control
	return nil
}

func (a *Arena) unregisterRunControl(runID string) {
	if runID == "" {
		return
	}
	a.mu.Lock()
	delete(a.runs, runID)
	a.mu.Unlock()
}

func (a *Arena) sendRunCommand(runID string, cmd evo.Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	a.mu.RLock()
	control, ok := a.runs[runID]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}

func (a *Arena) ActiveRuns() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.runs))
	for name := range a.runs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *Arena) Started() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

func (a *Arena) LastStopReason() StopReason {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastStopReason
}

func isValidStopReason(reason StopReason) bool {
	switch reason {
	case StopReasonNormal, StopReasonShutdown:
		return true
	default:
		return false
	}
}
