package geodash

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"geodash/internal/evo"
	"geodash/internal/model"
	"geodash/internal/platform"
	"geodash/internal/sim"
	"geodash/internal/stats"
	"geodash/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultDBPath       = "geodash.db"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
}

// Client is the embedding surface: it owns one store, one arena, and the
// artifacts directory that training runs write into.
type Client struct {
	store storage.Store
	arena *platform.Arena

	artifactsDir string
}

type RunRequest struct {
	RunID         string
	Course        string
	Population    int
	Generations   int
	MutationRate  float64
	EliteFraction float64
	Mutation      string
	Selection     string
	Seed          int64
	Workers       int
	OnGeneration  func(model.GenerationDiagnostics)
	Control       chan evo.Command
}

type RunSummary struct {
	RunID            string
	Course           string
	ArtifactsDir     string
	EliteCount       int
	BestByGeneration []float64
	FinalBestFitness float64
	BestEverFitness  float64
	BestGenes        model.Genes
	Solved           bool
	Evaluations      int
}

type SimulateRequest struct {
	Course string
	Genes  model.Genes
	Seed   int64
}

type SimulateSummary struct {
	Course           string
	Genes            model.Genes
	Seed             int64
	SurvivalTime     float64
	Terminated       bool
	Steps            int
	ObstaclesSpawned int
	JumpsTriggered   int
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	Course           string
	Seed             int64
	Population       int
	Generations      int
	FinalBestFitness float64
	Solved           bool
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type TopPoliciesRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type CourseItem struct {
	Name        string
	Description string
	BestFitness float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
	}, nil
}

func (c *Client) Close() error {
	c.arena = nil
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureArena(ctx)
	return err
}

func (c *Client) Reset(ctx context.Context) error {
	arena, err := c.ensureArena(ctx)
	if err != nil {
		return err
	}
	return arena.Reset(ctx)
}

func (c *Client) Train(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Course == "" {
		req.Course = "classic"
	}
	if req.Population <= 0 {
		req.Population = 40
	}
	if req.Generations <= 0 {
		req.Generations = 25
	}
	if req.MutationRate == 0 {
		req.MutationRate = 0.3
	}
	if req.Workers <= 0 {
		req.Workers = 4
	}
	if req.Mutation == "" {
		req.Mutation = "adaptive"
	}
	if req.Selection == "" {
		req.Selection = "elite"
	}

	mutator, err := mutationFromName(req.Mutation, req.MutationRate)
	if err != nil {
		return RunSummary{}, err
	}
	selector, err := selectionFromName(req.Selection)
	if err != nil {
		return RunSummary{}, err
	}

	arena, err := c.ensureArena(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	now := time.Now().UTC()
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	result, err := arena.Train(ctx, platform.TrainConfig{
		RunID:          runID,
		Course:         req.Course,
		PopulationSize: req.Population,
		Generations:    req.Generations,
		MutationRate:   req.MutationRate,
		EliteFraction:  req.EliteFraction,
		Mutator:        mutator,
		Selector:       selector,
		Workers:        req.Workers,
		Seed:           req.Seed,
		Control:        req.Control,
		OnGeneration:   req.OnGeneration,
	})
	if err != nil {
		return RunSummary{}, err
	}

	engine, ok := arena.Course(result.Course)
	if !ok {
		return RunSummary{}, fmt.Errorf("course not registered: %s", result.Course)
	}
	solved := result.BestEver.Fitness >= engine.Config().MaxDuration

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:          runID,
			Course:         result.Course,
			PopulationSize: req.Population,
			Generations:    req.Generations,
			MutationRate:   req.MutationRate,
			EliteFraction:  req.EliteFraction,
			EliteCount:     result.EliteCount,
			Mutation:       req.Mutation,
			Selection:      req.Selection,
			Seed:           req.Seed,
			Workers:        req.Workers,
		},
		BestByGeneration: result.BestByGeneration,
		Diagnostics:      result.Diagnostics,
		FinalBestFitness: result.BestFinalFitness,
		TopPolicies:      topPolicyRecords(result.TopFinal),
	})
	if err != nil {
		return RunSummary{}, err
	}

	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:            runID,
		Course:           result.Course,
		PopulationSize:   req.Population,
		Generations:      req.Generations,
		Seed:             req.Seed,
		Workers:          req.Workers,
		EliteCount:       result.EliteCount,
		FinalBestFitness: result.BestFinalFitness,
		Solved:           solved,
		CreatedAtUTC:     now.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:            runID,
		Course:           result.Course,
		ArtifactsDir:     filepath.Clean(runDir),
		EliteCount:       result.EliteCount,
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		FinalBestFitness: result.BestFinalFitness,
		BestEverFitness:  result.BestEver.Fitness,
		BestGenes:        result.BestEver.Policy.Genes,
		Solved:           solved,
		Evaluations:      result.Evaluations,
	}, nil
}

// Simulate runs a single scripted episode for one policy.
func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (SimulateSummary, error) {
	if req.Course == "" {
		req.Course = "classic"
	}

	arena, err := c.ensureArena(ctx)
	if err != nil {
		return SimulateSummary{}, err
	}
	engine, ok := arena.Course(req.Course)
	if !ok {
		return SimulateSummary{}, fmt.Errorf("course not registered: %s", req.Course)
	}

	outcome, err := engine.Evaluate(ctx, req.Genes, rand.New(rand.NewSource(req.Seed)))
	if err != nil {
		return SimulateSummary{}, err
	}

	return SimulateSummary{
		Course:           engine.Name(),
		Genes:            req.Genes,
		Seed:             req.Seed,
		SurvivalTime:     outcome.SurvivalTime,
		Terminated:       outcome.Terminated,
		Steps:            outcome.Steps,
		ObstaclesSpawned: outcome.ObstaclesSpawned,
		JumpsTriggered:   outcome.JumpsTriggered,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Course:           e.Course,
			Seed:             e.Seed,
			Population:       e.PopulationSize,
			Generations:      e.Generations,
			FinalBestFitness: e.FinalBestFitness,
			Solved:           e.Solved,
		})
	}
	return out, nil
}

func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, req.Limit)
	if err != nil {
		return nil, err
	}

	if _, err := c.ensureArena(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, req.Limit)
	if err != nil {
		return nil, err
	}

	if _, err := c.ensureArena(ctx); err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

func (c *Client) TopPolicies(ctx context.Context, req TopPoliciesRequest) ([]model.TopPolicyRecord, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, req.Limit)
	if err != nil {
		return nil, err
	}

	if _, err := c.ensureArena(ctx); err != nil {
		return nil, err
	}
	top, ok, err := c.store.GetTopPolicies(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("top policies not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(top) > req.Limit {
		top = top[:req.Limit]
	}
	out := make([]model.TopPolicyRecord, len(top))
	copy(out, top)
	return out, nil
}

func (c *Client) Courses(ctx context.Context) ([]CourseItem, error) {
	arena, err := c.ensureArena(ctx)
	if err != nil {
		return nil, err
	}

	specs := arena.Courses()
	out := make([]CourseItem, 0, len(specs))
	for _, spec := range specs {
		item := CourseItem{Name: spec.Name, Description: spec.Description}
		summary, ok, err := c.store.GetCourseSummary(ctx, spec.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			item.BestFitness = summary.BestFitness
		}
		out = append(out, item)
	}
	return out, nil
}

func (c *Client) PauseRun(ctx context.Context, runID string) error {
	arena, err := c.ensureArena(ctx)
	if err != nil {
		return err
	}
	return arena.PauseRun(runID)
}

func (c *Client) ContinueRun(ctx context.Context, runID string) error {
	arena, err := c.ensureArena(ctx)
	if err != nil {
		return err
	}
	return arena.ContinueRun(runID)
}

func (c *Client) StopRun(ctx context.Context, runID string) error {
	arena, err := c.ensureArena(ctx)
	if err != nil {
		return err
	}
	return arena.StopRun(runID)
}

func (c *Client) resolveRunID(runID string, latest bool, limit int) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if limit < 0 {
		return "", errors.New("limit must be >= 0")
	}

	if latest {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "", errors.New("no runs available")
		}
		return entries[0].RunID, nil
	}
	if runID == "" {
		return "", errors.New("run id or latest is required")
	}
	return runID, nil
}

func (c *Client) ensureArena(ctx context.Context) (*platform.Arena, error) {
	if c.arena != nil && c.arena.Started() {
		return c.arena, nil
	}
	arena := platform.NewArena(platform.Config{Store: c.store, Courses: sim.BuiltinCourses()})
	if err := arena.Init(ctx); err != nil {
		return nil, err
	}
	c.arena = arena
	return c.arena, nil
}

func topPolicyRecords(top []evo.Scored) []model.TopPolicyRecord {
	out := make([]model.TopPolicyRecord, 0, len(top))
	for i, item := range top {
		out = append(out, model.TopPolicyRecord{
			Rank:    i + 1,
			Fitness: item.Fitness,
			Policy:  item.Policy,
		})
	}
	return out
}

func mutationFromName(name string, rate float64) (evo.Mutator, error) {
	switch name {
	case "adaptive":
		return evo.NewAdaptiveScaleMutation(rate)
	case "fixed":
		return evo.NewFixedScaleMutation(rate, evo.DefaultMutationSigma)
	default:
		return nil, fmt.Errorf("unsupported mutation strategy: %s", name)
	}
}

func selectionFromName(name string) (evo.Selector, error) {
	switch name {
	case "elite":
		return evo.EliteSelector{}, nil
	case "tournament":
		return evo.TournamentSelector{PoolSize: 0, TournamentSize: 3}, nil
	default:
		return nil, fmt.Errorf("unsupported selection strategy: %s", name)
	}
}
