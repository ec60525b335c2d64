package evo

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"geodash/internal/model"
	"geodash/internal/sim"
)

// stubCourse scores genes directly, without simulating anything, so trainer
// behavior can be asserted in isolation.
type stubCourse struct {
	name  string
	score func(genes model.Genes) sim.Outcome
}

func (s stubCourse) Name() string {
	return s.name
}

func (s stubCourse) Evaluate(_ context.Context, genes model.Genes, _ *rand.Rand) (sim.Outcome, error) {
	return s.score(genes), nil
}

func biasCourse() stubCourse {
	return stubCourse{
		name: "stub",
		score: func(genes model.Genes) sim.Outcome {
			return sim.Outcome{SurvivalTime: genes[2], Terminated: true}
		},
	}
}

func namedPopulation(genes ...model.Genes) []model.Policy {
	population := make([]model.Policy, 0, len(genes))
	for i, g := range genes {
		population = append(population, model.Policy{ID: "p" + string(rune('0'+i)), Genes: g})
	}
	return population
}

func TestNewTrainerValidation(t *testing.T) {
	valid := TrainerConfig{
		Course:         biasCourse(),
		PopulationSize: 4,
		Generations:    1,
		MutationRate:   0.5,
		Seed:           1,
	}

	if _, err := NewTrainer(valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*TrainerConfig)
	}{
		{"missing course", func(c *TrainerConfig) { c.Course = nil }},
		{"zero population", func(c *TrainerConfig) { c.PopulationSize = 0 }},
		{"negative population", func(c *TrainerConfig) { c.PopulationSize = -3 }},
		{"zero generations", func(c *TrainerConfig) { c.Generations = 0 }},
		{"negative mutation rate", func(c *TrainerConfig) { c.MutationRate = -0.01 }},
		{"mutation rate above one", func(c *TrainerConfig) { c.MutationRate = 1.01 }},
		{"negative elite fraction", func(c *TrainerConfig) { c.EliteFraction = -0.1 }},
		{"elite fraction above one", func(c *TrainerConfig) { c.EliteFraction = 1.5 }},
	}

	for _, tc := range cases {
		cfg := valid
		tc.mutate(&cfg)
		if _, err := NewTrainer(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestEliteCountDerivation(t *testing.T) {
	cases := []struct {
		population int
		fraction   float64
		want       int
	}{
		{10, 0.10, 1},
		{15, 0.10, 2},
		{10, 0, 1},   // default fraction
		{3, 0.10, 1}, // ceil never drops below one
		{10, 1, 10},
	}

	for _, tc := range cases {
		trainer, err := NewTrainer(TrainerConfig{
			Course:         biasCourse(),
			PopulationSize: tc.population,
			Generations:    1,
			EliteFraction:  tc.fraction,
			Seed:           1,
		})
		if err != nil {
			t.Fatalf("population %d fraction %g: %v", tc.population, tc.fraction, err)
		}
		if trainer.EliteCount() != tc.want {
			t.Fatalf("population %d fraction %g: elite count %d want %d",
				tc.population, tc.fraction, trainer.EliteCount(), tc.want)
		}
	}
}

func TestNextGenerationElitismInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ranked := []Scored{
		{Policy: model.Policy{ID: "best", Genes: model.Genes{0.9, -0.3, 0.8}}, Fitness: 8},
		{Policy: model.Policy{ID: "second", Genes: model.Genes{0.1, 0.4, 0.5}}, Fitness: 5},
		{Policy: model.Policy{ID: "third", Genes: model.Genes{-0.2, 0.2, 0.2}}, Fitness: 2},
		{Policy: model.Policy{ID: "worst", Genes: model.Genes{-0.9, -0.9, -0.9}}, Fitness: 1},
	}
	mutator, err := NewFixedScaleMutation(1, 0.2)
	if err != nil {
		t.Fatalf("new mutator: %v", err)
	}

	next, err := NextGeneration(rng, ranked, 2, EliteSelector{}, mutator, 0)
	if err != nil {
		t.Fatalf("next generation: %v", err)
	}
	if len(next) != len(ranked) {
		t.Fatalf("population cardinality changed: %d want %d", len(next), len(ranked))
	}
	for i := 0; i < 2; i++ {
		if next[i].Genes != ranked[i].Policy.Genes {
			t.Fatalf("elite %d not carried gene-for-gene: %v want %v", i, next[i].Genes, ranked[i].Policy.Genes)
		}
		if next[i].ID != ranked[i].Policy.ID {
			t.Fatalf("elite %d lost identity: %s want %s", i, next[i].ID, ranked[i].Policy.ID)
		}
	}
}

func TestNextGenerationZeroRateChildrenEqualEliteParent(t *testing.T) {
	// Population of 10 with one elite and mutation rate 0: exactly 9 children
	// are produced and every one equals its elite parent.
	rng := rand.New(rand.NewSource(5))
	ranked := make([]Scored, 0, 10)
	for i := 0; i < 10; i++ {
		ranked = append(ranked, Scored{
			Policy:  model.Policy{ID: "p" + string(rune('0'+i)), Genes: model.Genes{float64(10-i) / 10, 0, 0}},
			Fitness: float64(10 - i),
		})
	}
	mutator, err := NewFixedScaleMutation(0, 0.2)
	if err != nil {
		t.Fatalf("new mutator: %v", err)
	}

	next, err := NextGeneration(rng, ranked, 1, EliteSelector{}, mutator, 0)
	if err != nil {
		t.Fatalf("next generation: %v", err)
	}
	if len(next) != 10 {
		t.Fatalf("expected 10 policies, got %d", len(next))
	}
	if next[0].Genes != ranked[0].Policy.Genes {
		t.Fatalf("elite changed: %v", next[0].Genes)
	}
	for i := 1; i < len(next); i++ {
		if next[i].Genes != ranked[0].Policy.Genes {
			t.Fatalf("child %d differs from its elite parent at rate 0: %v", i, next[i].Genes)
		}
	}
}

func TestTrainerRunRanksAndTracksBestEver(t *testing.T) {
	trainer, err := NewTrainer(TrainerConfig{
		Course:         biasCourse(),
		PopulationSize: 4,
		Generations:    3,
		MutationRate:   0.5,
		Workers:        2,
		Seed:           9,
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}

	initial := namedPopulation(
		model.Genes{0, 0, 0.1},
		model.Genes{0, 0, 0.9},
		model.Genes{0, 0, 0.4},
		model.Genes{0, 0, 0.2},
	)
	result, err := trainer.Run(context.Background(), initial)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result.BestByGeneration) != 3 {
		t.Fatalf("expected 3 generations, got %d", len(result.BestByGeneration))
	}
	if result.Evaluations != 12 {
		t.Fatalf("expected 12 evaluations, got %d", result.Evaluations)
	}
	if result.BestByGeneration[0] != 0.9 {
		t.Fatalf("first generation best should be 0.9, got %v", result.BestByGeneration[0])
	}
	for i, record := range result.FinalPopulation[1:] {
		if record.Fitness > result.FinalPopulation[i].Fitness {
			t.Fatalf("final population not ranked descending at %d", i+1)
		}
	}
	for _, best := range result.BestByGeneration {
		if best > result.BestEver.Fitness {
			t.Fatalf("best-ever %v below generation best %v", result.BestEver.Fitness, best)
		}
	}
	if len(result.Diagnostics) != 3 {
		t.Fatalf("expected diagnostics per generation, got %d", len(result.Diagnostics))
	}
	if result.Diagnostics[0].BestFitness != 0.9 {
		t.Fatalf("diagnostics best mismatch: %v", result.Diagnostics[0].BestFitness)
	}
}

func TestTrainerStableRankKeepsInputOrderOnTies(t *testing.T) {
	trainer, err := NewTrainer(TrainerConfig{
		Course: stubCourse{
			name:  "ties",
			score: func(model.Genes) sim.Outcome { return sim.Outcome{SurvivalTime: 1, Terminated: true} },
		},
		PopulationSize: 3,
		Generations:    1,
		Seed:           1,
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}

	initial := namedPopulation(model.Genes{1, 0, 0}, model.Genes{2, 0, 0}, model.Genes{3, 0, 0})
	result, err := trainer.Run(context.Background(), initial)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, record := range result.FinalPopulation {
		if record.Policy.ID != initial[i].ID {
			t.Fatalf("tie order not stable: position %d has %s want %s", i, record.Policy.ID, initial[i].ID)
		}
	}
}

func TestTrainerRanksNaNFitnessLast(t *testing.T) {
	poisoned := model.Genes{-1, -1, -1}
	trainer, err := NewTrainer(TrainerConfig{
		Course: stubCourse{
			name: "nan",
			score: func(genes model.Genes) sim.Outcome {
				if genes == poisoned {
					return sim.Outcome{SurvivalTime: math.NaN(), Terminated: true}
				}
				return sim.Outcome{SurvivalTime: genes[2] + 2, Terminated: true}
			},
		},
		PopulationSize: 3,
		Generations:    1,
		Seed:           1,
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}

	result, err := trainer.Run(context.Background(), namedPopulation(
		poisoned,
		model.Genes{0, 0, 0.5},
		model.Genes{0, 0, 0.1},
	))
	if err != nil {
		t.Fatalf("run should not abort on NaN fitness: %v", err)
	}

	last := result.FinalPopulation[len(result.FinalPopulation)-1]
	if last.Policy.Genes != poisoned {
		t.Fatalf("NaN-producing policy should rank last, got %v", last.Policy.Genes)
	}
	if !math.IsInf(last.Fitness, -1) {
		t.Fatalf("expected lowest possible rank fitness, got %v", last.Fitness)
	}
}

func TestTrainerDeterministicAcrossWorkerCounts(t *testing.T) {
	run := func(workers int) RunResult {
		engine, err := sim.NewEngine("classic", sim.DefaultConfig())
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}
		trainer, err := NewTrainer(TrainerConfig{
			Course:         engine,
			PopulationSize: 8,
			Generations:    3,
			MutationRate:   0.5,
			Workers:        workers,
			Seed:           1234,
		})
		if err != nil {
			t.Fatalf("new trainer: %v", err)
		}
		result, err := trainer.Run(context.Background(), trainer.SeedPopulation())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}

	serial := run(1)
	parallel := run(4)

	if len(serial.BestByGeneration) != len(parallel.BestByGeneration) {
		t.Fatalf("generation count mismatch: %d vs %d", len(serial.BestByGeneration), len(parallel.BestByGeneration))
	}
	for i := range serial.BestByGeneration {
		if serial.BestByGeneration[i] != parallel.BestByGeneration[i] {
			t.Fatalf("generation %d diverged across worker counts: %v vs %v",
				i, serial.BestByGeneration[i], parallel.BestByGeneration[i])
		}
	}
	if serial.BestEver.Fitness != parallel.BestEver.Fitness {
		t.Fatalf("best-ever diverged: %v vs %v", serial.BestEver.Fitness, parallel.BestEver.Fitness)
	}
}

func TestTrainerPauseContinueControl(t *testing.T) {
	control := make(chan Command, 4)
	control <- CommandPause

	trainer, err := NewTrainer(TrainerConfig{
		Course:         biasCourse(),
		PopulationSize: 4,
		Generations:    2,
		Workers:        2,
		Seed:           1,
		Control:        control,
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}

	initial := namedPopulation(
		model.Genes{0, 0, 0.1},
		model.Genes{0, 0, 0.2},
		model.Genes{0, 0, 0.3},
		model.Genes{0, 0, 0.4},
	)
	done := make(chan RunResult, 1)
	errs := make(chan error, 1)
	go func() {
		result, runErr := trainer.Run(context.Background(), initial)
		if runErr != nil {
			errs <- runErr
			return
		}
		done <- result
	}()

	select {
	case <-done:
		t.Fatal("expected run to pause before evaluating")
	case runErr := <-errs:
		t.Fatalf("run failed while paused: %v", runErr)
	case <-time.After(30 * time.Millisecond):
	}

	control <- CommandContinue
	select {
	case runErr := <-errs:
		t.Fatalf("run failed after continue: %v", runErr)
	case result := <-done:
		if len(result.BestByGeneration) != 2 {
			t.Fatalf("expected full run after continue, got %d generations", len(result.BestByGeneration))
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for run completion after continue")
	}
}

func TestTrainerStopControl(t *testing.T) {
	control := make(chan Command, 1)
	control <- CommandStop

	trainer, err := NewTrainer(TrainerConfig{
		Course:         biasCourse(),
		PopulationSize: 4,
		Generations:    4,
		Seed:           1,
		Control:        control,
	})
	if err != nil {
		t.Fatalf("new trainer: %v", err)
	}

	result, err := trainer.Run(context.Background(), namedPopulation(
		model.Genes{0, 0, 0.1},
		model.Genes{0, 0, 0.2},
		model.Genes{0, 0, 0.3},
		model.Genes{0, 0, 0.4},
	))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.BestByGeneration) != 0 {
		t.Fatalf("expected immediate stop before evaluation, got %d generations", len(result.BestByGeneration))
	}
}

func TestBestOf(t *testing.T) {
	records := []Scored{
		{Policy: model.Policy{ID: "a"}, Fitness: 1},
		{Policy: model.Policy{ID: "b"}, Fitness: 5},
		{Policy: model.Policy{ID: "c"}, Fitness: 5},
		{Policy: model.Policy{ID: "d"}, Fitness: 2},
	}
	best, err := BestOf(records)
	if err != nil {
		t.Fatalf("best of: %v", err)
	}
	if best.ID != "b" {
		t.Fatalf("expected first of tied maxima, got %s", best.ID)
	}

	if _, err := BestOf(nil); err == nil {
		t.Fatal("expected error for empty records")
	}
}

func TestRandomPopulationWithinInitBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	population := RandomPopulation(rng, 50, "seed")
	if len(population) != 50 {
		t.Fatalf("expected 50 policies, got %d", len(population))
	}
	for _, policy := range population {
		for k, gene := range policy.Genes {
			if gene < InitGeneMin || gene > InitGeneMax {
				t.Fatalf("policy %s gene %d outside init bounds: %v", policy.ID, k, gene)
			}
		}
	}
}
