package evo

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"geodash/internal/model"
	"geodash/internal/sim"
)

// Command gates the trainer between generation boundaries. Pausing suspends
// the run without touching in-progress population state; replacement is
// wholesale, so stopping at a boundary is always consistent.
type Command int

const (
	CommandPause Command = iota + 1
	CommandContinue
	CommandStop
)

// Evaluator abstracts the course so tests can substitute cheap fakes for the
// simulation engine.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, genes model.Genes, rng *rand.Rand) (sim.Outcome, error)
}

type TrainerConfig struct {
	Course         Evaluator
	PopulationSize int
	Generations    int
	MutationRate   float64
	EliteFraction  float64
	Mutator        Mutator
	Selector       Selector
	Workers        int
	Seed           int64
	Control        chan Command
	OnGeneration   func(model.GenerationDiagnostics)
}

type RunResult struct {
	BestByGeneration []float64
	Diagnostics      []model.GenerationDiagnostics
	// FinalPopulation is the last evaluated generation, ranked descending.
	// FinalPopulation[0] is an elite clone of the previous generation's best
	// and has not been re-evaluated after replacement; BestEver carries the
	// best record actually observed across the whole run.
	FinalPopulation []Scored
	BestEver        Scored
	Evaluations     int
}

const defaultEliteFraction = 0.10

// Episode seeding uses a stream separate from selection and mutation so that
// parallel evaluation order can never bias either concern.
const episodeStreamSalt int64 = 0x3c6ef372fe94f82a

type Trainer struct {
	cfg        TrainerConfig
	rng        *rand.Rand
	episodeRng *rand.Rand
	eliteCount int
}

func NewTrainer(cfg TrainerConfig) (*Trainer, error) {
	if cfg.Course == nil {
		return nil, fmt.Errorf("course is required")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return nil, fmt.Errorf("mutation rate must be within [0, 1]: %g", cfg.MutationRate)
	}
	if cfg.EliteFraction == 0 {
		cfg.EliteFraction = defaultEliteFraction
	}
	if cfg.EliteFraction < 0 || cfg.EliteFraction > 1 {
		return nil, fmt.Errorf("elite fraction must be within (0, 1]: %g", cfg.EliteFraction)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Mutator == nil {
		mutator, err := NewAdaptiveScaleMutation(cfg.MutationRate)
		if err != nil {
			return nil, err
		}
		cfg.Mutator = mutator
	}
	if cfg.Selector == nil {
		cfg.Selector = EliteSelector{}
	}

	eliteCount := int(math.Ceil(float64(cfg.PopulationSize) * cfg.EliteFraction))
	if eliteCount < 1 {
		eliteCount = 1
	}
	if eliteCount > cfg.PopulationSize {
		eliteCount = cfg.PopulationSize
	}

	return &Trainer{
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		episodeRng: rand.New(rand.NewSource(cfg.Seed ^ episodeStreamSalt)),
		eliteCount: eliteCount,
	}, nil
}

func (t *Trainer) EliteCount() int {
	return t.eliteCount
}

// SeedPopulation draws the initial random population from the trainer's
// selection stream.
func (t *Trainer) SeedPopulation() []model.Policy {
	return RandomPopulation(t.rng, t.cfg.PopulationSize, "seed")
}

func (t *Trainer) Run(ctx context.Context, initial []model.Policy) (RunResult, error) {
	if len(initial) != t.cfg.PopulationSize {
		return RunResult{}, fmt.Errorf("initial population mismatch: got=%d want=%d", len(initial), t.cfg.PopulationSize)
	}

	population := make([]model.Policy, len(initial))
	copy(population, initial)

	result := RunResult{
		BestByGeneration: make([]float64, 0, t.cfg.Generations),
		Diagnostics:      make([]model.GenerationDiagnostics, 0, t.cfg.Generations),
	}
	haveBest := false

	for gen := 0; gen < t.cfg.Generations; gen++ {
		stop, err := t.applyControl(ctx)
		if err != nil {
			return RunResult{}, err
		}
		if stop {
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		scored, err := t.evaluatePopulation(ctx, population)
		if err != nil {
			return RunResult{}, err
		}
		result.Evaluations += len(scored)

		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].Fitness > scored[j].Fitness
		})

		if !haveBest || scored[0].Fitness > result.BestEver.Fitness {
			result.BestEver = scored[0]
			haveBest = true
		}
		result.BestByGeneration = append(result.BestByGeneration, scored[0].Fitness)

		diagnostics := summarizeGeneration(scored, gen+1, t.eliteCount)
		result.Diagnostics = append(result.Diagnostics, diagnostics)
		if t.cfg.OnGeneration != nil {
			t.cfg.OnGeneration(diagnostics)
		}
		result.FinalPopulation = scored

		population, err = NextGeneration(t.rng, scored, t.eliteCount, t.cfg.Selector, t.cfg.Mutator, gen)
		if err != nil {
			return RunResult{}, err
		}
	}

	return result, nil
}

// NextGeneration builds one replacement generation from a ranked evaluation:
// the top eliteCount records are cloned verbatim; the remaining slots are
// filled with mutated children of selected parents.
func NextGeneration(rng *rand.Rand, ranked []Scored, eliteCount int, selector Selector, mutator Mutator, generation int) ([]model.Policy, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("ranked population is empty")
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return nil, fmt.Errorf("invalid elite count: %d", eliteCount)
	}
	if selector == nil || mutator == nil {
		return nil, fmt.Errorf("selector and mutator are required")
	}

	eliteGenes := make([]model.Genes, 0, eliteCount)
	for i := 0; i < eliteCount; i++ {
		eliteGenes = append(eliteGenes, ranked[i].Policy.Genes)
	}

	next := make([]model.Policy, 0, len(ranked))
	for i := 0; i < eliteCount; i++ {
		next = append(next, ClonePolicy(ranked[i].Policy, ranked[i].Policy.ID))
	}
	for len(next) < len(ranked) {
		parent, err := selector.PickParent(rng, ranked, eliteCount)
		if err != nil {
			return nil, err
		}
		child := mutator.Mutate(rng, parent.Genes, eliteGenes)
		id := fmt.Sprintf("%s-g%d-i%d", parent.ID, generation+1, len(next))
		next = append(next, model.Policy{ID: id, Genes: child})
	}
	return next, nil
}

func (t *Trainer) evaluatePopulation(ctx context.Context, population []model.Policy) ([]Scored, error) {
	// Seeds are drawn sequentially before dispatch so the evaluation is
	// deterministic regardless of worker scheduling.
	seeds := make([]int64, len(population))
	for i := range seeds {
		seeds[i] = t.episodeRng.Int63()
	}

	type job struct {
		idx    int
		policy model.Policy
	}
	type result struct {
		idx    int
		scored Scored
		err    error
	}

	jobs := make(chan job)
	results := make(chan result, len(population))

	workerCount := t.cfg.Workers
	if workerCount > len(population) {
		workerCount = len(population)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}

				episodeRng := rand.New(rand.NewSource(seeds[j.idx]))
				outcome, err := t.cfg.Course.Evaluate(ctx, j.policy.Genes, episodeRng)
				if err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				results <- result{idx: j.idx, scored: Scored{
					Policy:     j.policy,
					Fitness:    sanitizeFitness(outcome.SurvivalTime),
					Terminated: outcome.Terminated,
				}}
			}
		}()
	}

	for i := range population {
		jobs <- job{idx: i, policy: population[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	scored := make([]Scored, len(population))
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		scored[res.idx] = res.scored
	}
	return scored, nil
}

// sanitizeFitness pushes non-finite fitness to the lowest possible rank
// instead of aborting the generation.
func sanitizeFitness(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return math.Inf(-1)
	}
	return f
}

func summarizeGeneration(scored []Scored, generation, eliteCount int) model.GenerationDiagnostics {
	if len(scored) == 0 {
		return model.GenerationDiagnostics{Generation: generation}
	}

	total := 0.0
	minFitness := scored[0].Fitness
	timeCapCount := 0
	for _, record := range scored {
		total += record.Fitness
		if record.Fitness < minFitness {
			minFitness = record.Fitness
		}
		if !record.Terminated {
			timeCapCount++
		}
	}

	eliteGenes := make([]model.Genes, 0, eliteCount)
	for i := 0; i < eliteCount && i < len(scored); i++ {
		eliteGenes = append(eliteGenes, scored[i].Policy.Genes)
	}

	return model.GenerationDiagnostics{
		Generation:   generation,
		BestFitness:  scored[0].Fitness,
		MeanFitness:  total / float64(len(scored)),
		MinFitness:   minFitness,
		TimeCapCount: timeCapCount,
		EliteSpread:  EliteSpread(eliteGenes),
	}
}

func (t *Trainer) applyControl(ctx context.Context) (bool, error) {
	if t.cfg.Control == nil {
		return false, nil
	}
	paused := false
	for {
		if paused {
			select {
			case cmd := <-t.cfg.Control:
				switch cmd {
				case CommandStop:
					return true, nil
				case CommandContinue:
					paused = false
				}
			case <-ctx.Done():
				return false, ctx.Err()
			}
			continue
		}
		select {
		case cmd := <-t.cfg.Control:
			switch cmd {
			case CommandStop:
				return true, nil
			case CommandPause:
				paused = true
			}
		default:
			return false, nil
		}
	}
}
