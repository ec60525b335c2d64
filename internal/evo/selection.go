package evo

import (
	"fmt"
	"math/rand"

	"geodash/internal/model"
)

// Scored pairs a policy with its episode outcome.
type Scored struct {
	Policy     model.Policy
	Fitness    float64
	Terminated bool
}

// Selector chooses parents from ranked records for replication.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []Scored, eliteCount int) (model.Policy, error)
}

// EliteSelector picks uniformly from the top elite set.
type EliteSelector struct{}

func (EliteSelector) Name() string {
	return "elite"
}

func (EliteSelector) PickParent(rng *rand.Rand, ranked []Scored, eliteCount int) (model.Policy, error) {
	if rng == nil {
		return model.Policy{}, fmt.Errorf("random source is required")
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return model.Policy{}, fmt.Errorf("invalid elite count: %d", eliteCount)
	}
	return ranked[rng.Intn(eliteCount)].Policy, nil
}

// TournamentSelector samples candidates from an extended pool and picks the
// best fitness among them.
type TournamentSelector struct {
	PoolSize       int
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []Scored, eliteCount int) (model.Policy, error) {
	if rng == nil {
		return model.Policy{}, fmt.Errorf("random source is required")
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return model.Policy{}, fmt.Errorf("invalid elite count: %d", eliteCount)
	}

	poolSize := s.PoolSize
	if poolSize <= 0 {
		poolSize = eliteCount * 2
	}
	if poolSize < eliteCount {
		poolSize = eliteCount
	}
	if poolSize > len(ranked) {
		poolSize = len(ranked)
	}

	tournamentSize := s.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}
	if tournamentSize > poolSize {
		tournamentSize = poolSize
	}

	best := ranked[rng.Intn(poolSize)]
	for i := 1; i < tournamentSize; i++ {
		candidate := ranked[rng.Intn(poolSize)]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best.Policy, nil
}

// BestOf returns the fittest policy among records. Ties keep the earliest
// record.
func BestOf(records []Scored) (model.Policy, error) {
	if len(records) == 0 {
		return model.Policy{}, fmt.Errorf("no records to select from")
	}
	best := records[0]
	for _, record := range records[1:] {
		if record.Fitness > best.Fitness {
			best = record
		}
	}
	return best.Policy, nil
}
