package evo

import (
	"fmt"
	"math/rand"

	"geodash/internal/model"
)

// Mutator produces a child gene vector from a parent. The elite gene set of
// the current generation is passed so scale policies may derive their noise
// magnitude from it; implementations must clamp every gene to
// [GeneMin, GeneMax].
type Mutator interface {
	Name() string
	Mutate(rng *rand.Rand, parent model.Genes, elite []model.Genes) model.Genes
}

// FixedScaleMutation perturbs each gene with probability Rate using Gaussian
// noise of constant standard deviation.
type FixedScaleMutation struct {
	Rate  float64
	Sigma float64
}

func NewFixedScaleMutation(rate, sigma float64) (*FixedScaleMutation, error) {
	if rate < 0 || rate > 1 {
		return nil, fmt.Errorf("mutation rate must be within [0, 1]: %g", rate)
	}
	if sigma <= 0 {
		return nil, fmt.Errorf("mutation sigma must be positive: %g", sigma)
	}
	return &FixedScaleMutation{Rate: rate, Sigma: sigma}, nil
}

func (m *FixedScaleMutation) Name() string {
	return "fixed_scale"
}

func (m *FixedScaleMutation) Mutate(rng *rand.Rand, parent model.Genes, _ []model.Genes) model.Genes {
	child := parent
	for k := range child {
		if rng.Float64() < m.Rate {
			child[k] = clampGene(child[k] + rng.NormFloat64()*m.Sigma)
		}
	}
	return child
}

// AdaptiveScaleMutation perturbs each gene with probability Rate using
// Gaussian noise whose per-gene standard deviation is the elite set's range
// for that gene, floored at MinSpread.
type AdaptiveScaleMutation struct {
	Rate      float64
	MinSpread float64
}

func NewAdaptiveScaleMutation(rate float64) (*AdaptiveScaleMutation, error) {
	if rate < 0 || rate > 1 {
		return nil, fmt.Errorf("mutation rate must be within [0, 1]: %g", rate)
	}
	return &AdaptiveScaleMutation{Rate: rate, MinSpread: MinAdaptiveSpread}, nil
}

func (m *AdaptiveScaleMutation) Name() string {
	return "adaptive_scale"
}

func (m *AdaptiveScaleMutation) Mutate(rng *rand.Rand, parent model.Genes, elite []model.Genes) model.Genes {
	spread := EliteSpread(elite)
	child := parent
	for k := range child {
		if rng.Float64() < m.Rate {
			sigma := spread[k]
			if sigma < m.MinSpread {
				sigma = m.MinSpread
			}
			child[k] = clampGene(child[k] + rng.NormFloat64()*sigma)
		}
	}
	return child
}

// EliteSpread computes the per-gene range across the elite set. An empty
// elite set yields zero spread, which adaptive mutation floors upward.
func EliteSpread(elite []model.Genes) model.Genes {
	var spread model.Genes
	if len(elite) == 0 {
		return spread
	}
	for k := 0; k < model.GeneCount; k++ {
		lo, hi := elite[0][k], elite[0][k]
		for _, genes := range elite[1:] {
			if genes[k] < lo {
				lo = genes[k]
			}
			if genes[k] > hi {
				hi = genes[k]
			}
		}
		spread[k] = hi - lo
	}
	return spread
}
