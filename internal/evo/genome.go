package evo

import (
	"fmt"
	"math/rand"

	"geodash/internal/model"
)

const (
	// GeneMin and GeneMax bound every gene after mutation. Unbounded weights
	// saturate the jump decision and make later mutations meaningless.
	GeneMin = -2.0
	GeneMax = 2.0

	// Fresh policies start well inside the clamp bounds.
	InitGeneMin = -1.0
	InitGeneMax = 1.0

	// MinAdaptiveSpread floors the adaptive mutation scale so a converged
	// elite set cannot collapse the noise to near zero.
	MinAdaptiveSpread = 0.1

	// DefaultMutationSigma is the fixed-scale Gaussian noise width.
	DefaultMutationSigma = 0.2
)

// NewRandomPolicy draws a fresh policy uniformly in [InitGeneMin, InitGeneMax].
func NewRandomPolicy(rng *rand.Rand, id string) model.Policy {
	var genes model.Genes
	for k := range genes {
		genes[k] = InitGeneMin + rng.Float64()*(InitGeneMax-InitGeneMin)
	}
	return model.Policy{ID: id, Genes: genes}
}

// RandomPopulation seeds an initial generation of the given cardinality.
func RandomPopulation(rng *rand.Rand, size int, idPrefix string) []model.Policy {
	population := make([]model.Policy, 0, size)
	for i := 0; i < size; i++ {
		population = append(population, NewRandomPolicy(rng, fmt.Sprintf("%s-%d", idPrefix, i)))
	}
	return population
}

// ClonePolicy copies a policy gene-for-gene under a new ID.
func ClonePolicy(p model.Policy, id string) model.Policy {
	return model.Policy{ID: id, Genes: p.Genes}
}

func clampGene(v float64) float64 {
	if v < GeneMin {
		return GeneMin
	}
	if v > GeneMax {
		return GeneMax
	}
	return v
}
