package storage

import (
	"context"

	"geodash/internal/model"
)

// Store persists run artifacts: population snapshots, fitness histories,
// generation diagnostics, top-policy records and per-course best-fitness
// summaries. Training never reads a stored policy back to seed a later run.
type Store interface {
	Init(ctx context.Context) error
	SavePopulation(ctx context.Context, population model.Population) error
	GetPopulation(ctx context.Context, id string) (model.Population, bool, error)
	SaveCourseSummary(ctx context.Context, summary model.CourseSummary) error
	GetCourseSummary(ctx context.Context, name string) (model.CourseSummary, bool, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveTopPolicies(ctx context.Context, runID string, top []model.TopPolicyRecord) error
	GetTopPolicies(ctx context.Context, runID string) ([]model.TopPolicyRecord, bool, error)
}

// Resetter is implemented by stores that can drop all persisted state.
type Resetter interface {
	Reset(ctx context.Context) error
}
