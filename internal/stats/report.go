package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

const experimentsDir = "experiments"

// SeedOutcome is one training run inside a multi-seed experiment.
type SeedOutcome struct {
	Seed             int64   `json:"seed"`
	RunID            string  `json:"run_id"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	Solved           bool    `json:"solved"`
}

// ExperimentReport aggregates repeated runs of one configuration across
// seeds. SolveRate is the fraction of seeds whose best policy survived
// the full episode cap.
type ExperimentReport struct {
	ID             string        `json:"id"`
	Course         string        `json:"course"`
	PopulationSize int           `json:"population_size"`
	Generations    int           `json:"generations"`
	SolveThreshold float64       `json:"solve_threshold"`
	Outcomes       []SeedOutcome `json:"outcomes"`
	FinalBestMean  float64       `json:"final_best_mean"`
	FinalBestStd   float64       `json:"final_best_std"`
	FinalBestMax   float64       `json:"final_best_max"`
	FinalBestMin   float64       `json:"final_best_min"`
	SolveRate      float64       `json:"solve_rate"`
	StartedAtUTC   string        `json:"started_at_utc,omitempty"`
	CompletedAtUTC string        `json:"completed_at_utc,omitempty"`
}

func BuildExperimentReport(id, course string, populationSize, generations int, solveThreshold float64, outcomes []SeedOutcome) (ExperimentReport, error) {
	if id == "" {
		return ExperimentReport{}, fmt.Errorf("experiment id is required")
	}
	if len(outcomes) == 0 {
		return ExperimentReport{}, fmt.Errorf("experiment requires at least one seed outcome")
	}

	finals := make([]float64, 0, len(outcomes))
	solved := 0
	for i := range outcomes {
		outcomes[i].Solved = outcomes[i].FinalBestFitness >= solveThreshold
		if outcomes[i].Solved {
			solved++
		}
		finals = append(finals, outcomes[i].FinalBestFitness)
	}
	mean, std, max, min := SeriesStats(finals)

	return ExperimentReport{
		ID:             id,
		Course:         course,
		PopulationSize: populationSize,
		Generations:    generations,
		SolveThreshold: solveThreshold,
		Outcomes:       outcomes,
		FinalBestMean:  mean,
		FinalBestStd:   std,
		FinalBestMax:   max,
		FinalBestMin:   min,
		SolveRate:      float64(solved) / float64(len(outcomes)),
	}, nil
}

func WriteExperimentReport(baseDir string, report ExperimentReport) (string, error) {
	if report.ID == "" {
		return "", fmt.Errorf("experiment id is required")
	}
	path := experimentReportPath(baseDir, report.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(path, report); err != nil {
		return "", err
	}
	return path, nil
}

func ReadExperimentReport(baseDir, id string) (ExperimentReport, bool, error) {
	if id == "" {
		return ExperimentReport{}, false, fmt.Errorf("experiment id is required")
	}
	data, err := os.ReadFile(experimentReportPath(baseDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return ExperimentReport{}, false, nil
		}
		return ExperimentReport{}, false, err
	}
	var report ExperimentReport
	if err := json.Unmarshal(data, &report); err != nil {
		return ExperimentReport{}, false, err
	}
	return report, true, nil
}

func ListExperimentReports(baseDir string) ([]ExperimentReport, error) {
	root := filepath.Join(baseDir, experimentsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []ExperimentReport{}, nil
		}
		return nil, err
	}

	reports := make([]ExperimentReport, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		report, ok, err := ReadExperimentReport(baseDir, entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].StartedAtUTC == reports[j].StartedAtUTC {
			return reports[i].ID < reports[j].ID
		}
		return reports[i].StartedAtUTC > reports[j].StartedAtUTC
	})
	return reports, nil
}

func SeriesStats(values []float64) (mean, std, max, min float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	min = values[0]
	max = values[0]
	total := 0.0
	for _, value := range values {
		total += value
		if value > max {
			max = value
		}
		if value < min {
			min = value
		}
	}
	mean = total / float64(len(values))
	sumSq := 0.0
	for _, value := range values {
		diff := mean - value
		sumSq += diff * diff
	}
	std = math.Sqrt(sumSq / float64(len(values)))
	return mean, std, max, min
}

func experimentReportPath(baseDir, id string) string {
	return filepath.Join(baseDir, experimentsDir, id, "report.json")
}
