package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"geodash/internal/platform"
	"geodash/internal/sim"
	"geodash/internal/stats"
	"geodash/internal/storage"
	geoapi "geodash/pkg/geodash"
)

const artifactsDir = "runs"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "simulate":
		return runSimulate(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "top":
		return runTop(ctx, args[1:])
	case "courses":
		return runCourses(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:])
	case "profile":
		return runProfileCmd(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "geodash.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	arena := platform.NewArena(platform.Config{Store: store})
	if err := arena.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s courses=%d\n", *storeKind, len(arena.Courses()))
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "geodash.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	arena := platform.NewArena(platform.Config{Store: store})
	if err := arena.Reset(ctx); err != nil {
		return err
	}

	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	course := fs.String("course", "classic", "course name or alias")
	population := fs.Int("population", 0, "population size")
	generations := fs.Int("generations", 0, "generation count")
	mutationRate := fs.Float64("mutation-rate", 0, "per-gene mutation probability")
	eliteFraction := fs.Float64("elite-fraction", 0, "elite fraction of the population")
	mutation := fs.String("mutation", "", "mutation strategy: adaptive|fixed")
	selection := fs.String("selection", "", "selection strategy: elite|tournament")
	seed := fs.Int64("seed", 0, "deterministic seed")
	workers := fs.Int("workers", 0, "parallel episode workers")
	runID := fs.String("run-id", "", "run id (generated when empty)")
	profile := fs.String("profile", "", "training profile: quick|standard|thorough or a name from the profiles file")
	profilesFile := fs.String("profiles-file", "", "YAML profiles file overriding the built-ins")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "geodash.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := geoapi.RunRequest{
		RunID:         *runID,
		Course:        *course,
		Population:    *population,
		Generations:   *generations,
		MutationRate:  *mutationRate,
		EliteFraction: *eliteFraction,
		Mutation:      *mutation,
		Selection:     *selection,
		Seed:          *seed,
		Workers:       *workers,
	}
	if *profile != "" {
		preset, err := loadProfile(*profilesFile, *profile)
		if err != nil {
			return err
		}
		req = applyProfile(req, preset)
	}

	client, err := geoapi.New(geoapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Train(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(summary)
	}
	fmt.Printf("run_id=%s course=%s generations=%d final_best=%.4f best_ever=%.4f solved=%t evaluations=%d\n",
		summary.RunID,
		summary.Course,
		len(summary.BestByGeneration),
		summary.FinalBestFitness,
		summary.BestEverFitness,
		summary.Solved,
		summary.Evaluations,
	)
	fmt.Printf("best_genes=[%.4f %.4f %.4f]\n", summary.BestGenes[0], summary.BestGenes[1], summary.BestGenes[2])
	fmt.Printf("artifacts=%s\n", summary.ArtifactsDir)
	return nil
}

func runSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	course := fs.String("course", "classic", "course name or alias")
	w1 := fs.Float64("w1", 0, "distance weight")
	w2 := fs.Float64("w2", 0, "height weight")
	bias := fs.Float64("bias", 0, "jump bias")
	seed := fs.Int64("seed", 0, "episode seed")
	jsonOut := fs.Bool("json", false, "emit episode summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := geoapi.New(geoapi.Options{
		StoreKind:    "memory",
		ArtifactsDir: artifactsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Simulate(ctx, geoapi.SimulateRequest{
		Course: *course,
		Genes:  [3]float64{*w1, *w2, *bias},
		Seed:   *seed,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(summary)
	}
	fmt.Printf("course=%s seed=%d survival=%.4f terminated=%t steps=%d obstacles=%d jumps=%d\n",
		summary.Course,
		summary.Seed,
		summary.SurvivalTime,
		summary.Terminated,
		summary.Steps,
		summary.ObstaclesSpawned,
		summary.JumpsTriggered,
	)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := geoapi.New(geoapi.Options{StoreKind: "memory", ArtifactsDir: artifactsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, geoapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		return printJSON(runs)
	}
	for _, item := range runs {
		fmt.Printf("run_id=%s created=%s course=%s seed=%d population=%d generations=%d final_best=%.4f solved=%t\n",
			item.RunID,
			item.CreatedAtUTC,
			item.Course,
			item.Seed,
			item.Population,
			item.Generations,
			item.FinalBestFitness,
			item.Solved,
		)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from the run index")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "geodash.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := geoapi.New(geoapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, geoapi.FitnessHistoryRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no fitness history")
		return nil
	}

	if *jsonOut {
		return printJSON(history)
	}
	for i, best := range history {
		fmt.Printf("generation=%d best=%.4f\n", i+1, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from the run index")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "geodash.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := geoapi.New(geoapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, geoapi.DiagnosticsRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(diagnostics) == 0 {
		fmt.Println("no diagnostics")
		return nil
	}

	if *jsonOut {
		return printJSON(diagnostics)
	}
	for _, d := range diagnostics {
		fmt.Printf("generation=%d best=%.4f mean=%.4f min=%.4f time_cap=%d elite_spread=[%.4f %.4f %.4f]\n",
			d.Generation,
			d.BestFitness,
			d.MeanFitness,
			d.MinFitness,
			d.TimeCapCount,
			d.EliteSpread[0],
			d.EliteSpread[1],
			d.EliteSpread[2],
		)
	}
	return nil
}

func runTop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from the run index")
	limit := fs.Int("limit", 5, "max policies to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit top policies as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "geodash.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := geoapi.New(geoapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	top, err := client.TopPolicies(ctx, geoapi.TopPoliciesRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(top) == 0 {
		fmt.Println("no top policies")
		return nil
	}

	if *jsonOut {
		return printJSON(top)
	}
	for _, record := range top {
		fmt.Printf("rank=%d fitness=%.4f policy=%s genes=[%.4f %.4f %.4f]\n",
			record.Rank,
			record.Fitness,
			record.Policy.ID,
			record.Policy.Genes[0],
			record.Policy.Genes[1],
			record.Policy.Genes[2],
		)
	}
	return nil
}

func runCourses(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("courses", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit courses as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "geodash.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := geoapi.New(geoapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	courses, err := client.Courses(ctx)
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(courses)
	}
	for _, course := range courses {
		fmt.Printf("course=%s best=%.4f description=%q\n", course.Name, course.BestFitness, course.Description)
	}
	return nil
}

func runReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	course := fs.String("course", "classic", "course name or alias")
	population := fs.Int("population", 40, "population size")
	generations := fs.Int("generations", 25, "generation count")
	mutationRate := fs.Float64("mutation-rate", 0.3, "per-gene mutation probability")
	seeds := fs.Int("seeds", 5, "number of seeds to aggregate")
	baseSeed := fs.Int64("base-seed", 1, "first seed; subsequent runs increment by one")
	workers := fs.Int("workers", 4, "parallel episode workers")
	id := fs.String("id", "", "experiment id (generated when empty)")
	jsonOut := fs.Bool("json", false, "emit experiment report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *seeds <= 0 {
		return errors.New("seeds must be > 0")
	}

	client, err := geoapi.New(geoapi.Options{StoreKind: "memory", ArtifactsDir: artifactsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	experimentID := *id
	if experimentID == "" {
		experimentID = fmt.Sprintf("%s-p%d-g%d-%d", strings.ReplaceAll(*course, " ", "_"), *population, *generations, time.Now().UTC().Unix())
	}

	started := time.Now().UTC()
	outcomes := make([]stats.SeedOutcome, 0, *seeds)
	solveThreshold := 0.0
	canonicalCourse := *course
	for i := 0; i < *seeds; i++ {
		seed := *baseSeed + int64(i)
		summary, err := client.Train(ctx, geoapi.RunRequest{
			Course:       *course,
			Population:   *population,
			Generations:  *generations,
			MutationRate: *mutationRate,
			Seed:         seed,
			Workers:      *workers,
		})
		if err != nil {
			return err
		}
		outcomes = append(outcomes, stats.SeedOutcome{
			Seed:             seed,
			RunID:            summary.RunID,
			FinalBestFitness: summary.BestEverFitness,
		})
		canonicalCourse = summary.Course
		if solveThreshold == 0 {
			threshold, err := courseSolveThreshold(summary.Course)
			if err != nil {
				return err
			}
			solveThreshold = threshold
		}
	}

	report, err := stats.BuildExperimentReport(experimentID, canonicalCourse, *population, *generations, solveThreshold, outcomes)
	if err != nil {
		return err
	}
	report.StartedAtUTC = started.Format(time.RFC3339Nano)
	report.CompletedAtUTC = time.Now().UTC().Format(time.RFC3339Nano)

	path, err := stats.WriteExperimentReport(artifactsDir, report)
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(report)
	}
	fmt.Printf("experiment=%s course=%s seeds=%d mean_best=%.4f std_best=%.4f min_best=%.4f max_best=%.4f solve_rate=%.2f\n",
		report.ID,
		report.Course,
		len(report.Outcomes),
		report.FinalBestMean,
		report.FinalBestStd,
		report.FinalBestMin,
		report.FinalBestMax,
		report.SolveRate,
	)
	fmt.Printf("report=%s\n", path)
	return nil
}

func runProfileCmd(_ context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("profile requires a subcommand: list|show")
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("profile list", flag.ContinueOnError)
		profilesFile := fs.String("profiles-file", "", "YAML profiles file overriding the built-ins")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		profiles, err := listProfiles(*profilesFile)
		if err != nil {
			return err
		}
		for _, profile := range profiles {
			fmt.Printf("profile=%s population=%d generations=%d mutation_rate=%.2f mutation=%s selection=%s\n",
				profile.Name,
				profile.Population,
				profile.Generations,
				profile.MutationRate,
				profile.Mutation,
				profile.Selection,
			)
		}
		return nil
	case "show":
		fs := flag.NewFlagSet("profile show", flag.ContinueOnError)
		name := fs.String("name", "", "profile name")
		profilesFile := fs.String("profiles-file", "", "YAML profiles file overriding the built-ins")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *name == "" {
			return errors.New("profile show requires --name")
		}
		profile, err := loadProfile(*profilesFile, *name)
		if err != nil {
			return err
		}
		return printJSON(profile)
	default:
		return fmt.Errorf("unknown profile subcommand: %s", args[0])
	}
}

// courseSolveThreshold is the survival time a course counts as solved at:
// its full episode duration cap.
func courseSolveThreshold(course string) (float64, error) {
	canonical, err := sim.NormalizeCourseName(course)
	if err != nil {
		return 0, err
	}
	for _, spec := range sim.BuiltinCourses() {
		if spec.Name == canonical {
			return spec.Config.MaxDuration, nil
		}
	}
	return 0, fmt.Errorf("course not registered: %s", canonical)
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: geodashctl <init|reset|run|simulate|runs|fitness|diagnostics|top|courses|report|profile> [flags]", msg)
}
