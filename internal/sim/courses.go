package sim

import (
	"fmt"
	"strings"
)

// CourseSpec pairs a registered course name with its configuration.
type CourseSpec struct {
	Name        string
	Description string
	Config      Config
}

// BuiltinCourses returns the course presets shipped with the engine. The
// classic course carries the reference constants; the variants only change
// parameters the policy normalization is allowed to see.
func BuiltinCourses() []CourseSpec {
	classic := DefaultConfig()

	narrow := DefaultConfig()
	narrow.FieldWidth = 600
	narrow.SpawnIntervalMin = 0.7
	narrow.SpawnIntervalMax = 2.0

	fast := DefaultConfig()
	fast.ObstacleSpeed = 340
	fast.SpawnIntervalMin = 0.6
	fast.SpawnIntervalMax = 1.8

	return []CourseSpec{
		{Name: "classic", Description: "reference playfield and obstacle timing", Config: classic},
		{Name: "narrow", Description: "shorter playfield with denser spawns", Config: narrow},
		{Name: "fast", Description: "faster obstacles with tighter spawn windows", Config: fast},
	}
}

// NormalizeCourseName maps user-facing aliases onto canonical course names.
func NormalizeCourseName(name string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", "classic", "default", "reference":
		return "classic", nil
	case "narrow", "dense":
		return "narrow", nil
	case "fast", "speed", "speedy":
		return "fast", nil
	default:
		return "", fmt.Errorf("unknown course: %s", name)
	}
}
