package main

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	geoapi "geodash/pkg/geodash"
)

// Profile bundles the training knobs behind a single --profile flag.
// Explicit flags on the command line still win over profile values.
type Profile struct {
	Name          string  `yaml:"name" json:"name"`
	Course        string  `yaml:"course,omitempty" json:"course,omitempty"`
	Population    int     `yaml:"population" json:"population"`
	Generations   int     `yaml:"generations" json:"generations"`
	MutationRate  float64 `yaml:"mutation_rate" json:"mutation_rate"`
	EliteFraction float64 `yaml:"elite_fraction,omitempty" json:"elite_fraction,omitempty"`
	Mutation      string  `yaml:"mutation,omitempty" json:"mutation,omitempty"`
	Selection     string  `yaml:"selection,omitempty" json:"selection,omitempty"`
	Workers       int     `yaml:"workers,omitempty" json:"workers,omitempty"`
}

type profilesFile struct {
	Profiles []Profile `yaml:"profiles"`
}

func builtinProfiles() []Profile {
	return []Profile{
		{Name: "quick", Population: 20, Generations: 10, MutationRate: 0.3, Mutation: "adaptive", Selection: "elite", Workers: 2},
		{Name: "standard", Population: 40, Generations: 25, MutationRate: 0.3, Mutation: "adaptive", Selection: "elite", Workers: 4},
		{Name: "thorough", Population: 80, Generations: 60, MutationRate: 0.25, Mutation: "adaptive", Selection: "tournament", Workers: 4},
	}
}

func listProfiles(path string) ([]Profile, error) {
	byName := make(map[string]Profile)
	for _, profile := range builtinProfiles() {
		byName[profile.Name] = profile
	}

	if path != "" {
		loaded, err := readProfilesFile(path)
		if err != nil {
			return nil, err
		}
		for _, profile := range loaded {
			byName[profile.Name] = profile
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Profile, 0, len(names))
	for _, name := range names {
		out = append(out, byName[name])
	}
	return out, nil
}

func loadProfile(path, name string) (Profile, error) {
	if name == "" {
		return Profile{}, fmt.Errorf("profile name is required")
	}

	profiles, err := listProfiles(path)
	if err != nil {
		return Profile{}, err
	}
	for _, profile := range profiles {
		if profile.Name == name {
			return profile, nil
		}
	}
	return Profile{}, fmt.Errorf("unknown profile: %s", name)
}

func readProfilesFile(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse profiles file %s: %w", path, err)
	}
	for i, profile := range file.Profiles {
		if profile.Name == "" {
			return nil, fmt.Errorf("profile name is required at index %d in %s", i, path)
		}
	}
	return file.Profiles, nil
}

func applyProfile(req geoapi.RunRequest, profile Profile) geoapi.RunRequest {
	if req.Course == "" || req.Course == "classic" {
		if profile.Course != "" {
			req.Course = profile.Course
		}
	}
	if req.Population == 0 {
		req.Population = profile.Population
	}
	if req.Generations == 0 {
		req.Generations = profile.Generations
	}
	if req.MutationRate == 0 {
		req.MutationRate = profile.MutationRate
	}
	if req.EliteFraction == 0 {
		req.EliteFraction = profile.EliteFraction
	}
	if req.Mutation == "" {
		req.Mutation = profile.Mutation
	}
	if req.Selection == "" {
		req.Selection = profile.Selection
	}
	if req.Workers == 0 {
		req.Workers = profile.Workers
	}
	return req
}
