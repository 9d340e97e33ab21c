package activation

import (
	"maps"

	"github.com/theapemachine/recall/pkg/memory"
)

// DefaultLabel is the profile key used for labels a profile does not list.
const DefaultLabel = "default"

// Profile maps node labels onto attention multipliers.
type Profile map[string]float64

// Weight returns the multiplier for label, falling back to the profile's
// default entry and then to 1.
func (profile Profile) Weight(label string) float64 {
	if w, ok := profile[label]; ok {
		return w
	}

	if w, ok := profile[DefaultLabel]; ok {
		return w
	}

	return 1.0
}

// DefaultProfiles holds the built-in attention profile of every task type.
var DefaultProfiles = map[memory.TaskType]Profile{
	memory.TaskTechnicalCoding: {
		"Technology": 1.5,
		"Concept":    1.2,
		"Problem":    1.3,
		DefaultLabel: 0.8,
	},
	memory.TaskEmotionalCounseling: {
		"Person":     1.5,
		"Goal":       1.3,
		"Activity":   1.2,
		DefaultLabel: 0.7,
	},
	memory.TaskCreativeWriting: {
		"Concept":    1.4,
		"Activity":   1.2,
		DefaultLabel: 1.0,
	},
	memory.TaskEducational: {
		"Concept":    1.5,
		"Technology": 1.2,
		DefaultLabel: 1.0,
	},
	memory.TaskGeneralQA: {
		DefaultLabel: 1.0,
	},
}

/*
buildProfiles copies the defaults and lays configured overrides on top, key by
key, so an override only needs to name the labels it changes.
*/
func buildProfiles(overrides map[string]map[string]float64) map[memory.TaskType]Profile {
	out := make(map[memory.TaskType]Profile, len(DefaultProfiles))

	for task, profile := range DefaultProfiles {
		out[task] = maps.Clone(profile)
	}

	for name, weights := range overrides {
		task := memory.ParseTaskType(name)

		if string(task) != name {
			continue
		}

		if out[task] == nil {
			out[task] = Profile{}
		}

		maps.Copy(out[task], weights)
	}

	return out
}
