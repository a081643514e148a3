package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Speed is the coarse latency class of a model.
type Speed int

const (
	SpeedUnknown Speed = iota
	SpeedVeryFast
	SpeedFast
	SpeedModerate
	SpeedSlow
)

// ParseSpeed maps a registry speed string to a Speed. Unrecognized values
// map to SpeedUnknown.
func ParseSpeed(s string) Speed {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "very-fast", "very_fast", "veryfast":
		return SpeedVeryFast
	case "fast":
		return SpeedFast
	case "moderate":
		return SpeedModerate
	case "slow":
		return SpeedSlow
	default:
		return SpeedUnknown
	}
}

func (s Speed) String() string {
	switch s {
	case SpeedVeryFast:
		return "very-fast"
	case SpeedFast:
		return "fast"
	case SpeedModerate:
		return "moderate"
	case SpeedSlow:
		return "slow"
	default:
		return "unknown"
	}
}

// IsSlow reports whether the speed class warrants a faster model for batches.
func (s Speed) IsSlow() bool {
	return s == SpeedModerate || s == SpeedSlow
}

// IsFast reports whether the speed class is fast or very-fast.
func (s Speed) IsFast() bool {
	return s == SpeedFast || s == SpeedVeryFast
}

// Model describes one registry entry.
type Model struct {
	Name       string  `json:"name"`
	SizeGB     float64 `json:"size_gb"`
	Parameters string  `json:"parameters"`
	SpeedClass string  `json:"speed"`
}

// Speed returns the parsed speed class.
func (m Model) Speed() Speed {
	return ParseSpeed(m.SpeedClass)
}

// Registry is the parsed registry document. It is never mutated after Parse.
type Registry struct {
	Models       []Model           `json:"models"`
	TaskMappings map[string]string `json:"task_mappings"`
	DefaultModel string            `json:"default_model"`

	byName map[string]int
}

// document mirrors the JSON shape with pointer fields so required keys can be
// told apart from empty values.
type document struct {
	Models       []Model            `json:"models"`
	TaskMappings *map[string]string `json:"task_mappings"`
	DefaultModel *string            `json:"default_model"`
}

// ErrMissingField is returned when a required registry key is absent.
var ErrMissingField = errors.New("missing required field")

// Parse decodes a registry document.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing registry: %w", err)
	}
	if doc.TaskMappings == nil {
		return nil, fmt.Errorf("parsing registry: %w: task_mappings", ErrMissingField)
	}
	if doc.DefaultModel == nil {
		return nil, fmt.Errorf("parsing registry: %w: default_model", ErrMissingField)
	}
	return New(doc.Models, *doc.TaskMappings, *doc.DefaultModel), nil
}

// New builds a Registry from its parts. The first descriptor wins when names
// repeat.
func New(models []Model, tasks map[string]string, defaultModel string) *Registry {
	r := &Registry{
		Models:       append([]Model(nil), models...),
		TaskMappings: make(map[string]string, len(tasks)),
		DefaultModel: defaultModel,
		byName:       make(map[string]int, len(models)),
	}
	for k, v := range tasks {
		r.TaskMappings[k] = v
	}
	for i, m := range r.Models {
		if _, dup := r.byName[m.Name]; !dup {
			r.byName[m.Name] = i
		}
	}
	return r
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (Model, bool) {
	if r == nil {
		return Model{}, false
	}
	if r.byName == nil {
		for _, m := range r.Models {
			if m.Name == name {
				return m, true
			}
		}
		return Model{}, false
	}
	i, ok := r.byName[name]
	if !ok {
		return Model{}, false
	}
	return r.Models[i], true
}

// SpeedOf returns the speed class of name, or SpeedUnknown when the model is
// not described.
func (r *Registry) SpeedOf(name string) Speed {
	m, ok := r.Lookup(name)
	if !ok {
		return SpeedUnknown
	}
	return m.Speed()
}

// Task returns the model mapped to a task label.
func (r *Registry) Task(label string) (string, bool) {
	if r == nil {
		return "", false
	}
	m, ok := r.TaskMappings[label]
	return m, ok
}

// Tasks returns all task labels, sorted.
func (r *Registry) Tasks() []string {
	if r == nil {
		return nil
	}
	tasks := make([]string, 0, len(r.TaskMappings))
	for k := range r.TaskMappings {
		tasks = append(tasks, k)
	}
	sort.Strings(tasks)
	return tasks
}

// FirstFast returns the first descriptor in registry order whose speed class
// is fast or very-fast.
func (r *Registry) FirstFast() (Model, bool) {
	if r == nil {
		return Model{}, false
	}
	for _, m := range r.Models {
		if m.Speed().IsFast() {
			return m, true
		}
	}
	return Model{}, false
}
