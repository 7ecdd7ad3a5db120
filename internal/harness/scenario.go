package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines one undo/redo exercise: a schema, the tables whose
// changes are tracked, and an ordered list of steps.
type Scenario struct {
	// Name uniquely identifies this scenario; it doubles as the golden
	// file name and the session token, so runs are deterministic.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Schema contains DDL statements executed before activation.
	Schema []string `yaml:"schema"`

	// Tables lists the tables to track for undo/redo.
	Tables []string `yaml:"tables"`

	// Steps is the main flow: SQL mutations and engine operations.
	Steps []Step `yaml:"steps"`
}

// Step is either a raw SQL mutation (Exec) or an engine operation (Op).
// Exactly one of the two must be set.
type Step struct {
	// Exec is a SQL statement run against the database.
	Exec string `yaml:"exec,omitempty"`

	// Op is an engine operation: barrier, undo, redo, freeze, unfreeze.
	Op string `yaml:"op,omitempty"`
}

// Engine operations accepted in Step.Op.
const (
	OpBarrier  = "barrier"
	OpUndo     = "undo"
	OpRedo     = "redo"
	OpFreeze   = "freeze"
	OpUnfreeze = "unfreeze"
)

var knownOps = map[string]bool{
	OpBarrier:  true,
	OpUndo:     true,
	OpRedo:     true,
	OpFreeze:   true,
	OpUnfreeze: true,
}

// LoadScenario reads and validates a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "step:" vs "steps:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}

	return &scenario, nil
}

// LoadScenarioDir loads every *.yaml scenario in a directory, sorted by
// file name for deterministic execution order.
func LoadScenarioDir(dir string) ([]*Scenario, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob scenarios: %w", err)
	}
	sort.Strings(matches)

	scenarios := make([]*Scenario, 0, len(matches))
	for _, path := range matches {
		sc, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

// Validate checks required fields and step shape.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Schema) == 0 {
		return fmt.Errorf("scenario %s: schema is required", s.Name)
	}
	if len(s.Tables) == 0 {
		return fmt.Errorf("scenario %s: at least one tracked table is required", s.Name)
	}
	for i, step := range s.Steps {
		if (step.Exec == "") == (step.Op == "") {
			return fmt.Errorf("scenario %s: step %d must set exactly one of exec or op", s.Name, i)
		}
		if step.Op != "" && !knownOps[step.Op] {
			return fmt.Errorf("scenario %s: step %d has unknown op %q", s.Name, i, step.Op)
		}
	}
	return nil
}

// label returns the step's trace label: its op name, or "exec".
func (st Step) label() string {
	if st.Op != "" {
		return st.Op
	}
	return "exec"
}

// String renders the step for error messages.
func (st Step) String() string {
	if st.Op != "" {
		return st.Op
	}
	return "exec " + strings.TrimSpace(st.Exec)
}
