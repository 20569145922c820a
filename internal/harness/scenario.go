package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/overlay/internal/contract"
)

// Scenario defines a conformance scenario: one resolution request and the
// expectations on its outcome, lifecycle and resolved contract.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// ProfilesDir is an optional directory of CUE profiles added to the
	// builtin registry. Relative paths resolve against the scenario file.
	ProfilesDir string `yaml:"profiles_dir,omitempty"`

	// Base is the base profile reference, "name" or "name@version".
	Base string `yaml:"base"`

	// RunID fixes the run id. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// CorrelationID is passed through to the bus events.
	CorrelationID string `yaml:"correlation_id,omitempty"`

	Options ScenarioOptions `yaml:"options,omitempty"`

	// Merge overrides merge strategies by field path.
	Merge map[string]contract.MergeStrategy `yaml:"merge,omitempty"`

	// StrictPaths rejects patch paths unknown to the merge schema.
	StrictPaths bool `yaml:"strict_paths,omitempty"`

	// Patches are applied in order. Each entry is a patch document.
	Patches []yaml.Node `yaml:"patches"`

	Expect Expect `yaml:"expect"`

	// Assertions validate the run after it finished.
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioOptions mirrors the resolver options.
type ScenarioOptions struct {
	IncludeDiff bool `yaml:"include_diff,omitempty"`

	// IncludeOverlayRefs defaults to true when omitted.
	IncludeOverlayRefs *bool `yaml:"include_overlay_refs,omitempty"`
}

// Outcome values.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Expect describes the expected run outcome.
type Expect struct {
	// Outcome is "completed" or "failed".
	Outcome string `yaml:"outcome"`

	// ErrorCode is the expected error code of a failed run.
	ErrorCode contract.ErrorCode `yaml:"error_code,omitempty"`

	// Stage is the expected failing stage, "validation" or "merge".
	Stage string `yaml:"stage,omitempty"`

	// Subject is the expected offending profile or patch.
	Subject string `yaml:"subject,omitempty"`
}

// Assertion validates one aspect of a finished run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "field_equals": value at Path in the resolved contract equals Value
	// - "field_absent": Path is absent from the resolved contract
	// - "lifecycle_order": lifecycle event types equal Events exactly
	// - "lifecycle_valid": the recorded lifecycle passes the invariant checker
	// - "overlay_count": Count overlay refs were recorded
	// - "diff_contains": the diff holds a Change of the given type at Path
	// - "stored_run": the journaled run has Status (and Stage, if set)
	Type string `yaml:"type"`

	Path   string    `yaml:"path,omitempty"`
	Value  yaml.Node `yaml:"value,omitempty"`
	Events []string  `yaml:"events,omitempty"`
	Count  int       `yaml:"count,omitempty"`
	Change string    `yaml:"change,omitempty"`
	Status string    `yaml:"status,omitempty"`
	Stage  string    `yaml:"stage,omitempty"`
}

// Assertion type constants.
const (
	AssertFieldEquals    = "field_equals"
	AssertFieldAbsent    = "field_absent"
	AssertLifecycleOrder = "lifecycle_order"
	AssertLifecycleValid = "lifecycle_valid"
	AssertOverlayCount   = "overlay_count"
	AssertDiffContains   = "diff_contains"
	AssertStoredRun      = "stored_run"
)

// LoadScenario reads and parses a scenario YAML file. A relative
// profiles_dir resolves against the scenario's directory.
//
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.ProfilesDir != "" && !filepath.IsAbs(s.ProfilesDir) {
		s.ProfilesDir = filepath.Join(filepath.Dir(path), s.ProfilesDir)
	}
	if s.ProfilesDir != "" {
		if _, err := os.Stat(s.ProfilesDir); err != nil {
			return nil, fmt.Errorf("invalid scenario: profiles_dir: %w", err)
		}
	}
	return s, nil
}

// ParseScenario parses a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// DecodePatches decodes the scenario's patch documents.
func (s *Scenario) DecodePatches() ([]contract.Patch, error) {
	patches := make([]contract.Patch, 0, len(s.Patches))
	for i := range s.Patches {
		data, err := yaml.Marshal(&s.Patches[i])
		if err != nil {
			return nil, fmt.Errorf("patches[%d]: %w", i, err)
		}
		p, err := contract.DecodePatchYAML(data)
		if err != nil {
			return nil, fmt.Errorf("patches[%d]: %w", i, err)
		}
		patches = append(patches, p)
	}
	return patches, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Base == "" {
		return fmt.Errorf("base is required")
	}
	if _, err := contract.ParseProfileRef(s.Base); err != nil {
		return fmt.Errorf("base: %w", err)
	}
	for p, st := range s.Merge {
		if !st.Valid() {
			return fmt.Errorf("merge[%s]: unknown strategy %q", p, st)
		}
	}

	switch s.Expect.Outcome {
	case OutcomeCompleted:
		if s.Expect.ErrorCode != "" || s.Expect.Stage != "" {
			return fmt.Errorf("expect: error_code and stage only apply to failed runs")
		}
	case OutcomeFailed:
		if s.Expect.ErrorCode == "" {
			return fmt.Errorf("expect: error_code is required for failed runs")
		}
	default:
		return fmt.Errorf("expect: outcome must be %q or %q, got %q", OutcomeCompleted, OutcomeFailed, s.Expect.Outcome)
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFieldEquals:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for field_equals", index)
		}
		if a.Value.Kind == 0 {
			return fmt.Errorf("assertions[%d]: value is required for field_equals", index)
		}
	case AssertFieldAbsent:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for field_absent", index)
		}
	case AssertLifecycleOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for lifecycle_order", index)
		}
	case AssertLifecycleValid:
	case AssertOverlayCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for overlay_count", index)
		}
	case AssertDiffContains:
		if a.Path == "" || a.Change == "" {
			return fmt.Errorf("assertions[%d]: path and change are required for diff_contains", index)
		}
	case AssertStoredRun:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for stored_run", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
