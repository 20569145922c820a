package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/overlay/internal/diff"
	"github.com/roach88/overlay/internal/ir"
	"github.com/roach88/overlay/internal/lifecycle"
	"github.com/roach88/overlay/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes the run's lifecycle to help debug the failure.
type AssertionError struct {
	Type      string            // Assertion type for categorization
	Expected  string            // Human-readable expected outcome
	Actual    string            // Human-readable actual outcome
	Lifecycle []lifecycle.Event // Full lifecycle for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nLifecycle:\n")
	for _, ev := range e.Lifecycle {
		fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, ev.Type)
	}
	return buf.String()
}

func resolvedObject(result *Result) (ir.Object, error) {
	if result.Resolved == nil {
		return nil, fmt.Errorf("run %s did not complete", result.Outcome)
	}
	return result.Resolved.Contract.Object(), nil
}

// assertFieldEquals compares the value at a field path of the resolved
// contract with the expected YAML value.
func assertFieldEquals(result *Result, a Assertion) error {
	obj, err := resolvedObject(result)
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: a.Path, Actual: err.Error(), Lifecycle: result.Lifecycle}
	}

	data, err := yaml.Marshal(&a.Value)
	if err != nil {
		return fmt.Errorf("field_equals %s: %w", a.Path, err)
	}
	want, err := ir.DecodeYAML(data)
	if err != nil {
		return fmt.Errorf("field_equals %s: %w", a.Path, err)
	}

	got, ok := ir.Lookup(obj, ir.ParsePath(a.Path))
	if !ok {
		return &AssertionError{
			Type:      a.Type,
			Expected:  fmt.Sprintf("%s = %s", a.Path, render(want)),
			Actual:    "field absent",
			Lifecycle: result.Lifecycle,
		}
	}
	if !ir.Equal(got, want) {
		return &AssertionError{
			Type:      a.Type,
			Expected:  fmt.Sprintf("%s = %s", a.Path, render(want)),
			Actual:    fmt.Sprintf("%s = %s", a.Path, render(got)),
			Lifecycle: result.Lifecycle,
		}
	}
	return nil
}

func assertFieldAbsent(result *Result, a Assertion) error {
	obj, err := resolvedObject(result)
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: a.Path + " absent", Actual: err.Error(), Lifecycle: result.Lifecycle}
	}
	if got, ok := ir.Lookup(obj, ir.ParsePath(a.Path)); ok {
		return &AssertionError{
			Type:      a.Type,
			Expected:  a.Path + " absent",
			Actual:    fmt.Sprintf("%s = %s", a.Path, render(got)),
			Lifecycle: result.Lifecycle,
		}
	}
	return nil
}

// assertLifecycleOrder checks the recorded event types match exactly.
func assertLifecycleOrder(result *Result, a Assertion) error {
	got := make([]string, len(result.Lifecycle))
	for i, ev := range result.Lifecycle {
		got[i] = string(ev.Type)
	}
	if !slices.Equal(got, a.Events) {
		return &AssertionError{
			Type:      a.Type,
			Expected:  strings.Join(a.Events, " -> "),
			Actual:    strings.Join(got, " -> "),
			Lifecycle: result.Lifecycle,
		}
	}
	return nil
}

func assertLifecycleValid(result *Result, a Assertion) error {
	ok, violations, err := lifecycle.ValidateSequence(result.Lifecycle)
	if err != nil {
		return fmt.Errorf("lifecycle_valid: %w", err)
	}
	if !ok {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.String()
		}
		return &AssertionError{
			Type:      a.Type,
			Expected:  "no violations",
			Actual:    strings.Join(msgs, "; "),
			Lifecycle: result.Lifecycle,
		}
	}
	return nil
}

func assertOverlayCount(result *Result, a Assertion) error {
	got := 0
	if result.Resolved != nil {
		got = len(result.Resolved.OverlayRefs)
	}
	if got != a.Count {
		return &AssertionError{
			Type:      a.Type,
			Expected:  fmt.Sprintf("%d overlay refs", a.Count),
			Actual:    fmt.Sprintf("%d overlay refs", got),
			Lifecycle: result.Lifecycle,
		}
	}
	return nil
}

// assertDiffContains looks for a change of the given type at the path.
// The scenario must enable include_diff.
func assertDiffContains(result *Result, a Assertion) error {
	if result.Resolved == nil || result.Resolved.Diff == nil {
		return &AssertionError{
			Type:      a.Type,
			Expected:  fmt.Sprintf("%s %s", a.Change, a.Path),
			Actual:    "no diff recorded",
			Lifecycle: result.Lifecycle,
		}
	}
	d := result.Resolved.Diff
	for _, c := range d.Changes {
		if c.Path == a.Path && c.Type == diff.ChangeType(a.Change) {
			return nil
		}
	}

	var seen []string
	for _, c := range d.Changes {
		seen = append(seen, fmt.Sprintf("%s %s", c.Type, c.Path))
	}
	return &AssertionError{
		Type:      a.Type,
		Expected:  fmt.Sprintf("%s %s", a.Change, a.Path),
		Actual:    "[" + strings.Join(seen, ", ") + "]",
		Lifecycle: result.Lifecycle,
	}
}

// assertStoredRun reads the run back from the journal and checks its
// status, its stage and that its lifecycle survived the round trip.
func assertStoredRun(ctx context.Context, actx *AssertionContext, result *Result, a Assertion) error {
	run, err := actx.Store.ReadRun(ctx, result.Stored.ID)
	if err != nil {
		return fmt.Errorf("stored_run: %w", err)
	}

	var problems []string
	if string(run.Status) != a.Status {
		problems = append(problems, fmt.Sprintf("status %s", run.Status))
	}
	if a.Stage != "" && run.Stage != a.Stage {
		problems = append(problems, fmt.Sprintf("stage %s", run.Stage))
	}
	if len(run.Lifecycle) != len(result.Lifecycle) {
		problems = append(problems, fmt.Sprintf("%d stored lifecycle events, recorded %d", len(run.Lifecycle), len(result.Lifecycle)))
	}
	if len(problems) == 0 {
		return nil
	}

	expected := "status " + a.Status
	if a.Stage != "" {
		expected += ", stage " + a.Stage
	}
	return &AssertionError{
		Type:      a.Type,
		Expected:  expected,
		Actual:    strings.Join(problems, ", "),
		Lifecycle: result.Lifecycle,
	}
}

func render(v ir.Value) string {
	b, err := ir.MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(b)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides journal access for stored_run assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertFieldEquals:
			err = assertFieldEquals(result, a)
		case AssertFieldAbsent:
			err = assertFieldAbsent(result, a)
		case AssertLifecycleOrder:
			err = assertLifecycleOrder(result, a)
		case AssertLifecycleValid:
			err = assertLifecycleValid(result, a)
		case AssertOverlayCount:
			err = assertOverlayCount(result, a)
		case AssertDiffContains:
			err = assertDiffContains(result, a)
		case AssertStoredRun:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: stored_run requires journal context", i)
			} else {
				ctx := actx.Ctx
				if ctx == nil {
					ctx = context.Background()
				}
				err = assertStoredRun(ctx, actx, result, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
