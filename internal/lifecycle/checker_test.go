package lifecycle

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/overlay/internal/contract"
)

func seq(runID string, types ...EventType) []Event {
	c := NewClock(runID, nil)
	out := make([]Event, len(types))
	for i, t := range types {
		out[i] = c.Event(t)
	}
	return out
}

func TestValidateSequence(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   []Violation
	}{
		{
			name:   "valid validation",
			events: seq("r1", ValidationStarted, ValidationPassed),
		},
		{
			name:   "missing start",
			events: seq("r2", ValidationPassed),
			want: []Violation{{
				RunID: "r2", Rule: RuleValidationStartRequired, EventType: ValidationPassed, Seq: 1,
				Message: "validation_passed without prior validation_started",
			}},
		},
		{
			name:   "second terminal",
			events: seq("r3", ValidationStarted, ValidationPassed, ValidationFailed),
			want: []Violation{{
				RunID: "r3", Rule: RuleValidationTerminalExclusive, EventType: ValidationFailed, Seq: 3,
				Message: "validation_failed after validation_passed",
			}},
		},
		{
			name:   "merge after failure",
			events: seq("r4", ValidationStarted, ValidationFailed, MergeStarted, MergeCompleted),
			want: []Violation{{
				RunID: "r4", Rule: RuleNoMergeAfterFailure, EventType: MergeCompleted, Seq: 4,
				Message: "merge_completed after validation_failed",
			}},
		},
		{
			name:   "full run",
			events: seq("r5", ValidationStarted, ValidationPassed, MergeStarted, MergeCompleted),
		},
		{
			name:   "merge without start",
			events: seq("r6", ValidationStarted, ValidationPassed, MergeCompleted),
			want: []Violation{{
				RunID: "r6", Rule: RuleMergeStartRequired, EventType: MergeCompleted, Seq: 3,
				Message: "merge_completed without prior merge_started",
			}},
		},
		{
			name:   "first failing rule wins",
			events: seq("r7", ValidationStarted, ValidationFailed, MergeCompleted),
			want: []Violation{{
				RunID: "r7", Rule: RuleMergeStartRequired, EventType: MergeCompleted, Seq: 3,
				Message: "merge_completed without prior merge_started",
			}},
		},
		{
			name:   "repeated terminal is not exclusive",
			events: seq("r8", ValidationStarted, ValidationPassed, ValidationPassed),
		},
		{
			name:   "merge started after failure alone is allowed",
			events: seq("r9", ValidationStarted, ValidationFailed, MergeStarted),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, got, err := ValidateSequence(tt.events)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want) == 0, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateSequenceGroupsByRun(t *testing.T) {
	a := seq("a", ValidationStarted, ValidationPassed)
	b := seq("b", ValidationPassed)
	events := []Event{a[0], b[0], a[1]}

	ok, vs, err := ValidateSequence(events)
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, vs, 1)
	assert.Equal(t, "b", vs[0].RunID)

	grouped := Violations(vs)
	assert.Len(t, grouped["b"], 1)
	assert.Empty(t, grouped["a"])
}

func TestMalformedEventsAreErrors(t *testing.T) {
	bad := []Event{
		{RunID: "", Type: ValidationStarted},
		{RunID: "r", Type: "validation_skipped"},
	}
	for _, ev := range bad {
		_, _, err := ValidateSequence([]Event{ev})
		assert.ErrorIs(t, err, ErrMalformedEvent)

		_, _, err = CheckInvariant(ev, nil)
		assert.ErrorIs(t, err, ErrMalformedEvent)

		_, _, err = NewTracker().Check(ev)
		assert.ErrorIs(t, err, ErrMalformedEvent)
	}

	_, _, err := CheckInvariant(Event{RunID: "r", Type: MergeStarted}, []Event{{RunID: "r", Type: "bogus"}})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestCheckInvariantFiltersHistoryByRun(t *testing.T) {
	history := seq("other", ValidationStarted)
	ok, v, err := CheckInvariant(Event{RunID: "mine", Type: ValidationPassed, Seq: 1}, history)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NotNil(t, v)
	assert.Equal(t, RuleValidationStartRequired, v.Rule)
	assert.Contains(t, v.String(), "run mine")
	assert.Contains(t, v.Message, "validation_started")

	ok, v, err = CheckInvariant(Event{RunID: "other", Type: ValidationPassed, Seq: 2}, history)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestViolationErr(t *testing.T) {
	_, vs, err := ValidateSequence(seq("r2", ValidationPassed))
	require.NoError(t, err)
	require.Len(t, vs, 1)

	verr := vs[0].Err()
	assert.True(t, contract.IsInvariantViolation(verr))
	assert.Contains(t, verr.Error(), "r2")
}

// foldIncremental feeds events one at a time to CheckInvariant with the
// full prior history.
func foldIncremental(t *testing.T, events []Event) []Violation {
	t.Helper()
	var out []Violation
	for i, ev := range events {
		_, v, err := CheckInvariant(ev, events[:i])
		require.NoError(t, err)
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func foldTracker(t *testing.T, events []Event) []Violation {
	t.Helper()
	tr := NewTracker()
	var out []Violation
	for _, ev := range events {
		_, v, err := tr.Check(ev)
		require.NoError(t, err)
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func TestBatchIncrementalEquivalenceExhaustive(t *testing.T) {
	// Every single-run sequence of up to four events.
	var walk func(prefix []EventType)
	walk = func(prefix []EventType) {
		events := seq("r", prefix...)
		_, batch, err := ValidateSequence(events)
		require.NoError(t, err)
		assert.Equal(t, batch, foldIncremental(t, events), "%v", prefix)
		assert.Equal(t, batch, foldTracker(t, events), "%v", prefix)

		if len(prefix) == 4 {
			return
		}
		for _, et := range EventTypes {
			walk(append(append([]EventType(nil), prefix...), et))
		}
	}
	walk(nil)
}

func TestBatchIncrementalEquivalenceInterleaved(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	runs := []string{"a", "b", "c"}

	for range 200 {
		clocks := map[string]*Clock{}
		for _, r := range runs {
			clocks[r] = NewClock(r, nil)
		}
		n := rng.IntN(12)
		events := make([]Event, n)
		for i := range events {
			r := runs[rng.IntN(len(runs))]
			events[i] = clocks[r].Event(EventTypes[rng.IntN(len(EventTypes))])
		}

		_, batch, err := ValidateSequence(events)
		require.NoError(t, err)
		assert.Equal(t, batch, foldIncremental(t, events))
		assert.Equal(t, batch, foldTracker(t, events))
	}
}
