package lifecycle

import (
	"fmt"

	"github.com/roach88/overlay/internal/contract"
)

// Rule identifies one ordering invariant.
type Rule string

const (
	RuleValidationStartRequired     Rule = "validation_start_required"
	RuleValidationTerminalExclusive Rule = "validation_terminal_exclusive"
	RuleMergeStartRequired          Rule = "merge_start_required"
	RuleNoMergeAfterFailure         Rule = "no_merge_after_failure"
)

// Rules lists the invariants in evaluation order.
var Rules = []Rule{
	RuleValidationStartRequired,
	RuleValidationTerminalExclusive,
	RuleMergeStartRequired,
	RuleNoMergeAfterFailure,
}

// Violation describes an event that broke a rule.
type Violation struct {
	RunID     string    `json:"run_id"`
	Rule      Rule      `json:"rule"`
	EventType EventType `json:"event_type"`
	Seq       int64     `json:"seq"`
	Message   string    `json:"message"`
}

// String returns the run-scoped description.
func (v Violation) String() string {
	return fmt.Sprintf("run %s: %s: %s", v.RunID, v.Rule, v.Message)
}

// Err converts v into an INVARIANT_VIOLATION error for callers that
// decide the violation blocks their operation.
func (v Violation) Err() error {
	return contract.NewInvariantViolation(v.RunID, fmt.Sprintf("%s: %s", v.Rule, v.Message))
}

type check func(ev Event, seen typeSet) (Rule, string, bool)

var checks = []check{
	func(ev Event, seen typeSet) (Rule, string, bool) {
		if ev.Type.Terminal() && !seen.has(ValidationStarted) {
			return RuleValidationStartRequired,
				fmt.Sprintf("%s without prior %s", ev.Type, ValidationStarted), false
		}
		return "", "", true
	},
	func(ev Event, seen typeSet) (Rule, string, bool) {
		var other EventType
		switch ev.Type {
		case ValidationPassed:
			other = ValidationFailed
		case ValidationFailed:
			other = ValidationPassed
		default:
			return "", "", true
		}
		if seen.has(other) {
			return RuleValidationTerminalExclusive,
				fmt.Sprintf("%s after %s", ev.Type, other), false
		}
		return "", "", true
	},
	func(ev Event, seen typeSet) (Rule, string, bool) {
		if ev.Type == MergeCompleted && !seen.has(MergeStarted) {
			return RuleMergeStartRequired,
				fmt.Sprintf("%s without prior %s", ev.Type, MergeStarted), false
		}
		return "", "", true
	},
	func(ev Event, seen typeSet) (Rule, string, bool) {
		if ev.Type == MergeCompleted && seen.has(ValidationFailed) {
			return RuleNoMergeAfterFailure,
				fmt.Sprintf("%s after %s", ev.Type, ValidationFailed), false
		}
		return "", "", true
	},
}

// evaluate applies the rules to ev given the types already seen for its
// run. ev must already be validated.
func evaluate(ev Event, seen typeSet) *Violation {
	for _, c := range checks {
		if rule, msg, ok := c(ev, seen); !ok {
			return &Violation{
				RunID:     ev.RunID,
				Rule:      rule,
				EventType: ev.Type,
				Seq:       ev.Seq,
				Message:   msg,
			}
		}
	}
	return nil
}
