package lifecycle

// ValidateSequence audits an ordered event list. Events are grouped by run
// id and each group is checked independently; violations are returned in
// input order.
//
// Every event counts toward its run's history, including events that
// violated a rule, so the verdicts match folding CheckInvariant over the
// same list.
func ValidateSequence(events []Event) (bool, []Violation, error) {
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			return false, nil, err
		}
	}

	seen := make(map[string]typeSet)
	var violations []Violation
	for _, ev := range events {
		if v := evaluate(ev, seen[ev.RunID]); v != nil {
			violations = append(violations, *v)
		}
		seen[ev.RunID] = seen[ev.RunID].with(ev.Type)
	}
	return len(violations) == 0, violations, nil
}

// CheckInvariant checks one new event against prior history. Only history
// events with the same run id are considered.
func CheckInvariant(ev Event, history []Event) (bool, *Violation, error) {
	if err := ev.Validate(); err != nil {
		return false, nil, err
	}

	var seen typeSet
	for _, h := range history {
		if h.RunID != ev.RunID {
			continue
		}
		if err := h.Validate(); err != nil {
			return false, nil, err
		}
		seen = seen.with(h.Type)
	}

	if v := evaluate(ev, seen); v != nil {
		return false, v, nil
	}
	return true, nil, nil
}

// Violations groups violations by run id.
func Violations(vs []Violation) map[string][]Violation {
	out := make(map[string][]Violation)
	for _, v := range vs {
		out[v.RunID] = append(out[v.RunID], v)
	}
	return out
}
