package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/ir"
)

// Snapshot is the golden view of a scenario execution.
//
// Hashes, timestamps and durations are left out so golden files stay
// readable and survive hash-domain changes; the resolved contract itself
// is included in full.
func Snapshot(name string, result *Result) ir.Object {
	lc := make(ir.List, len(result.Lifecycle))
	for i, ev := range result.Lifecycle {
		lc[i] = ir.Object{
			"seq":  ir.Int(ev.Seq),
			"type": ir.String(string(ev.Type)),
		}
	}
	topics := make(ir.List, len(result.Events))
	for i, env := range result.Events {
		topics[i] = ir.String(string(env.Topic))
	}

	snap := ir.Object{
		"scenario_name": ir.String(name),
		"outcome":       ir.String(result.Outcome),
		"lifecycle":     lc,
		"topics":        topics,
	}

	if res := result.Resolved; res != nil {
		snap["run_id"] = ir.String(res.RunID)
		snap["contract"] = res.Contract.Object()

		overlays := make(ir.List, len(res.OverlayRefs))
		for i, ref := range res.OverlayRefs {
			overlays[i] = ir.String(ref.ID)
		}
		snap["overlays"] = overlays

		if res.Diff != nil {
			changes := make(ir.List, len(res.Diff.Changes))
			for i, c := range res.Diff.Changes {
				row := ir.Object{
					"path": ir.String(c.Path),
					"type": ir.String(string(c.Type)),
				}
				if c.From != "" {
					row["from"] = ir.String(c.From)
				}
				changes[i] = row
			}
			snap["diff"] = changes
		}
	}

	if re := result.Failure; re != nil {
		snap["run_id"] = ir.String(re.RunID)
		snap["error_code"] = ir.String(string(contract.CodeOf(re.Err)))
		snap["stage"] = ir.String(string(re.Stage))
	}
	return snap
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := ir.MarshalCanonical(Snapshot(scenarioName, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
