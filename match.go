package safepkt

import "fmt"

// TestResult is the verdict for one discovered test.
type TestResult struct {
	Descriptor TestDescriptor `json:"test"`
	Passed     bool           `json:"passed"`
	Message    string         `json:"message,omitempty"`
}

// Match pairs each descriptor with the outcome of the same name. A
// descriptor without an outcome fails with an empty message; a failing
// outcome carries `"<name>" has failed`. Results follow descriptor order.
func Match(descriptors []TestDescriptor, outcomes []TestOutcome) []TestResult {
	byName := make(map[string]TestOutcome, len(outcomes))
	for _, o := range outcomes {
		if _, seen := byName[o.Test]; !seen {
			byName[o.Test] = o
		}
	}

	results := make([]TestResult, 0, len(descriptors))
	for _, d := range descriptors {
		r := TestResult{Descriptor: d}
		if o, ok := byName[d.Name]; ok {
			r.Passed = o.Passed
			if !o.Passed {
				r.Message = fmt.Sprintf("%q has failed", d.Name)
			}
		}
		results = append(results, r)
	}
	return results
}

// Passed reports whether every result passed. An empty result set passes.
func Passed(results []TestResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
