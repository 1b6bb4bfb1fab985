// Package report turns `go test -json` output into the suite's reports: a JSON summary,
// JUnit XML for CI, and a self-contained HTML page.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Event is one line of `go test -json` output.
type Event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test,omitempty"`
	Elapsed float64   `json:"Elapsed,omitempty"`
	Output  string    `json:"Output,omitempty"`
}

// Test outcomes.
const (
	StatusPass = "pass"
	StatusFail = "fail"
	StatusSkip = "skip"
)

// Result is the outcome of one test. A test that ran more than once keeps its last
// outcome; Attempts counts the runs and Flaky marks a failure followed by a pass.
type Result struct {
	Package  string        `json:"package"`
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Elapsed  time.Duration `json:"elapsedNs"`
	Attempts int           `json:"attempts"`
	Flaky    bool          `json:"flaky,omitempty"`
	Output   string        `json:"output,omitempty"`
}

// Summary counts results by outcome.
type Summary struct {
	Total   int           `json:"total"`
	Passed  int           `json:"passed"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Flaky   int           `json:"flaky"`
	Elapsed time.Duration `json:"elapsedNs"`
}

// Run is a parsed test run.
type Run struct {
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Summary  Summary   `json:"summary"`
	Results  []Result  `json:"results"`
	// Packages that failed without a failing test, such as build failures.
	BrokenPackages []string `json:"brokenPackages,omitempty"`
}

// Failed reports whether anything in the run failed.
func (r *Run) Failed() bool {
	return r.Summary.Failed > 0 || len(r.BrokenPackages) > 0
}

type key struct{ pkg, test string }

// Parse reads test2json events. Lines that are not JSON events, such as compiler output,
// are ignored.
func Parse(in io.Reader) (*Run, error) {
	var (
		run       Run
		order     []key
		results   = map[key]*Result{}
		output    = map[key]*strings.Builder{}
		pkgFailed = map[string]bool{}
		pkgOrder  []string
	)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Action == "" {
			continue
		}
		if !ev.Time.IsZero() {
			if run.Started.IsZero() || ev.Time.Before(run.Started) {
				run.Started = ev.Time
			}
			if ev.Time.After(run.Finished) {
				run.Finished = ev.Time
			}
		}

		if ev.Test == "" {
			// The last package outcome wins so a green rerun clears an earlier failure.
			if ev.Action == StatusFail || ev.Action == StatusPass {
				if _, seen := pkgFailed[ev.Package]; !seen {
					pkgOrder = append(pkgOrder, ev.Package)
				}
				pkgFailed[ev.Package] = ev.Action == StatusFail
			}
			continue
		}

		k := key{ev.Package, ev.Test}
		switch ev.Action {
		case "run":
			res, ok := results[k]
			if !ok {
				res = &Result{Package: ev.Package, Name: ev.Test}
				results[k] = res
				order = append(order, k)
			}
			res.Attempts++
			output[k] = &strings.Builder{}
		case "output":
			b, ok := output[k]
			if !ok {
				b = &strings.Builder{}
				output[k] = b
			}
			b.WriteString(ev.Output)
		case StatusPass, StatusFail, StatusSkip:
			res, ok := results[k]
			if !ok {
				res = &Result{Package: ev.Package, Name: ev.Test, Attempts: 1}
				results[k] = res
				order = append(order, k)
			}
			if res.Status == StatusFail && ev.Action == StatusPass {
				res.Flaky = true
			}
			res.Status = ev.Action
			res.Elapsed = time.Duration(ev.Elapsed * float64(time.Second))
			if b := output[k]; b != nil {
				res.Output = b.String()
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read test events: %w", err)
	}

	failingPkgs := map[string]bool{}
	for _, k := range order {
		res := results[k]
		if res.Status == "" {
			// Started but never finished: the binary panicked or timed out.
			res.Status = StatusFail
			if b := output[k]; b != nil {
				res.Output = b.String()
			}
		}
		run.Results = append(run.Results, *res)
		run.Summary.Total++
		run.Summary.Elapsed += res.Elapsed
		switch res.Status {
		case StatusPass:
			run.Summary.Passed++
		case StatusFail:
			run.Summary.Failed++
			failingPkgs[res.Package] = true
		case StatusSkip:
			run.Summary.Skipped++
		}
		if res.Flaky {
			run.Summary.Flaky++
		}
	}
	for _, pkg := range pkgOrder {
		if pkgFailed[pkg] && !failingPkgs[pkg] {
			run.BrokenPackages = append(run.BrokenPackages, pkg)
		}
	}
	return &run, nil
}

// FailedTests returns the names of failing top-level tests grouped by package, suitable
// for a -run rerun.
func (r *Run) FailedTests() map[string][]string {
	out := map[string][]string{}
	seen := map[key]bool{}
	for _, res := range r.Results {
		if res.Status != StatusFail {
			continue
		}
		top, _, _ := strings.Cut(res.Name, "/")
		k := key{res.Package, top}
		if seen[k] {
			continue
		}
		seen[k] = true
		out[res.Package] = append(out[res.Package], top)
	}
	return out
}
