package report

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Report file names inside the output directory.
const (
	JSONFile  = "test-results.json"
	JUnitFile = "junit.xml"
	HTMLFile  = "index.html"
)

// WriteAll writes every report format into dir and returns the paths written.
func WriteAll(dir string, run *Run) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	writers := []struct {
		name   string
		render func(*Run) ([]byte, error)
	}{
		{JSONFile, JSON},
		{JUnitFile, JUnit},
		{HTMLFile, HTML},
	}
	paths := make([]string, 0, len(writers))
	for _, w := range writers {
		data, err := w.render(run)
		if err != nil {
			return paths, fmt.Errorf("render %s: %w", w.name, err)
		}
		path := filepath.Join(dir, w.name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// JSON renders the run as indented JSON.
func JSON(run *Run) ([]byte, error) {
	return json.MarshalIndent(run, "", "  ")
}

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Time     string       `xml:"time,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitMessage `xml:"failure,omitempty"`
	Skipped   *junitMessage `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitMessage struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

// JUnit renders the run as JUnit XML, one testsuite per package.
func JUnit(run *Run) ([]byte, error) {
	doc := junitSuites{
		Tests:    run.Summary.Total,
		Failures: run.Summary.Failed,
		Skipped:  run.Summary.Skipped,
		Time:     seconds(run.Summary.Elapsed.Seconds()),
	}
	index := map[string]int{}
	var elapsed []float64
	for _, res := range run.Results {
		i, ok := index[res.Package]
		if !ok {
			i = len(doc.Suites)
			index[res.Package] = i
			doc.Suites = append(doc.Suites, junitSuite{Name: res.Package})
			elapsed = append(elapsed, 0)
		}
		elapsed[i] += res.Elapsed.Seconds()
		suite := &doc.Suites[i]
		tc := junitCase{
			Name:      res.Name,
			Classname: res.Package,
			Time:      seconds(res.Elapsed.Seconds()),
		}
		suite.Tests++
		switch res.Status {
		case StatusFail:
			suite.Failures++
			tc.Failure = &junitMessage{Message: "Failed", Body: res.Output}
		case StatusSkip:
			suite.Skipped++
			tc.Skipped = &junitMessage{Message: "Skipped", Body: res.Output}
		default:
			if res.Flaky {
				tc.SystemOut = res.Output
			}
		}
		suite.Cases = append(suite.Cases, tc)
	}
	for i := range doc.Suites {
		doc.Suites[i].Time = seconds(elapsed[i])
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func seconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}

// Markdown renders the run summary and failure details as markdown.
func Markdown(run *Run) string {
	var b strings.Builder
	b.WriteString("# Test Report\n\n")
	if !run.Started.IsZero() {
		fmt.Fprintf(&b, "Run from %s to %s.\n\n", run.Started.Format("2006-01-02 15:04:05 MST"), run.Finished.Format("15:04:05"))
	}
	b.WriteString("| Total | Passed | Failed | Skipped | Flaky | Time |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	s := run.Summary
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %s |\n\n", s.Total, s.Passed, s.Failed, s.Skipped, s.Flaky, s.Elapsed.Round(1e6))

	if len(run.BrokenPackages) > 0 {
		b.WriteString("## Broken packages\n\n")
		for _, pkg := range run.BrokenPackages {
			fmt.Fprintf(&b, "- `%s`\n", pkg)
		}
		b.WriteString("\n")
	}

	var failed, flaky []Result
	for _, res := range run.Results {
		switch {
		case res.Status == StatusFail:
			failed = append(failed, res)
		case res.Flaky:
			flaky = append(flaky, res)
		}
	}
	if len(failed) > 0 {
		b.WriteString("## Failures\n\n")
		for _, res := range failed {
			fmt.Fprintf(&b, "### %s\n\n`%s` after %s\n\n", res.Name, res.Package, res.Elapsed.Round(1e6))
			writeFence(&b, res.Output)
		}
	}
	if len(flaky) > 0 {
		b.WriteString("## Flaky\n\n")
		for _, res := range flaky {
			fmt.Fprintf(&b, "- %s (`%s`, %d attempts)\n", res.Name, res.Package, res.Attempts)
		}
		b.WriteString("\n")
	}

	b.WriteString("## All tests\n\n| Test | Package | Status | Time |\n|---|---|---|---|\n")
	for _, res := range run.Results {
		fmt.Fprintf(&b, "| %s | `%s` | %s | %s |\n", cell(res.Name), res.Package, res.Status, res.Elapsed.Round(1e6))
	}
	return b.String()
}

func writeFence(b *strings.Builder, text string) {
	fence := "```"
	for strings.Contains(text, fence) {
		fence += "`"
	}
	fmt.Fprintf(b, "%s\n%s\n%s\n\n", fence, strings.TrimRight(text, "\n"), fence)
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 1100px; margin: 0 auto; padding: 2rem 1rem; }
        table { border-collapse: collapse; width: 100%; }
        th, td { border: 1px solid #e0e0e0; padding: 0.4em 0.8em; text-align: left; }
        pre { background: #f5f5f5; padding: 1rem; overflow-x: auto; }
        body.failed h1 { color: #b00020; }
    </style>
</head>
<body class="{{.Class}}">
{{.Content}}
</body>
</html>`

var page = template.Must(template.New("report").Parse(pageTemplate))

// HTML renders Markdown(run) as a sanitized standalone page.
func HTML(run *Run) ([]byte, error) {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(Markdown(run)))
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	content := bluemonday.UGCPolicy().SanitizeBytes(markdown.Render(doc, renderer))

	class := "passed"
	if run.Failed() {
		class = "failed"
	}
	var buf bytes.Buffer
	if err := page.Execute(&buf, struct {
		Title   string
		Class   string
		Content template.HTML
	}{"Test Report", class, template.HTML(content)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
