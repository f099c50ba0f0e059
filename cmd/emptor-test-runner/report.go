package main

import (
	"fmt"
	"html/template"
	"os"
	"time"
)

// Report aggregates one full runner pass.
type Report struct {
	RunID   string
	Started time.Time
	Elapsed time.Duration
	Passed  int
	Failed  int
	Results []TestResult
}

// BuildReport summarizes suite results into a report.
func BuildReport(runID string, started time.Time, results []TestResult) Report {
	report := Report{
		RunID:   runID,
		Started: started,
		Elapsed: time.Since(started),
		Results: results,
	}
	for _, r := range results {
		if r.Success {
			report.Passed++
		} else {
			report.Failed++
		}
	}
	return report
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Emptor Test Report {{.RunID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; }
.pass { color: #2a7a2a; font-weight: bold; }
.fail { color: #b02020; font-weight: bold; }
pre { background: #f6f6f6; padding: 1em; overflow-x: auto; }
</style>
</head>
<body>
<h1>Emptor Test Report</h1>
<p>Run {{.RunID}} started {{.Started.Format "2006-01-02 15:04:05"}}, elapsed {{.Elapsed}}.
Passed: {{.Passed}}, Failed: {{.Failed}}.</p>
<table>
<tr><th>Suite</th><th>Status</th><th>Duration</th></tr>
{{range .Results}}
<tr>
<td>{{.Suite}}</td>
<td class="{{if .Success}}pass{{else}}fail{{end}}">{{if .Success}}PASS{{else}}FAIL{{end}}</td>
<td>{{.Duration}}</td>
</tr>
{{end}}
</table>
{{range .Results}}{{if not .Success}}
<h2>{{.Suite}} output</h2>
<pre>{{.Output}}</pre>
{{end}}{{end}}
</body>
</html>
`))

// WriteHTMLReport renders the report to path.
func WriteHTMLReport(path string, report Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := reportTemplate.Execute(f, report); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}
