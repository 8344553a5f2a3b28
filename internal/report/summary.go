package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"
)

// Summary contains aggregated figures about a ranking run.
type Summary struct {
	RunID          string
	Target         string
	TotalKeywords  int
	Processed      int
	Failed         int
	FailedKeywords []string
	Ranked         int
	Top3           int
	Top10          int
	AverageRank    float64
	SnippetOwned   int
	Compared       bool
	Improved       int
	Worsened       int
	Unchanged      int
	Unavailable    int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}

// GenerateSummary aggregates processed rows, the keywords that failed and,
// when a comparison was made, its deltas.
func GenerateSummary(rows []KeywordRow, failed []string, deltas []Delta) Summary {
	s := Summary{
		TotalKeywords:  len(rows) + len(failed),
		Processed:      len(rows),
		Failed:         len(failed),
		FailedKeywords: append([]string(nil), failed...),
		Compared:       deltas != nil,
	}

	sum := 0
	for _, r := range rows {
		if r.TargetRank.Found() {
			s.Ranked++
			sum += int(r.TargetRank)
			if r.TargetRank <= 3 {
				s.Top3++
			}
			if r.TargetRank <= 10 {
				s.Top10++
			}
		}
		if r.Snippet != nil && r.Snippet.TargetFeatured() {
			s.SnippetOwned++
		}
	}
	if s.Ranked > 0 {
		s.AverageRank = float64(sum) / float64(s.Ranked)
	}

	for _, d := range deltas {
		switch d.Change {
		case ChangeImproved:
			s.Improved++
		case ChangeWorsened:
			s.Worsened++
		case ChangeUnchanged:
			s.Unchanged++
		default:
			s.Unavailable++
		}
	}
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Rankwatch Summary
-----------------
Run:           {{.RunID}}
Target:        {{.Target}}
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Keywords:      {{.TotalKeywords}} ({{.Processed}} processed, {{.Failed}} failed)
Ranked:        {{.Ranked}}
Top 3:         {{.Top3}}
Top 10:        {{.Top10}}
Average Rank:  {{if .Ranked}}{{printf "%.1f" .AverageRank}}{{else}}-{{end}}
Snippets Owned: {{.SnippetOwned}}
{{- if .Compared}}

Changes:
  Improved:  {{.Improved}}
  Worsened:  {{.Worsened}}
  No Change: {{.Unchanged}}
  N/A:       {{.Unavailable}}
{{- end}}
{{- if .FailedKeywords}}

Failed Keywords:
{{- range .FailedKeywords}}
  {{.}}
{{- end}}
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: parse text template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render text: %w", err)
	}
	return nil
}

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Rankwatch Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  .good { color: #006100; }
  .bad { color: #9c0006; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Rankwatch Report: {{.Target}}</h1>
  <p><strong>Run:</strong> {{.RunID}}</p>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Keywords</div>
    <div class="stat-val">{{.TotalKeywords}}</div>
  </div>
  <div class="stat-card">
    <div>Failed</div>
    <div class="stat-val {{if gt .Failed 0}}bad{{end}}">{{.Failed}}</div>
  </div>
  <div class="stat-card">
    <div>Ranked</div>
    <div class="stat-val">{{.Ranked}}</div>
  </div>
  <div class="stat-card">
    <div>Top 10</div>
    <div class="stat-val">{{.Top10}}</div>
  </div>
  <div class="stat-card">
    <div>Average Rank</div>
    <div class="stat-val">{{if .Ranked}}{{printf "%.1f" .AverageRank}}{{else}}-{{end}}</div>
  </div>
{{- if .Compared}}

  <h3>Changes</h3>
  <table>
    <tr><th>Change</th><th>Keywords</th></tr>
    <tr><td class="good">Improved</td><td>{{.Improved}}</td></tr>
    <tr><td class="bad">Worsened</td><td>{{.Worsened}}</td></tr>
    <tr><td>No Change</td><td>{{.Unchanged}}</td></tr>
    <tr><td>N/A</td><td>{{.Unavailable}}</td></tr>
  </table>
{{- end}}

  <h3>Failed Keywords</h3>
  <table>
    <tr><th>Keyword</th></tr>
    {{- range .FailedKeywords}}
    <tr><td>{{.}}</td></tr>
    {{- else}}
    <tr><td>None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: parse html template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}
