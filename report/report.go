// Package report renders a drift.HealthReport for people: an HTML page
// (for the notification body and the HTTP surface), Markdown and a
// compact text summary.
package report

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"io"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/locguard/drift"
)

// Previews are page text: markup is stripped, the template escapes the rest.
var strict = bluemonday.StrictPolicy()

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

type probeView struct {
	Name    string
	Status  string
	Icon    string
	Count   int
	Matched string
	Preview string
	Detail  string
}

type categoryView struct {
	Name           string
	Passed, Failed int
	Probes         []probeView
	Recommendation string
}

type reportView struct {
	ID              string
	When            string
	Duration        string
	Passed          int
	Failed          int
	Warnings        int
	Rate            string
	Recommendation  string
	MiningSuggested bool
	Fatal           string
	Categories      []categoryView
}

var icons = map[drift.Status]string{drift.Pass: "✅", drift.Warn: "⚠️", drift.Fail: "❌"}

func view(rep *drift.HealthReport) reportView {
	v := reportView{
		ID:              rep.ID,
		When:            rep.Timestamp.Format("2006-01-02 15:04:05 MST"),
		Duration:        rep.Duration,
		Passed:          rep.Passed,
		Failed:          rep.Failed,
		Warnings:        rep.Warnings,
		Rate:            fmt.Sprintf("%.1f%%", rep.SuccessRate*100),
		Recommendation:  rep.Recommendation,
		MiningSuggested: rep.MiningSuggested,
		Fatal:           rep.Fatal,
	}
	for _, c := range rep.Categories {
		p, f, _ := c.Counts()
		cv := categoryView{Name: c.Name, Passed: p, Failed: f, Recommendation: c.Recommendation}
		for _, pr := range c.Probes {
			detail := pr.Note
			if pr.Error != "" {
				detail = strings.TrimSpace(detail + " " + pr.Error)
			}
			cv.Probes = append(cv.Probes, probeView{
				Name:    pr.Name,
				Status:  string(pr.Status),
				Icon:    icons[pr.Status],
				Count:   pr.Count,
				Matched: pr.Matched,
				Preview: html.UnescapeString(strict.Sanitize(pr.Preview)),
				Detail:  detail,
			})
		}
		v.Categories = append(v.Categories, cv)
	}
	return v
}

var htmlTmpl = template.Must(template.New("health").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8">
<title>Locator health {{.When}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:900px;margin:2rem auto;padding:0 1rem;color:#222}
table{border-collapse:collapse;width:100%;margin-bottom:1.5rem}
th,td{border:1px solid #ddd;padding:.3rem .5rem;text-align:left;font-size:.9rem}
.fail{background:#fdecea}.warn{background:#fff8e1}
.summary{font-size:1.1rem}
</style></head><body>
<h1>Locator health report</h1>
<p class="summary">{{.When}}: {{.Passed}} passed, {{.Failed}} failed, {{.Warnings}} warnings ({{.Rate}})</p>
<p><strong>Recommendation:</strong> {{.Recommendation}}</p>
{{- if .MiningSuggested}}
<p><strong>Mining suggested.</strong></p>
{{- end}}
{{- if .Fatal}}
<p><strong>Run aborted:</strong> {{.Fatal}}</p>
{{- end}}
{{- range .Categories}}
<h2>{{.Name}} ({{.Passed}} passed, {{.Failed}} failed)</h2>
<table>
<thead><tr><th>Probe</th><th>Status</th><th>Count</th><th>Locator</th><th>Preview</th><th>Detail</th></tr></thead>
<tbody>
{{- range .Probes}}
<tr class="{{.Status}}"><td>{{.Name}}</td><td>{{.Icon}} {{.Status}}</td><td>{{.Count}}</td><td><code>{{.Matched}}</code></td><td>{{.Preview}}</td><td>{{.Detail}}</td></tr>
{{- end}}
</tbody>
</table>
<p>{{.Recommendation}}</p>
{{- end}}
<p><small>{{.ID}}{{if .Duration}} in {{.Duration}}{{end}}</small></p>
</body></html>`))

// HTML writes rep as a standalone HTML page.
func HTML(w io.Writer, rep *drift.HealthReport) error {
	if err := htmlTmpl.Execute(w, view(rep)); err != nil {
		return fmt.Errorf("report: html: %w", err)
	}
	return nil
}

// Markdown renders rep as Markdown, tables included.
func Markdown(rep *drift.HealthReport) (string, error) {
	var buf bytes.Buffer
	if err := HTML(&buf, rep); err != nil {
		return "", err
	}
	md, err := mdConverter.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("report: markdown: %w", err)
	}
	return strings.TrimSpace(md) + "\n", nil
}

// Text writes a compact summary, one line per failed or warned probe.
func Text(w io.Writer, rep *drift.HealthReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "health %s: %d passed, %d failed, %d warnings (%.1f%%)\n",
		rep.Timestamp.Format("2006-01-02 15:04:05"), rep.Passed, rep.Failed, rep.Warnings, rep.SuccessRate*100)
	for _, c := range rep.Categories {
		for _, p := range c.Probes {
			if p.Status == drift.Pass {
				continue
			}
			fmt.Fprintf(&b, "  %s %s/%s", p.Status, c.Name, p.Name)
			if p.Note != "" {
				fmt.Fprintf(&b, ": %s", p.Note)
			}
			if p.Error != "" {
				fmt.Fprintf(&b, " (%s)", p.Error)
			}
			b.WriteByte('\n')
		}
	}
	if rep.Fatal != "" {
		fmt.Fprintf(&b, "aborted: %s\n", rep.Fatal)
	}
	fmt.Fprintf(&b, "recommendation: %s\n", rep.Recommendation)
	if rep.MiningSuggested {
		b.WriteString("mining suggested\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
