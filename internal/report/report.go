// Package report renders a completed backtest run as a standalone HTML page
// and exports its daily value series as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"quantback/internal/store"
)

// Report renders runs into a directory. Files are named by run ID so repeated
// renders of the same run overwrite in place.
type Report struct {
	OutDir string
}

// New creates a Report writing into outDir, creating it if needed.
func New(outDir string) (*Report, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	return &Report{OutDir: outDir}, nil
}

// Render writes run-<id>.html and run-<id>-values.csv into OutDir and returns
// the path of the HTML file.
func (r *Report) Render(run *store.Run) (string, error) {
	htmlPath := filepath.Join(r.OutDir, fmt.Sprintf("run-%d.html", run.ID))
	csvPath := filepath.Join(r.OutDir, fmt.Sprintf("run-%d-values.csv", run.ID))

	f, err := os.Create(htmlPath)
	if err != nil {
		return "", err
	}
	if err := WriteHTML(f, run); err != nil {
		f.Close()
		return "", fmt.Errorf("rendering %s: %w", htmlPath, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	f, err = os.Create(csvPath)
	if err != nil {
		return "", err
	}
	if err := WriteValuesCSV(f, run); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", csvPath, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	return htmlPath, nil
}

// WriteHTML renders the run report page to w.
func WriteHTML(w io.Writer, run *store.Run) error {
	return pageTemplate.Execute(w, run)
}

// WriteValuesCSV writes the daily value series as date,cash,total_value rows.
func WriteValuesCSV(w io.Writer, run *store.Run) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "cash", "total_value"}); err != nil {
		return err
	}
	for _, st := range run.Values {
		row := []string{
			st.Date.Format("2006-01-02"),
			strconv.FormatFloat(st.Cash, 'f', 2, 64),
			strconv.FormatFloat(st.TotalValue, 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatPct formats a fraction as a signed percentage, e.g. 0.1234 → "+12.34%".
func FormatPct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v*100)
}

// FormatMoney formats a monetary amount with two decimals.
func FormatMoney(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

var pageTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct":   FormatPct,
	"money": FormatMoney,
	"date":  func(t time.Time) string { return t.Format("2006-01-02") },
}).Parse(pageHTML))

const pageHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Backtest Run {{.ID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
h1 { font-size: 1.4em; }
h2 { font-size: 1.1em; margin-top: 2em; }
table { border-collapse: collapse; margin-top: 0.5em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: right; }
th { background: #f4f4f4; }
td.sym, th.sym { text-align: left; }
.neg { color: #b00; }
.pos { color: #070; }
</style>
</head>
<body>
<h1>Backtest Run {{.ID}} — {{.Market}} {{date .StartDate}} to {{date .EndDate}}</h1>
<p>Universe: {{range $i, $c := .Universe}}{{if $i}}, {{end}}{{$c}}{{end}}</p>

<h2>Performance</h2>
<table>
<tr><th class="sym">Metric</th><th>Value</th></tr>
<tr><td class="sym">Total return</td><td>{{pct .Metrics.TotalReturn}}</td></tr>
<tr><td class="sym">Annualized return</td><td>{{pct .Metrics.AnnualizedReturn}}</td></tr>
<tr><td class="sym">Volatility (ann.)</td><td>{{pct .Metrics.Volatility}}</td></tr>
<tr><td class="sym">Sharpe ratio</td><td>{{printf "%.2f" .Metrics.SharpeRatio}}</td></tr>
<tr><td class="sym">Max drawdown</td><td>{{pct .Metrics.MaxDrawdown}}</td></tr>
<tr><td class="sym">Win rate</td><td>{{pct .Metrics.WinRate}}</td></tr>
<tr><td class="sym">Terminal value</td><td>{{money .Metrics.TerminalValue}}</td></tr>
</table>

<h2>Trades ({{len .Trades}})</h2>
<table>
<tr><th>Date</th><th class="sym">Symbol</th><th>Side</th><th>Price</th><th>Shares</th><th>Value</th><th>Commission</th></tr>
{{range .Trades}}
<tr>
<td>{{date .Date}}</td>
<td class="sym">{{.Symbol}}</td>
<td>{{.Side}}</td>
<td>{{money .Price}}</td>
<td>{{.Shares}}</td>
<td>{{money .Value}}</td>
<td>{{money .Commission}}</td>
</tr>
{{end}}
</table>

<h2>Daily values ({{len .Values}})</h2>
<table>
<tr><th>Date</th><th>Cash</th><th>Total value</th></tr>
{{range .Values}}
<tr><td>{{date .Date}}</td><td>{{money .Cash}}</td><td>{{money .TotalValue}}</td></tr>
{{end}}
</table>
</body>
</html>
`
