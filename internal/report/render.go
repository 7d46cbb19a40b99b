package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"orderdesk/backend/internal/domain"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func Filename(report domain.MonthlyReport, ext string) string {
	return fmt.Sprintf("monthly-report-%s-%04d-%02d.%s", report.StoreID, report.Year, report.Month, ext)
}

func ToCSV(report domain.MonthlyReport) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"section", "key", "value", "extra"},
		{"summary", "store_id", report.StoreID, ""},
		{"summary", "period", fmt.Sprintf("%04d-%02d", report.Year, report.Month), ""},
		{"summary", "last_month_total", strconv.FormatInt(report.Summary.LastMonthTotal, 10), ""},
		{"summary", "this_month_total", strconv.FormatInt(report.Summary.ThisMonthTotal, 10), ""},
		{"summary", "diff", strconv.FormatInt(report.Summary.Diff, 10), ""},
		{"summary", "rate", formatRate(report.Summary.Rate), ""},
	}
	for _, week := range report.WeeklySales {
		rows = append(rows, []string{
			"weekly",
			fmt.Sprintf("week_%d %s", week.WeekIndex, week.Label),
			strconv.FormatInt(week.MySales, 10),
			strconv.FormatInt(week.AreaAvgSales, 10),
		})
	}
	for _, menu := range report.TopMenus {
		rows = append(rows, []string{"top_menu", menu.MenuName, strconv.FormatInt(menu.Sales, 10), formatRate(menu.Rate)})
	}

	if err := w.WriteAll(rows); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var monthlyReportHTMLTmpl = template.Must(template.New("monthly-report").Funcs(template.FuncMap{
	"rate": formatRate,
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Monthly Report {{.Year}}-{{printf "%02d" .Month}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Monthly Report {{.Year}}-{{printf "%02d" .Month}}</h2>
  <p>Store: {{.StoreID}}</p>
  <p>This month: {{.Summary.ThisMonthTotal}} | Last month: {{.Summary.LastMonthTotal}} | Diff: {{.Summary.Diff}} | Rate: {{rate .Summary.Rate}}%</p>

  <h3>Weekly Sales</h3>
  <table>
    <thead><tr><th>Week</th><th>Period</th><th>My Sales</th><th>Area Average</th></tr></thead>
    <tbody>{{range .WeeklySales}}<tr><td>{{.WeekIndex}}</td><td>{{.Label}}</td><td class="num">{{.MySales}}</td><td class="num">{{.AreaAvgSales}}</td></tr>{{end}}</tbody>
  </table>

  <h3>Top Menus</h3>
  <table>
    <thead><tr><th>Menu</th><th>Sales</th><th>Share</th></tr></thead>
    <tbody>{{range .TopMenus}}<tr><td>{{.MenuName}}</td><td class="num">{{.Sales}}</td><td class="num">{{rate .Rate}}%</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

// ToHTML renders the printable report. Menu names are escaped by html/template.
func ToHTML(report domain.MonthlyReport) (string, error) {
	var buf bytes.Buffer
	if err := monthlyReportHTMLTmpl.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ToXLSX writes a workbook with summary, weekly and top menu sheets.
func ToXLSX(report domain.MonthlyReport, out io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return err
	}
	summary := [][]any{
		{"Store", report.StoreID},
		{"Period", fmt.Sprintf("%04d-%02d", report.Year, report.Month)},
		{"Last Month Total", report.Summary.LastMonthTotal},
		{"This Month Total", report.Summary.ThisMonthTotal},
		{"Diff", report.Summary.Diff},
		{"Rate (%)", report.Summary.Rate},
	}
	if err := writeRows(f, "Summary", summary); err != nil {
		return err
	}

	weekly := [][]any{{"Week", "Period", "My Sales", "Area Average"}}
	for _, week := range report.WeeklySales {
		weekly = append(weekly, []any{week.WeekIndex, week.Label, week.MySales, week.AreaAvgSales})
	}
	if _, err := f.NewSheet("Weekly"); err != nil {
		return err
	}
	if err := writeRows(f, "Weekly", weekly); err != nil {
		return err
	}

	top := [][]any{{"Menu", "Sales", "Share (%)"}}
	for _, menu := range report.TopMenus {
		top = append(top, []any{menu.MenuName, menu.Sales, menu.Rate})
	}
	if _, err := f.NewSheet("Top Menus"); err != nil {
		return err
	}
	if err := writeRows(f, "Top Menus", top); err != nil {
		return err
	}

	return f.Write(out)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 1, 64)
}
