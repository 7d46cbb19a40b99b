// Package report composes the monthly sales report and renders it for export.
package report

import (
	"time"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/sales"
)

// Input is everything Compose reads. Facts and lines must already be
// restricted to PAID transactions of the respective month.
type Input struct {
	StoreID     string
	Year        int
	Month       time.Month
	Location    *time.Location
	GeneratedAt time.Time
	ThisMonth   []domain.SalesFact
	LastMonth   []domain.SalesFact
	SoldLines   []domain.SoldLine
	AreaAverage []domain.AreaAverage
}

// Compose builds a point-in-time report. Cancellations made afterwards are
// not reflected in an already returned report.
func Compose(in Input) domain.MonthlyReport {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	thisTotal := total(in.ThisMonth)
	lastTotal := total(in.LastMonth)

	areaByWeek := make(map[int]int64, len(in.AreaAverage))
	for _, avg := range in.AreaAverage {
		areaByWeek[avg.WeekIndex] = avg.Amount
	}

	windows := sales.WeeksOfMonth(in.Year, in.Month, loc)
	weekly := make([]domain.WeeklySales, 0, len(windows))
	for _, win := range windows {
		weekly = append(weekly, domain.WeeklySales{
			WeekIndex:    win.Index,
			Label:        win.Label,
			MySales:      sales.SumBetween(in.ThisMonth, win.Start, win.End),
			AreaAvgSales: areaByWeek[win.Index],
		})
	}

	ranked, _ := sales.TopMenus(in.SoldLines, sales.DefaultTopMenuLimit)
	topMenus := make([]domain.ReportTopMenu, 0, len(ranked))
	for _, menu := range ranked {
		topMenus = append(topMenus, domain.ReportTopMenu{
			MenuName: menu.Name,
			Sales:    menu.Revenue,
			Rate:     menu.Share,
		})
	}

	return domain.MonthlyReport{
		StoreID:     in.StoreID,
		Year:        in.Year,
		Month:       int(in.Month),
		GeneratedAt: in.GeneratedAt,
		Summary: domain.MonthlySummary{
			LastMonthTotal: lastTotal,
			ThisMonthTotal: thisTotal,
			Diff:           thisTotal - lastTotal,
			Rate:           sales.Rate(thisTotal, lastTotal),
		},
		WeeklySales: weekly,
		TopMenus:    topMenus,
	}
}

// MonthRange returns [start of month, start of next month) in loc.
func MonthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

func total(facts []domain.SalesFact) int64 {
	var sum int64
	for _, fact := range facts {
		sum += fact.Amount
	}
	return sum
}
