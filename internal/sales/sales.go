// Package sales turns PAID sales facts into period series, rates and menu
// rankings. Every function is pure and safe for concurrent use.
package sales

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"orderdesk/backend/internal/domain"
)

const DefaultTopMenuLimit = 5

var hundred = decimal.NewFromInt(100)

// Rate is the period-over-period change in percent, rounded to one decimal.
// A zero previous value yields 0.
func Rate(curr int64, prev int64) float64 {
	if prev == 0 {
		return 0
	}
	change := decimal.NewFromInt(curr - prev).Div(decimal.NewFromInt(prev))
	return percent(change)
}

// Share is part/total in percent, rounded to one decimal. A zero total yields 0.
func Share(part int64, total int64) float64 {
	if total == 0 {
		return 0
	}
	return percent(decimal.NewFromInt(part).Div(decimal.NewFromInt(total)))
}

func percent(ratio decimal.Decimal) float64 {
	f, _ := ratio.Mul(hundred).Round(1).Float64()
	return f
}

func ValidPeriod(period string) bool {
	switch period {
	case domain.PeriodDay, domain.PeriodWeek, domain.PeriodMonth, domain.PeriodYear:
		return true
	}
	return false
}

// StartOfDay truncates t to local midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// WeekStart returns Monday 00:00 of the week containing t.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	day := StartOfDay(t, loc)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func MonthStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

func bucketStart(t time.Time, period string, loc *time.Location) time.Time {
	switch period {
	case domain.PeriodWeek:
		return WeekStart(t, loc)
	case domain.PeriodMonth:
		return MonthStart(t, loc)
	case domain.PeriodYear:
		t = t.In(loc)
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc)
	default:
		return StartOfDay(t, loc)
	}
}

func bucketKeyLabel(start time.Time, period string) (string, string) {
	switch period {
	case domain.PeriodWeek:
		end := start.AddDate(0, 0, 6)
		return start.Format("2006-01-02"), start.Format("01.02") + "~" + end.Format("01.02")
	case domain.PeriodMonth:
		key := start.Format("2006-01")
		return key, key
	case domain.PeriodYear:
		key := start.Format("2006")
		return key, key
	default:
		key := start.Format("2006-01-02")
		return key, key
	}
}

// Bucketize sums facts into ascending period buckets. Each bucket's rate is
// against the bucket before it in the returned series; the first is 0.
func Bucketize(facts []domain.SalesFact, period string, loc *time.Location) ([]domain.PeriodBucket, error) {
	if !ValidPeriod(period) {
		return nil, fmt.Errorf("unsupported period %q", period)
	}

	sums := make(map[int64]int64)
	starts := make([]time.Time, 0, 16)
	for _, fact := range facts {
		start := bucketStart(fact.Time, period, loc)
		if _, ok := sums[start.Unix()]; !ok {
			starts = append(starts, start)
		}
		sums[start.Unix()] += fact.Amount
	}
	slices.SortFunc(starts, func(a, b time.Time) int { return a.Compare(b) })

	buckets := make([]domain.PeriodBucket, 0, len(starts))
	for i, start := range starts {
		key, label := bucketKeyLabel(start, period)
		bucket := domain.PeriodBucket{Key: key, Label: label, Sales: sums[start.Unix()]}
		if i > 0 {
			bucket.Rate = Rate(bucket.Sales, buckets[i-1].Sales)
		}
		buckets = append(buckets, bucket)
	}
	return buckets, nil
}

// DailySeries returns one entry per calendar date from..to inclusive,
// zero-filled for days without sales.
func DailySeries(facts []domain.SalesFact, from time.Time, to time.Time, loc *time.Location) []domain.DailySales {
	first := StartOfDay(from, loc)
	last := StartOfDay(to, loc)
	if last.Before(first) {
		return []domain.DailySales{}
	}

	sums := make(map[string]int64)
	for _, fact := range facts {
		sums[fact.Time.In(loc).Format("2006-01-02")] += fact.Amount
	}

	days := make([]domain.DailySales, 0, int(last.Sub(first).Hours()/24)+1)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		days = append(days, domain.DailySales{Date: key, Amount: sums[key]})
	}
	return days
}

// SumBetween totals facts with from <= time < to.
func SumBetween(facts []domain.SalesFact, from time.Time, to time.Time) int64 {
	var total int64
	for _, fact := range facts {
		if !fact.Time.Before(from) && fact.Time.Before(to) {
			total += fact.Amount
		}
	}
	return total
}

// TopMenus ranks menus by revenue, keeping first-appearance order on ties.
// Shares are taken over the revenue of every menu in lines, not only the
// returned ones. The second result is that total.
func TopMenus(lines []domain.SoldLine, limit int) ([]domain.TopMenu, int64) {
	index := make(map[string]int)
	menus := make([]domain.TopMenu, 0, 16)
	var total int64
	for _, line := range lines {
		total += line.Revenue
		i, ok := index[line.MenuID]
		if !ok {
			i = len(menus)
			index[line.MenuID] = i
			menus = append(menus, domain.TopMenu{MenuID: line.MenuID, Name: line.Name})
		}
		menus[i].Quantity += line.Quantity
		menus[i].Revenue += line.Revenue
	}

	slices.SortStableFunc(menus, func(a, b domain.TopMenu) int {
		switch {
		case a.Revenue > b.Revenue:
			return -1
		case a.Revenue < b.Revenue:
			return 1
		}
		return 0
	})
	if limit > 0 && len(menus) > limit {
		menus = menus[:limit]
	}
	for i := range menus {
		menus[i].Share = Share(menus[i].Revenue, total)
	}
	return menus, total
}

// Window is one Monday-anchored week of a month, clipped to the month.
// End is exclusive.
type Window struct {
	Index int
	Start time.Time
	End   time.Time
	Label string
}

// WeeksOfMonth splits a month into Monday-start weeks; week 1 contains the 1st.
func WeeksOfMonth(year int, month time.Month, loc *time.Location) []Window {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	next := first.AddDate(0, 1, 0)

	windows := make([]Window, 0, 6)
	for start, idx := WeekStart(first, loc), 1; start.Before(next); start, idx = start.AddDate(0, 0, 7), idx+1 {
		winStart := start
		if winStart.Before(first) {
			winStart = first
		}
		winEnd := start.AddDate(0, 0, 7)
		if winEnd.After(next) {
			winEnd = next
		}
		windows = append(windows, Window{
			Index: idx,
			Start: winStart,
			End:   winEnd,
			Label: winStart.Format("01.02") + "~" + winEnd.AddDate(0, 0, -1).Format("01.02"),
		})
	}
	return windows
}
