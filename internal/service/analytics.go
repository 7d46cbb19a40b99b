package service

import (
	"context"
	"strings"
	"time"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/report"
	"orderdesk/backend/internal/sales"
	"orderdesk/backend/internal/store"
)

const (
	dateLayout   = "2006-01-02"
	maxRangeDays = 366 * 5
)

// GetDailySales returns PAID sales per calendar day, zero-filled. The range
// defaults to the last 7 days ending today.
func (s *Service) GetDailySales(ctx context.Context, storeID string, from string, to string) (domain.DailySalesResponse, error) {
	storeID = s.storeOrDefault(storeID)
	start, end, err := s.parseRange(from, to, func(today time.Time) time.Time { return today.AddDate(0, 0, -6) })
	if err != nil {
		return domain.DailySalesResponse{}, err
	}

	facts, err := s.repo.ListSalesFacts(ctx, storeID, start, end.AddDate(0, 0, 1))
	if err != nil {
		return domain.DailySalesResponse{}, err
	}
	return domain.DailySalesResponse{
		StoreID: storeID,
		From:    start.Format(dateLayout),
		To:      end.Format(dateLayout),
		Days:    sales.DailySeries(facts, start, end, s.loc),
	}, nil
}

// GetSalesSeries buckets PAID sales by DAY, WEEK, MONTH or YEAR.
func (s *Service) GetSalesSeries(ctx context.Context, storeID string, period string, from string, to string) (domain.SalesSeriesResponse, error) {
	storeID = s.storeOrDefault(storeID)
	period = strings.ToUpper(strings.TrimSpace(period))
	if period == "" {
		period = domain.PeriodDay
	}
	if !sales.ValidPeriod(period) {
		return domain.SalesSeriesResponse{}, store.Invalid("period", "must be one of DAY WEEK MONTH YEAR")
	}

	start, end, err := s.parseRange(from, to, func(today time.Time) time.Time {
		switch period {
		case domain.PeriodWeek:
			return sales.WeekStart(today, s.loc).AddDate(0, 0, -7*7)
		case domain.PeriodMonth:
			return sales.MonthStart(today, s.loc).AddDate(0, -11, 0)
		case domain.PeriodYear:
			return time.Date(today.Year()-4, time.January, 1, 0, 0, 0, 0, s.loc)
		default:
			return today.AddDate(0, 0, -6)
		}
	})
	if err != nil {
		return domain.SalesSeriesResponse{}, err
	}

	facts, err := s.repo.ListSalesFacts(ctx, storeID, start, end.AddDate(0, 0, 1))
	if err != nil {
		return domain.SalesSeriesResponse{}, err
	}
	buckets, err := sales.Bucketize(facts, period, s.loc)
	if err != nil {
		return domain.SalesSeriesResponse{}, store.Invalid("period", err.Error())
	}
	return domain.SalesSeriesResponse{
		StoreID: storeID,
		Period:  period,
		From:    start.Format(dateLayout),
		To:      end.Format(dateLayout),
		Buckets: buckets,
	}, nil
}

// GetTopMenus ranks menus by PAID revenue. The range defaults to the
// current month up to today.
func (s *Service) GetTopMenus(ctx context.Context, storeID string, from string, to string) (domain.TopMenusResponse, error) {
	storeID = s.storeOrDefault(storeID)
	start, end, err := s.parseRange(from, to, func(today time.Time) time.Time { return sales.MonthStart(today, s.loc) })
	if err != nil {
		return domain.TopMenusResponse{}, err
	}

	lines, err := s.repo.ListSoldLines(ctx, storeID, start, end.AddDate(0, 0, 1))
	if err != nil {
		return domain.TopMenusResponse{}, err
	}
	menus, total := sales.TopMenus(lines, sales.DefaultTopMenuLimit)
	return domain.TopMenusResponse{
		StoreID:      storeID,
		From:         start.Format(dateLayout),
		To:           end.Format(dateLayout),
		TotalRevenue: total,
		Menus:        menus,
	}, nil
}

// GetDashboard compares the given day, its week to date and its month to
// date against the previous full day, week and month.
func (s *Service) GetDashboard(ctx context.Context, storeID string, date string) (domain.Dashboard, error) {
	storeID = s.storeOrDefault(storeID)
	day, err := s.parseDayOrToday(date, "date")
	if err != nil {
		return domain.Dashboard{}, err
	}
	next := day.AddDate(0, 0, 1)
	weekStart := sales.WeekStart(day, s.loc)
	monthStart := sales.MonthStart(day, s.loc)
	prevWeekStart := weekStart.AddDate(0, 0, -7)
	prevMonthStart := monthStart.AddDate(0, -1, 0)

	earliest := prevMonthStart
	if prevWeekStart.Before(earliest) {
		earliest = prevWeekStart
	}
	facts, err := s.repo.ListSalesFacts(ctx, storeID, earliest, next)
	if err != nil {
		return domain.Dashboard{}, err
	}

	card := func(curFrom, curTo, prevFrom, prevTo time.Time) domain.DashboardCard {
		cur := sales.SumBetween(facts, curFrom, curTo)
		prev := sales.SumBetween(facts, prevFrom, prevTo)
		return domain.DashboardCard{Current: cur, Previous: prev, Rate: sales.Rate(cur, prev)}
	}

	txs, err := s.repo.ListTransactions(ctx, storeID, day, next, 0)
	if err != nil {
		return domain.Dashboard{}, err
	}

	dash := domain.Dashboard{
		StoreID: storeID,
		Date:    day.Format(dateLayout),
		Today:   card(day, next, day.AddDate(0, 0, -1), day),
		Week:    card(weekStart, next, prevWeekStart, weekStart),
		Month:   card(monthStart, next, prevMonthStart, monthStart),
	}
	for _, tx := range txs {
		switch tx.Status {
		case domain.TxStatusPaid:
			dash.TodayTransactions++
		case domain.TxStatusCanceled:
			dash.TodayCanceledOrders++
			if tx.Cancellation != nil && tx.Cancellation.IsWaste {
				dash.TodayWasteCanceled++
			}
		}
	}
	return dash, nil
}

// GetMonthlyReport aggregates the month fresh on every call. Zero year or
// month selects the current month.
func (s *Service) GetMonthlyReport(ctx context.Context, storeID string, year int, month int) (domain.MonthlyReport, error) {
	storeID = s.storeOrDefault(storeID)
	now := s.now().In(s.loc)
	if year == 0 && month == 0 {
		year, month = now.Year(), int(now.Month())
	}
	if year < 2000 || year > 9999 {
		return domain.MonthlyReport{}, store.Invalid("year", "must be between 2000 and 9999")
	}
	if month < 1 || month > 12 {
		return domain.MonthlyReport{}, store.Invalid("month", "must be between 1 and 12")
	}

	start, end := report.MonthRange(year, time.Month(month), s.loc)
	prevStart := start.AddDate(0, -1, 0)

	thisMonth, err := s.repo.ListSalesFacts(ctx, storeID, start, end)
	if err != nil {
		return domain.MonthlyReport{}, err
	}
	lastMonth, err := s.repo.ListSalesFacts(ctx, storeID, prevStart, start)
	if err != nil {
		return domain.MonthlyReport{}, err
	}
	lines, err := s.repo.ListSoldLines(ctx, storeID, start, end)
	if err != nil {
		return domain.MonthlyReport{}, err
	}
	area, err := s.repo.GetAreaAverage(ctx, storeID, year, month)
	if err != nil {
		return domain.MonthlyReport{}, err
	}

	return report.Compose(report.Input{
		StoreID:     storeID,
		Year:        year,
		Month:       time.Month(month),
		Location:    s.loc,
		GeneratedAt: s.now().UTC(),
		ThisMonth:   thisMonth,
		LastMonth:   lastMonth,
		SoldLines:   lines,
		AreaAverage: area,
	}), nil
}

func (s *Service) today() time.Time {
	return sales.StartOfDay(s.now(), s.loc)
}

func (s *Service) parseDay(raw string, field string) (time.Time, error) {
	parsed, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), s.loc)
	if err != nil {
		return time.Time{}, store.Invalid(field, "must be YYYY-MM-DD")
	}
	return parsed, nil
}

func (s *Service) parseDayOrToday(raw string, field string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return s.today(), nil
	}
	return s.parseDay(raw, field)
}

// parseRange resolves an inclusive [from, to] day range. An empty to means
// today; an empty from is derived from to by defaultFrom.
func (s *Service) parseRange(from string, to string, defaultFrom func(time.Time) time.Time) (time.Time, time.Time, error) {
	end, err := s.parseDayOrToday(to, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	var start time.Time
	if strings.TrimSpace(from) == "" {
		start = defaultFrom(end)
	} else if start, err = s.parseDay(from, "from"); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, store.Invalid("from", "must not be after to")
	}
	if end.Sub(start) > maxRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, store.Invalid("from", "range is too long")
	}
	return start, end, nil
}
