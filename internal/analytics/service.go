// Package analytics runs the fixed aggregate queries behind the dashboard.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/couchcryptid/accidents-etl/internal/observability"
)

// Query names accepted by Run.
const (
	QuerySeverity        = "severity"
	QueryTransportModes  = "transport-modes"
	QueryBoroughs        = "boroughs"
	QueryMonthlyTrends   = "monthly-trends"
	QueryYearlyTrends    = "yearly-trends"
	QueryTopStreets      = "top-streets"
	QueryLocations       = "locations"
	QueryWeather         = "weather"
	QueryWeekdayWeekend  = "weekday-weekend"
	QueryWeekdayRanking  = "weekday-ranking"
	QueryAgeGroups       = "age-groups"
	QueryFatalitiesByAge = "fatalities-by-age"
)

// ErrUnknownQuery is returned by Run for a name it does not serve.
var ErrUnknownQuery = errors.New("unknown analytics query")

// Table is a query result in column order. Total is set only for locations,
// where Rows may be a sample of the matching population.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Total   *int64   `json:"total,omitempty"`
}

// Options carries per-query switches that are not filters.
type Options struct {
	BySeverity bool
}

// FilterOptions lists the distinct values a dashboard can filter on.
type FilterOptions struct {
	Years      []int    `json:"years"`
	Boroughs   []string `json:"boroughs"`
	Severities []string `json:"severities"`
}

// Service executes analytics queries and caches their results.
type Service struct {
	db      *sql.DB
	queries queryBuilder
	cache   *cache.Cache
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService creates a Service reading accidentTable and weatherTable. A zero
// cacheTTL disables caching.
func NewService(db *sql.DB, accidentTable, weatherTable string, cacheTTL time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Service {
	s := &Service{
		db:      db,
		queries: newQueryBuilder(accidentTable, weatherTable),
		metrics: metrics,
		logger:  logger,
	}
	if cacheTTL > 0 {
		s.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return s
}

// Names lists the queries Run accepts.
func Names() []string {
	names := []string{
		QuerySeverity, QueryTransportModes, QueryBoroughs, QueryMonthlyTrends,
		QueryYearlyTrends, QueryTopStreets, QueryLocations, QueryWeather,
		QueryWeekdayWeekend, QueryWeekdayRanking, QueryAgeGroups, QueryFatalitiesByAge,
	}
	slices.Sort(names)
	return names
}

// Run executes the named query under filter f.
func (s *Service) Run(ctx context.Context, name string, f Filter, opts Options) (Table, error) {
	switch name {
	case QuerySeverity:
		return s.SeverityBreakdown(ctx, f)
	case QueryTransportModes:
		return s.TransportModes(ctx, f)
	case QueryBoroughs:
		return s.BoroughSummary(ctx, f)
	case QueryMonthlyTrends:
		return s.MonthlyTrends(ctx, f)
	case QueryYearlyTrends:
		return s.YearlyTrends(ctx, f)
	case QueryTopStreets:
		return s.TopStreets(ctx, f)
	case QueryLocations:
		return s.Locations(ctx, f)
	case QueryWeather:
		return s.WeatherTrends(ctx, f, opts.BySeverity)
	case QueryWeekdayWeekend:
		return s.WeekdayVsWeekend(ctx, f)
	case QueryWeekdayRanking:
		return s.WeekdayRanking(ctx, f)
	case QueryAgeGroups:
		return s.AccidentsByAgeGroup(ctx, f)
	case QueryFatalitiesByAge:
		return s.FatalitiesByAgeGroup(ctx, f)
	default:
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownQuery, name)
	}
}

// SeverityBreakdown counts accidents per severity, largest first.
func (s *Service) SeverityBreakdown(ctx context.Context, f Filter) (Table, error) {
	return s.cached(ctx, QuerySeverity, f, s.queries.severityBreakdown)
}

// TransportModes counts vehicles involved per vehicle type.
func (s *Service) TransportModes(ctx context.Context, f Filter) (Table, error) {
	return s.cached(ctx, QueryTransportModes, f, s.queries.transportModes)
}

// BoroughSummary returns total, slight, serious and fatal counts per borough.
func (s *Service) BoroughSummary(ctx context.Context, f Filter) (Table, error) {
	return s.cached(ctx, QueryBoroughs, f, s.queries.boroughSummary)
}

// MonthlyTrends counts accidents per calendar month.
func (s *Service) MonthlyTrends(ctx context.Context, f Filter) (Table, error) {
	return s.cached(ctx, QueryMonthlyTrends, f, s.queries.monthlyTrends)
}

// YearlyTrends counts accidents per year.
func (s *Service) YearlyTrends(ctx context.Context, f Filter) (Table, error) {
	return s.cached(ctx, QueryYearlyTrends, f, s.queries.yearlyTrends)
}

// TopStreets ranks the ten (borough, street) pairs with the most accidents.
func (s *Service) TopStreets(ctx context.Context, f Filter) (Table, error) {
	return s.cachedTable(ctx, QueryTopStreets, f, func(ctx context.Context) (Table, error) {
		where, args := f.Where()
		return s.query(ctx, QueryTopStreets, s.queries.topStreets(where, len(args)+1), append(args, topStreetsLimit)...)
	})
}

// Locations returns accident coordinates and the size of the filtered
// population. Above 10000 matches only the 5000 most recent are returned.
func (s *Service) Locations(ctx context.Context, f Filter) (Table, error) {
	return s.cachedTable(ctx, QueryLocations, f, func(ctx context.Context) (Table, error) {
		where, args := f.Where()

		var total int64
		if err := s.db.QueryRowContext(ctx, s.queries.locationCount(where), args...).Scan(&total); err != nil {
			return Table{}, fmt.Errorf("count locations: %w", err)
		}

		t, err := s.query(ctx, QueryLocations, s.queries.locations(where, len(args)+1), append(args, locationLimit(total))...)
		if err != nil {
			return Table{}, err
		}
		t.Total = &total
		return t, nil
	})
}

func locationLimit(total int64) int64 {
	if total > locationSampleThreshold {
		return locationSampleLimit
	}
	return total
}

// WeatherTrends counts accidents per weather category of the accident day,
// optionally split by severity.
func (s *Service) WeatherTrends(ctx context.Context, f Filter, bySeverity bool) (Table, error) {
	name := QueryWeather
	if bySeverity {
		name += ":by-severity"
	}
	return s.cached(ctx, name, f, func(where string) string {
		return s.queries.weatherTrends(where, bySeverity)
	})
}

// WeekdayVsWeekend compares weekday and weekend accident counts.
func (s *Service) WeekdayVsWeekend(ctx context.Context, f Filter) (Table, error) {
	return s.cached(ctx, QueryWeekdayWeekend, f, s.queries.weekdayVsWeekend)
}

// WeekdayRanking ranks days of the week by accident count.
func (s *Service) WeekdayRanking(ctx context.Context, f Filter) (Table, error) {
	return s.cached(ctx, QueryWeekdayRanking, f, s.queries.weekdayRanking)
}

// AccidentsByAgeGroup counts casualties per age bracket.
func (s *Service) AccidentsByAgeGroup(ctx context.Context, f Filter) (Table, error) {
	return s.cached(ctx, QueryAgeGroups, f, func(where string) string {
		return s.queries.ageBrackets(where, "accident_count")
	})
}

// FatalitiesByAgeGroup counts casualties of fatal accidents per age bracket.
func (s *Service) FatalitiesByAgeGroup(ctx context.Context, f Filter) (Table, error) {
	fatal := f.With(SeverityEquals("Fatal"))
	return s.cached(ctx, QueryFatalitiesByAge, fatal, func(where string) string {
		return s.queries.ageBrackets(where, "fatality_count")
	})
}

// FilterOptions returns the distinct years, boroughs and severities present.
func (s *Service) FilterOptions(ctx context.Context) (FilterOptions, error) {
	var opts FilterOptions

	years, err := s.query(ctx, "filter-years", s.queries.distinctYears())
	if err != nil {
		return opts, err
	}
	for _, row := range years.Rows {
		if y, ok := row[0].(int64); ok {
			opts.Years = append(opts.Years, int(y))
		}
	}

	if opts.Boroughs, err = s.distinctStrings(ctx, "borough"); err != nil {
		return opts, err
	}
	if opts.Severities, err = s.distinctStrings(ctx, "severity"); err != nil {
		return opts, err
	}
	return opts, nil
}

func (s *Service) distinctStrings(ctx context.Context, column string) ([]string, error) {
	t, err := s.query(ctx, "filter-"+column, s.queries.distinctColumn(column))
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if v, ok := row[0].(string); ok {
			values = append(values, v)
		}
	}
	return values, nil
}

// cached runs a statement whose only parameters are the filter's.
func (s *Service) cached(ctx context.Context, name string, f Filter, render func(where string) string) (Table, error) {
	return s.cachedTable(ctx, name, f, func(ctx context.Context) (Table, error) {
		where, args := f.Where()
		return s.query(ctx, name, render(where), args...)
	})
}

func (s *Service) cachedTable(ctx context.Context, name string, f Filter, run func(context.Context) (Table, error)) (Table, error) {
	if s.cache == nil {
		return run(ctx)
	}
	key := name + "?" + f.Key()
	if v, ok := s.cache.Get(key); ok {
		s.metrics.QueryCache.WithLabelValues("hit").Inc()
		return v.(Table).clone(), nil
	}
	s.metrics.QueryCache.WithLabelValues("miss").Inc()

	t, err := run(ctx)
	if err != nil {
		return Table{}, err
	}
	s.cache.SetDefault(key, t.clone())
	return t, nil
}

// clone copies the row slices and total so callers never share them with the cache.
func (t Table) clone() Table {
	out := Table{Columns: slices.Clone(t.Columns), Rows: make([][]any, len(t.Rows))}
	for i, row := range t.Rows {
		out.Rows[i] = slices.Clone(row)
	}
	if t.Total != nil {
		total := *t.Total
		out.Total = &total
	}
	return out
}

func (s *Service) query(ctx context.Context, name, stmt string, args ...any) (Table, error) {
	start := time.Now()
	defer func() {
		s.metrics.QueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return Table{}, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Table{}, fmt.Errorf("query %s columns: %w", name, err)
	}

	t := Table{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, fmt.Errorf("scan %s: %w", name, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate %s: %w", name, err)
	}

	s.logger.Debug("analytics query", "query", name, "rows", len(t.Rows), "duration", time.Since(start))
	return t, nil
}
