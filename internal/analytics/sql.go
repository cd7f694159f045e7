package analytics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/couchcryptid/accidents-etl/internal/domain"
)

// locationSampleThreshold and locationSampleLimit cap map payloads: above the
// threshold only the most recent locationSampleLimit points are returned.
const (
	locationSampleThreshold = 10000
	locationSampleLimit     = 5000
)

// topStreetsLimit bounds the street ranking.
const topStreetsLimit = 10

func quoteTable(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// arrayElements expands a JSONB column into one row per array element, treating
// NULL and non-array values as empty.
func arrayElements(column, alias string) string {
	return fmt.Sprintf(
		"jsonb_array_elements(CASE WHEN jsonb_typeof(%s) = 'array' THEN %s ELSE '[]'::jsonb END) %s(item)",
		column, column, alias)
}

// weatherCategorySQL renders domain.WeatherRules as a CASE over the weather alias w.
// Accidents whose day has no weather row are labelled unknown, not cloudy.
func weatherCategorySQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CASE WHEN w.date IS NULL THEN '%s'", domain.UnknownWeatherCategory)
	for _, rule := range domain.WeatherRules {
		fmt.Fprintf(&b, " WHEN w.%s > %s THEN '%s'",
			rule.Column, strconv.FormatFloat(rule.Threshold, 'f', -1, 64), rule.Category)
	}
	fmt.Fprintf(&b, " ELSE '%s' END", domain.DefaultWeatherCategory)
	return b.String()
}

// ageBracketSQL renders domain.AgeBrackets as a CASE over an integer expression.
func ageBracketSQL(age string) string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, bracket := range domain.AgeBrackets {
		if bracket.Max < 0 {
			fmt.Fprintf(&b, " WHEN %s >= %d THEN '%s'", age, bracket.Min, bracket.Label)
			continue
		}
		fmt.Fprintf(&b, " WHEN %s BETWEEN %d AND %d THEN '%s'", age, bracket.Min, bracket.Max, bracket.Label)
	}
	fmt.Fprintf(&b, " ELSE '%s' END", domain.UnknownAgeBracket)
	return b.String()
}

// casualtyAgeSQL extracts an integer casualty age, or NULL when the value is
// missing or not a plain non-negative integer.
const casualtyAgeSQL = `CASE WHEN c.item->>'age' ~ '^[0-9]{1,3}$' THEN (c.item->>'age')::int END`

// weekdaySQL names the day of week of the accident date.
func weekdaySQL() string {
	var b strings.Builder
	b.WriteString("CASE EXTRACT(DOW FROM a.accident_date)::int")
	for d := time.Sunday; d <= time.Saturday; d++ {
		fmt.Fprintf(&b, " WHEN %d THEN '%s'", int(d), d)
	}
	b.WriteString(" END")
	return b.String()
}

// queryBuilder renders the fixed statements against configured table names.
type queryBuilder struct {
	accidents string
	weather   string
}

func newQueryBuilder(accidentTable, weatherTable string) queryBuilder {
	return queryBuilder{accidents: quoteTable(accidentTable), weather: quoteTable(weatherTable)}
}

func (q queryBuilder) severityBreakdown(where string) string {
	return fmt.Sprintf(`SELECT a.severity, COUNT(*) AS count
FROM %s a
%s
GROUP BY a.severity
ORDER BY count DESC`, q.accidents, where)
}

func (q queryBuilder) transportModes(where string) string {
	return fmt.Sprintf(`SELECT v.item->>'type' AS vehicle_type, COUNT(v.item) AS count
FROM %s a
LEFT JOIN LATERAL %s ON true
%s
GROUP BY vehicle_type
HAVING COUNT(v.item) > 0
ORDER BY count DESC`, q.accidents, arrayElements("a.vehicles", "v"), where)
}

func (q queryBuilder) boroughSummary(where string) string {
	return fmt.Sprintf(`SELECT a.borough,
	COUNT(*) AS total_accidents,
	COUNT(*) FILTER (WHERE a.severity = 'Slight') AS slight_accidents,
	COUNT(*) FILTER (WHERE a.severity = 'Serious') AS serious_accidents,
	COUNT(*) FILTER (WHERE a.severity = 'Fatal') AS fatal_accidents
FROM %s a
%s
GROUP BY a.borough
ORDER BY total_accidents DESC`, q.accidents, where)
}

func (q queryBuilder) monthlyTrends(where string) string {
	return fmt.Sprintf(`SELECT TRIM(TO_CHAR(a.accident_date, 'Month')) AS month_name,
	EXTRACT(MONTH FROM a.accident_date)::int AS month_number,
	COUNT(*) AS accident_count
FROM %s a
%s
GROUP BY month_name, month_number
ORDER BY month_number`, q.accidents, where)
}

func (q queryBuilder) yearlyTrends(where string) string {
	return fmt.Sprintf(`SELECT EXTRACT(YEAR FROM a.accident_date)::int AS accident_year,
	COUNT(*) AS accident_count
FROM %s a
%s
GROUP BY accident_year
ORDER BY accident_year`, q.accidents, where)
}

func (q queryBuilder) topStreets(where string, limitParam int) string {
	return fmt.Sprintf(`SELECT a.borough, a.location AS street_name, COUNT(*) AS accident_count
FROM %s a
%s
GROUP BY a.borough, a.location
ORDER BY accident_count DESC
LIMIT $%d`, q.accidents, where, limitParam)
}

func (q queryBuilder) locationCount(where string) string {
	return fmt.Sprintf(`SELECT COUNT(*) AS total
FROM %s a
%s`, q.accidents, where)
}

func (q queryBuilder) locations(where string, limitParam int) string {
	return fmt.Sprintf(`SELECT a.lat, a.lon
FROM %s a
%s
ORDER BY a.accident_date DESC
LIMIT $%d`, q.accidents, where, limitParam)
}

func (q queryBuilder) weatherTrends(where string, bySeverity bool) string {
	if bySeverity {
		return fmt.Sprintf(`SELECT %s AS weather_category, a.severity, COUNT(*) AS accident_count
FROM %s a
LEFT JOIN %s w ON w.date = a.accident_date::date
%s
GROUP BY weather_category, a.severity
ORDER BY weather_category, a.severity`, weatherCategorySQL(), q.accidents, q.weather, where)
	}
	return fmt.Sprintf(`SELECT %s AS weather_category, COUNT(*) AS accident_count
FROM %s a
LEFT JOIN %s w ON w.date = a.accident_date::date
%s
GROUP BY weather_category
ORDER BY accident_count DESC`, weatherCategorySQL(), q.accidents, q.weather, where)
}

func (q queryBuilder) weekdayVsWeekend(where string) string {
	return fmt.Sprintf(`SELECT CASE WHEN EXTRACT(DOW FROM a.accident_date) IN (0, 6) THEN 'Weekend' ELSE 'Weekday' END AS day_type,
	COUNT(*) AS accident_count
FROM %s a
%s
GROUP BY day_type
ORDER BY accident_count DESC`, q.accidents, where)
}

func (q queryBuilder) weekdayRanking(where string) string {
	return fmt.Sprintf(`SELECT %s AS weekday, COUNT(*) AS accident_count
FROM %s a
%s
GROUP BY weekday
ORDER BY accident_count DESC`, weekdaySQL(), q.accidents, where)
}

func (q queryBuilder) ageBrackets(where, countAlias string) string {
	return fmt.Sprintf(`SELECT %s AS age_group, COUNT(*) AS %s
FROM %s a
CROSS JOIN LATERAL %s
%s
GROUP BY age_group
ORDER BY age_group`, ageBracketSQL(casualtyAgeSQL), countAlias, q.accidents, arrayElements("a.casualties", "c"), where)
}

func (q queryBuilder) distinctYears() string {
	return fmt.Sprintf(`SELECT DISTINCT EXTRACT(YEAR FROM a.accident_date)::int AS year
FROM %s a
WHERE a.accident_date IS NOT NULL
ORDER BY year DESC`, q.accidents)
}

func (q queryBuilder) distinctColumn(column string) string {
	return fmt.Sprintf(`SELECT DISTINCT a.%s
FROM %s a
WHERE a.%s IS NOT NULL
ORDER BY a.%s`, column, q.accidents, column, column)
}
