package weather

import (
	"math"
	"sort"
	"time"

	"github.com/i474232898/weather-dashboard/internal/geo"
)

// AggregateReadings combines multiple provider readings into a single WeatherSnapshot.
// Numeric fields are averaged; conditions are selected by majority (or the
// alphabetically first on a tie, to keep results stable).
func AggregateReadings(at geo.Point, readings []ProviderReading) WeatherSnapshot {
	if len(readings) == 0 {
		return WeatherSnapshot{
			Coordinates: at,
			Timestamp:   time.Now().UTC(),
			Condition:   ConditionUnknown,
		}
	}

	var (
		sumTemp     float64
		sumHumidity float64
		sumWind     float64
		sumPressure float64
		sumPrecip   float64
	)

	conditions := make([]Condition, 0, len(readings))
	providers := make([]ProviderContribution, 0, len(readings))
	var newestTS time.Time

	for _, r := range readings {
		sumTemp += r.TemperatureC
		sumHumidity += r.HumidityPct
		sumWind += r.WindSpeedMS
		sumPressure += r.PressureHpa
		sumPrecip += r.PrecipMm

		conditions = append(conditions, r.Condition)

		if r.Timestamp.After(newestTS) {
			newestTS = r.Timestamp
		}

		providers = append(providers, ProviderContribution{
			ProviderName: r.ProviderName,
			Timestamp:    r.Timestamp,
		})
	}

	n := float64(len(readings))

	if newestTS.IsZero() {
		newestTS = time.Now().UTC()
	}

	return WeatherSnapshot{
		Coordinates: at,
		Timestamp:   newestTS,
		Temperature: sumTemp / n,
		Humidity:    sumHumidity / n,
		WindSpeed:   sumWind / n,
		Pressure:    sumPressure / n,
		PrecipMM:    sumPrecip / n,
		Condition:   majority(conditions),
		Providers:   providers,
	}
}

func majority(conditions []Condition) Condition {
	counts := make(map[Condition]int)
	for _, c := range conditions {
		if c == ConditionUnknown {
			continue
		}
		counts[c]++
	}

	best := ConditionUnknown
	bestCount := 0
	for cond, count := range counts {
		if count > bestCount || (count == bestCount && cond < best) {
			bestCount = count
			best = cond
		}
	}
	return best
}

// SummarizeDays folds hourly snapshots into per-day summaries, oldest first.
func SummarizeDays(hourly []WeatherSnapshot, maxDays int) []DailySummary {
	type acc struct {
		date       time.Time
		min, max   float64
		humidity   float64
		wind       float64
		precip     float64
		n          int
		conditions []Condition
	}

	days := make(map[string]*acc)
	for _, h := range hourly {
		ts := h.Timestamp.UTC()
		k := ts.Format("2006-01-02")
		a, ok := days[k]
		if !ok {
			a = &acc{
				date: time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
				min:  math.Inf(1),
				max:  math.Inf(-1),
			}
			days[k] = a
		}
		a.min = math.Min(a.min, h.Temperature)
		a.max = math.Max(a.max, h.Temperature)
		a.humidity += h.Humidity
		a.wind += h.WindSpeed
		a.precip += h.PrecipMM
		a.n++
		a.conditions = append(a.conditions, h.Condition)
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]DailySummary, 0, len(keys))
	for _, k := range keys {
		if maxDays > 0 && len(out) >= maxDays {
			break
		}
		a := days[k]
		n := float64(a.n)
		out = append(out, DailySummary{
			Date:      a.date,
			TempMin:   a.min,
			TempMax:   a.max,
			Humidity:  a.humidity / n,
			WindSpeed: a.wind / n,
			PrecipMM:  a.precip,
			Condition: majority(a.conditions),
		})
	}
	return out
}
