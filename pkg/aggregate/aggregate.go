// Package aggregate contains pure functions over store snapshots: daily
// and weekly totals, progress classification and the dashboard
// recommendation. Nothing here mutates state or talks to the network.
package aggregate

import (
	"time"

	"calorieai/pkg/domain"
)

// Totals is the nutrition sum over a set of meals.
type Totals struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
	Fat      int `json:"fat"`
	Carbs    int `json:"carbs"`
}

// Add accumulates one meal into the totals.
func (t *Totals) Add(m domain.Meal) {
	t.Calories += m.Calories
	t.Protein += m.Protein
	t.Fat += m.Fat
	t.Carbs += m.Carbs
}

// DailyTotals sums nutrition for meals owned by userID whose timestamp
// falls within the local calendar day of `day`.
func DailyTotals(meals []domain.Meal, userID string, day time.Time) Totals {
	start := startOfDay(day)
	end := start.AddDate(0, 0, 1)
	var t Totals
	for _, m := range meals {
		if m.UserID != userID {
			continue
		}
		ts := m.Time()
		if !ts.Before(start) && ts.Before(end) {
			t.Add(m)
		}
	}
	return t
}

// DayPoint is one bar of the weekly calories chart.
type DayPoint struct {
	Label    string `json:"name"`
	Calories int    `json:"calories"`
	Goal     int    `json:"goal"`
}

var dayLabels = [7]string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}

// WeeklySeries produces 7 consecutive daily calorie sums ending on the
// day of `now`, each paired with its weekday label and the goal value.
func WeeklySeries(meals []domain.Meal, userID string, goal int, now time.Time) []DayPoint {
	series := make([]DayPoint, 0, 7)
	for i := 6; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		t := DailyTotals(meals, userID, day)
		series = append(series, DayPoint{
			Label:    dayLabels[int(day.Weekday())],
			Calories: t.Calories,
			Goal:     goal,
		})
	}
	return series
}

// Band is a three-tier progress classification shared by calories and
// macros.
type Band string

const (
	BandOver    Band = "over"
	BandNear    Band = "near"
	BandOnTrack Band = "on-track"
)

// Classify maps consumed/goal onto a band: over when consumed exceeds
// 110% of the goal, near above 85%, on-track otherwise. A non-positive
// goal always classifies as on-track.
func Classify(consumed, goal int) Band {
	if goal <= 0 {
		return BandOnTrack
	}
	ratio := float64(consumed) / float64(goal)
	switch {
	case ratio > 1.10:
		return BandOver
	case ratio > 0.85:
		return BandNear
	default:
		return BandOnTrack
	}
}

// Recommend returns at most one textual hint for today's intake, chosen
// by the first matching rule in priority order.
func Recommend(t Totals, goals domain.Goals, mealCount int) (string, bool) {
	if mealCount == 0 {
		return "", false
	}
	cal := float64(t.Calories)
	goalCal := float64(goals.Calories)
	switch {
	case cal > goalCal*1.10:
		return "Лимит калорий превышен. Снизьте порции.", true
	case float64(t.Protein) < float64(goals.Protein)*0.5 && cal > goalCal*0.6:
		return "Добавьте белка: мясо, рыба, творог.", true
	case float64(t.Fat) > float64(goals.Fat)*1.10:
		return "Жиры превышены. Выбирайте нежирные продукты.", true
	case cal >= goalCal*0.90 && cal <= goalCal*1.10:
		return "Отличный баланс! Так держать!", true
	default:
		return "", false
	}
}

// Period selects a timestamp threshold for history views.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// PeriodStart returns the inclusive lower bound for a period relative to
// `now`. The second return is false for PeriodAll (no bound). Weeks start
// on Monday, months on the 1st.
func PeriodStart(p Period, now time.Time) (time.Time, bool) {
	switch p {
	case PeriodToday:
		return startOfDay(now), true
	case PeriodWeek:
		daysBack := (int(now.Weekday()) + 6) % 7
		return startOfDay(now.AddDate(0, 0, -daysBack)), true
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), true
	default:
		return time.Time{}, false
	}
}

// FilterMeals keeps meals owned by userID within the period, preserving
// input order.
func FilterMeals(meals []domain.Meal, userID string, p Period, now time.Time) []domain.Meal {
	threshold, bounded := PeriodStart(p, now)
	out := make([]domain.Meal, 0, len(meals))
	for _, m := range meals {
		if m.UserID != userID {
			continue
		}
		if bounded && m.Time().Before(threshold) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// FilterWater keeps water entries owned by userID within the period.
func FilterWater(entries []domain.WaterEntry, userID string, p Period, now time.Time) []domain.WaterEntry {
	threshold, bounded := PeriodStart(p, now)
	out := make([]domain.WaterEntry, 0, len(entries))
	for _, w := range entries {
		if w.UserID != userID {
			continue
		}
		if bounded && w.Time().Before(threshold) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// WaterTotal sums water intake for userID on the local calendar day.
func WaterTotal(entries []domain.WaterEntry, userID string, day time.Time) int {
	start := startOfDay(day)
	end := start.AddDate(0, 0, 1)
	total := 0
	for _, w := range entries {
		if w.UserID != userID {
			continue
		}
		ts := w.Time()
		if !ts.Before(start) && ts.Before(end) {
			total += w.Amount
		}
	}
	return total
}

// ProgressPercent returns consumed/goal as a whole percentage capped at
// 100; zero when the goal is not positive.
func ProgressPercent(consumed, goal int) int {
	if goal <= 0 {
		return 0
	}
	pct := consumed * 100 / goal
	if pct > 100 {
		pct = 100
	}
	return pct
}

// DayGroup is one history section: all meals of a single calendar day,
// newest day first.
type DayGroup struct {
	Day   time.Time     `json:"day"`
	Meals []domain.Meal `json:"meals"`
}

// GroupByDay buckets meals by local calendar day, ordered newest day
// first. Meal order within a day follows input order.
func GroupByDay(meals []domain.Meal) []DayGroup {
	index := make(map[time.Time]int)
	var groups []DayGroup
	for _, m := range meals {
		day := startOfDay(m.Time())
		i, ok := index[day]
		if !ok {
			i = len(groups)
			index[day] = i
			groups = append(groups, DayGroup{Day: day})
		}
		groups[i].Meals = append(groups[i].Meals, m)
	}
	for i := 1; i < len(groups); i++ {
		for j := i; j > 0 && groups[j].Day.After(groups[j-1].Day); j-- {
			groups[j], groups[j-1] = groups[j-1], groups[j]
		}
	}
	return groups
}

// BMI computes body mass index from kilograms and centimeters; zero when
// height is not positive.
func BMI(weightKG, heightCM float64) float64 {
	if heightCM <= 0 {
		return 0
	}
	meters := heightCM / 100
	return weightKG / (meters * meters)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
