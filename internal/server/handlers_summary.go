package server

import (
	"net/http"
	"strings"
	"time"

	"calorieai/internal/store"
	"calorieai/pkg/aggregate"
	"calorieai/pkg/domain"
)

type macroProgress struct {
	Consumed int            `json:"consumed"`
	Goal     int            `json:"goal"`
	Percent  int            `json:"percent"`
	Band     aggregate.Band `json:"band"`
}

type todaySummary struct {
	Date           string        `json:"date"`
	Calories       macroProgress `json:"calories"`
	Protein        macroProgress `json:"protein"`
	Fat            macroProgress `json:"fat"`
	Carbs          macroProgress `json:"carbs"`
	Water          macroProgress `json:"water"`
	MealCount      int           `json:"mealCount"`
	Recommendation string        `json:"recommendation,omitempty"`
}

func progress(consumed, goal int) macroProgress {
	return macroProgress{
		Consumed: consumed,
		Goal:     goal,
		Percent:  aggregate.ProgressPercent(consumed, goal),
		Band:     aggregate.Classify(consumed, goal),
	}
}

func (s *Server) handleSummaryToday(w http.ResponseWriter, r *http.Request, st *store.Store) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, ok := st.CurrentUser()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	now := time.Now()
	meals := st.Meals()
	totals := aggregate.DailyTotals(meals, user.ID, now)
	mealCount := len(aggregate.FilterMeals(meals, user.ID, aggregate.PeriodToday, now))
	water := aggregate.WaterTotal(st.Water(), user.ID, now)

	summary := todaySummary{
		Date:      now.Format("2006-01-02"),
		Calories:  progress(totals.Calories, user.Goals.Calories),
		Protein:   progress(totals.Protein, user.Goals.Protein),
		Fat:       progress(totals.Fat, user.Goals.Fat),
		Carbs:     progress(totals.Carbs, user.Goals.Carbs),
		Water:     progress(water, user.WaterGoal),
		MealCount: mealCount,
	}
	if hint, ok := aggregate.Recommend(totals, user.Goals, mealCount); ok {
		summary.Recommendation = hint
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSummaryWeek(w http.ResponseWriter, r *http.Request, st *store.Store) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, ok := st.CurrentUser()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	series := aggregate.WeeklySeries(st.Meals(), user.ID, user.Goals.Calories, time.Now())
	writeJSON(w, http.StatusOK, map[string]any{"days": series})
}

type historyDay struct {
	Day    string           `json:"day"`
	Totals aggregate.Totals `json:"totals"`
	Meals  []domain.Meal    `json:"meals"`
}

type historyResponse struct {
	Period    aggregate.Period `json:"period"`
	Days      []historyDay     `json:"days"`
	MealCount int              `json:"mealCount"`
	WaterML   int              `json:"waterML"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, st *store.Store) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, ok := st.CurrentUser()
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	period := parsePeriod(r.URL.Query().Get("period"))
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	now := time.Now()

	meals := aggregate.FilterMeals(st.Meals(), user.ID, period, now)
	if query != "" {
		meals = searchMeals(meals, query)
	}

	waterML := 0
	for _, entry := range aggregate.FilterWater(st.Water(), user.ID, period, now) {
		waterML += entry.Amount
	}

	days := make([]historyDay, 0)
	for _, group := range aggregate.GroupByDay(meals) {
		var t aggregate.Totals
		for _, m := range group.Meals {
			t.Add(m)
		}
		days = append(days, historyDay{
			Day:    group.Day.Format("2006-01-02"),
			Totals: t,
			Meals:  group.Meals,
		})
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Period:    period,
		Days:      days,
		MealCount: len(meals),
		WaterML:   waterML,
	})
}

func parsePeriod(raw string) aggregate.Period {
	switch aggregate.Period(strings.ToLower(strings.TrimSpace(raw))) {
	case aggregate.PeriodToday:
		return aggregate.PeriodToday
	case aggregate.PeriodMonth:
		return aggregate.PeriodMonth
	case aggregate.PeriodAll:
		return aggregate.PeriodAll
	default:
		return aggregate.PeriodWeek
	}
}

// searchMeals keeps meals whose name contains the query, case-insensitive.
func searchMeals(meals []domain.Meal, query string) []domain.Meal {
	query = strings.ToLower(query)
	out := make([]domain.Meal, 0, len(meals))
	for _, m := range meals {
		if strings.Contains(strings.ToLower(m.Name), query) {
			out = append(out, m)
		}
	}
	return out
}
