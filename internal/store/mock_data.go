package store

import (
	"time"

	"calorieai/internal/util"
	"calorieai/pkg/domain"
)

const dayMS = int64(24 * time.Hour / time.Millisecond)

type demoMeal struct {
	name     string
	calories int
	protein  int
	fat      int
	carbs    int
	weightG  int
	offsetMS int64 // subtracted from now
}

var demoMeals = []demoMeal{
	{"Овсянка с бананом и мёдом", 320, 10, 5, 60, 250, dayMS*0 + 7_200_000},
	{"Куриная грудка с рисом", 480, 45, 8, 52, 350, dayMS*0 + 3_600_000},
	{"Греческий йогурт с ягодами", 150, 15, 3, 18, 200, dayMS*0 + 1_800_000},
	{"Борщ со сметаной", 290, 12, 10, 35, 400, dayMS*1 + 3_600_000},
	{"Гречка с котлетой", 520, 38, 15, 55, 350, dayMS*1 + 7_200_000},
	{"Салат Цезарь с курицей", 380, 28, 22, 18, 300, dayMS*2 + 3_600_000},
	{"Пицца Маргарита (2 кусочка)", 540, 20, 18, 72, 280, dayMS*3 + 5_400_000},
	{"Творог 5% с ягодами", 180, 22, 5, 14, 200, dayMS*4 + 3_600_000},
	{"Лосось на гриле с овощами", 420, 42, 20, 12, 300, dayMS*5 + 3_600_000},
	{"Суп-пюре из тыквы", 160, 5, 6, 22, 350, dayMS*6 + 5_400_000},
}

// One water entry per day of the demo week.
var demoWaterOffsets = []struct {
	amount   int
	offsetMS int64
}{
	{250, dayMS*0 + 5_400_000},
	{500, dayMS*0 + 1_800_000},
	{250, dayMS*1 + 3_600_000},
	{330, dayMS*2 + 3_600_000},
	{500, dayMS*3 + 5_400_000},
	{250, dayMS*4 + 3_600_000},
	{500, dayMS*5 + 3_600_000},
}

// demoDataset builds the demo meals and water log for userID, with
// timestamps spread over the week ending at now.
func demoDataset(userID string, now time.Time) ([]domain.Meal, []domain.WaterEntry) {
	nowMS := now.UnixMilli()
	meals := make([]domain.Meal, 0, len(demoMeals))
	for _, d := range demoMeals {
		meals = append(meals, domain.Meal{
			ID:        "demo_" + util.NewID(),
			UserID:    userID,
			Name:      d.name,
			Calories:  d.calories,
			Protein:   d.protein,
			Fat:       d.fat,
			Carbs:     d.carbs,
			WeightG:   d.weightG,
			Timestamp: nowMS - d.offsetMS,
		})
	}
	water := make([]domain.WaterEntry, 0, len(demoWaterOffsets))
	for _, d := range demoWaterOffsets {
		water = append(water, domain.WaterEntry{
			ID:        "demo_" + util.NewID(),
			UserID:    userID,
			Amount:    d.amount,
			Timestamp: nowMS - d.offsetMS,
		})
	}
	return meals, water
}
