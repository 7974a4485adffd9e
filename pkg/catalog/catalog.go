// Package catalog is the static reference table of common foods used for
// quick manual entry. Items are immutable and not user-owned.
package catalog

import "strings"

// Item holds nutrition for the stated portion weight.
type Item struct {
	Name     string `json:"name"`
	Calories int    `json:"calories"`
	Protein  int    `json:"protein"`
	Fat      int    `json:"fat"`
	Carbs    int    `json:"carbs"`
	WeightG  int    `json:"weight_g"`
}

// DefaultLimit is how many items an empty query returns.
const DefaultLimit = 10

// Search returns items whose name contains the query, case-insensitive,
// in catalog order. An empty or whitespace query returns the first
// DefaultLimit entries. An empty result is valid, never an error.
func Search(query string) []Item {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		n := DefaultLimit
		if n > len(items) {
			n = len(items)
		}
		return append([]Item(nil), items[:n]...)
	}
	var out []Item
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), q) {
			out = append(out, item)
		}
	}
	return out
}

// All returns the full catalog in table order.
func All() []Item {
	return append([]Item(nil), items...)
}

var items = []Item{
	{Name: "Куриная грудка отварная", Calories: 165, Protein: 31, Fat: 4, Carbs: 0, WeightG: 100},
	{Name: "Куриное филе жареное", Calories: 210, Protein: 30, Fat: 9, Carbs: 1, WeightG: 100},
	{Name: "Курица гриль", Calories: 184, Protein: 26, Fat: 8, Carbs: 0, WeightG: 100},
	{Name: "Гречка варёная", Calories: 110, Protein: 4, Fat: 1, Carbs: 21, WeightG: 100},
	{Name: "Рис белый варёный", Calories: 130, Protein: 3, Fat: 0, Carbs: 28, WeightG: 100},
	{Name: "Овсянка на воде", Calories: 88, Protein: 3, Fat: 2, Carbs: 15, WeightG: 100},
	{Name: "Овсянка на молоке", Calories: 102, Protein: 4, Fat: 4, Carbs: 14, WeightG: 100},
	{Name: "Яйцо куриное варёное", Calories: 78, Protein: 6, Fat: 5, Carbs: 1, WeightG: 50},
	{Name: "Яичница из 2 яиц", Calories: 196, Protein: 13, Fat: 15, Carbs: 1, WeightG: 110},
	{Name: "Творог 5%", Calories: 121, Protein: 17, Fat: 5, Carbs: 2, WeightG: 100},
	{Name: "Творог обезжиренный", Calories: 71, Protein: 16, Fat: 0, Carbs: 1, WeightG: 100},
	{Name: "Греческий йогурт", Calories: 66, Protein: 5, Fat: 3, Carbs: 4, WeightG: 100},
	{Name: "Банан", Calories: 89, Protein: 1, Fat: 0, Carbs: 23, WeightG: 100},
	{Name: "Яблоко", Calories: 52, Protein: 0, Fat: 0, Carbs: 14, WeightG: 100},
	{Name: "Апельсин", Calories: 47, Protein: 1, Fat: 0, Carbs: 12, WeightG: 100},
	{Name: "Лосось на гриле", Calories: 208, Protein: 20, Fat: 13, Carbs: 0, WeightG: 100},
	{Name: "Тунец консервированный", Calories: 116, Protein: 26, Fat: 1, Carbs: 0, WeightG: 100},
	{Name: "Говядина тушёная", Calories: 232, Protein: 25, Fat: 14, Carbs: 0, WeightG: 100},
	{Name: "Котлета куриная", Calories: 222, Protein: 18, Fat: 14, Carbs: 6, WeightG: 100},
	{Name: "Борщ со сметаной", Calories: 72, Protein: 3, Fat: 3, Carbs: 9, WeightG: 100},
	{Name: "Суп куриный с лапшой", Calories: 68, Protein: 4, Fat: 2, Carbs: 8, WeightG: 100},
	{Name: "Салат Цезарь с курицей", Calories: 127, Protein: 9, Fat: 7, Carbs: 6, WeightG: 100},
	{Name: "Салат овощной с маслом", Calories: 80, Protein: 1, Fat: 6, Carbs: 5, WeightG: 100},
	{Name: "Макароны варёные", Calories: 131, Protein: 5, Fat: 1, Carbs: 26, WeightG: 100},
	{Name: "Картофель варёный", Calories: 82, Protein: 2, Fat: 0, Carbs: 18, WeightG: 100},
	{Name: "Картофель жареный", Calories: 192, Protein: 3, Fat: 10, Carbs: 23, WeightG: 100},
	{Name: "Хлеб ржаной", Calories: 66, Protein: 2, Fat: 1, Carbs: 12, WeightG: 30},
	{Name: "Хлеб белый", Calories: 79, Protein: 2, Fat: 1, Carbs: 15, WeightG: 30},
	{Name: "Сыр твёрдый", Calories: 110, Protein: 7, Fat: 9, Carbs: 0, WeightG: 30},
	{Name: "Пицца Маргарита", Calories: 250, Protein: 11, Fat: 9, Carbs: 31, WeightG: 100},
	{Name: "Плов с курицей", Calories: 165, Protein: 9, Fat: 6, Carbs: 19, WeightG: 100},
	{Name: "Пельмени отварные", Calories: 245, Protein: 11, Fat: 12, Carbs: 23, WeightG: 100},
	{Name: "Сырники", Calories: 183, Protein: 12, Fat: 8, Carbs: 15, WeightG: 100},
	{Name: "Протеиновый батончик", Calories: 360, Protein: 30, Fat: 12, Carbs: 35, WeightG: 100},
	{Name: "Орехи грецкие", Calories: 654, Protein: 15, Fat: 65, Carbs: 14, WeightG: 100},
	{Name: "Шоколад молочный", Calories: 535, Protein: 8, Fat: 30, Carbs: 59, WeightG: 100},
}
