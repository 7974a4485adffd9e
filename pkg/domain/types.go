package domain

import "time"

// Goals are the daily nutrition targets for a user.
type Goals struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
	Fat      int `json:"fat"`
	Carbs    int `json:"carbs"`
}

// DefaultGoals returns the targets assigned at registration.
func DefaultGoals() Goals {
	return Goals{Calories: 2000, Protein: 150, Fat: 65, Carbs: 250}
}

// DefaultWaterGoalML is the daily water target assigned at registration.
const DefaultWaterGoalML = 2000

// User is the authenticated account with profile attributes and goals.
type User struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	WeightKG  float64 `json:"weight"`
	HeightCM  float64 `json:"height"`
	Age       int     `json:"age"`
	WaterGoal int     `json:"waterGoal"`
	Goals     Goals   `json:"goals"`
	CreatedAt int64   `json:"createdAt"`
}

// Ingredient is a single entry of the AI ingredient breakdown.
type Ingredient struct {
	Name     string `json:"name"`
	Calories int    `json:"calories"`
}

// Meal is one logged food intake. Nutrition fields are non-negative
// rounded integers, coerced at creation. Timestamp is epoch milliseconds.
type Meal struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	Name        string       `json:"name"`
	Calories    int          `json:"calories"`
	Protein     int          `json:"protein"`
	Fat         int          `json:"fat"`
	Carbs       int          `json:"carbs"`
	WeightG     int          `json:"weight_g"`
	Description string       `json:"description,omitempty"`
	Ingredients []Ingredient `json:"ingredients,omitempty"`
	Timestamp   int64        `json:"timestamp"`
}

// Time returns the meal timestamp as local time.
func (m Meal) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// WaterEntry is one logged water intake in milliliters.
type WaterEntry struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Amount    int    `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// Time returns the entry timestamp as local time.
func (w WaterEntry) Time() time.Time {
	return time.UnixMilli(w.Timestamp)
}

// MealDraft is the input shape for creating a meal, before the store
// assigns identity and ownership. A zero Timestamp means "now".
type MealDraft struct {
	Name        string       `json:"name"`
	Calories    int          `json:"calories"`
	Protein     int          `json:"protein"`
	Fat         int          `json:"fat"`
	Carbs       int          `json:"carbs"`
	WeightG     int          `json:"weight_g"`
	Description string       `json:"description,omitempty"`
	Ingredients []Ingredient `json:"ingredients,omitempty"`
	Timestamp   int64        `json:"timestamp,omitempty"`
}

// ProfilePatch is a partial profile/goals update; nil fields are untouched.
type ProfilePatch struct {
	Name      *string  `json:"name,omitempty"`
	WeightKG  *float64 `json:"weight,omitempty"`
	HeightCM  *float64 `json:"height,omitempty"`
	Age       *int     `json:"age,omitempty"`
	WaterGoal *int     `json:"waterGoal,omitempty"`
	Goals     *Goals   `json:"goals,omitempty"`
}

// SnapshotVersion is the export file format version.
const SnapshotVersion = 2

// SnapshotUser is the profile subset included in an export.
type SnapshotUser struct {
	Name      string  `json:"name"`
	WeightKG  float64 `json:"weight"`
	HeightCM  float64 `json:"height"`
	Age       int     `json:"age"`
	WaterGoal int     `json:"waterGoal"`
	Goals     Goals   `json:"goals"`
}

// Snapshot is the whole-state export document.
type Snapshot struct {
	Version    int          `json:"version"`
	ExportedAt string       `json:"exportedAt"`
	User       SnapshotUser `json:"user"`
	Meals      []Meal       `json:"meals"`
	WaterLog   []WaterEntry `json:"waterLog"`
}
