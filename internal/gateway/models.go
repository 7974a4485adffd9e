package gateway

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"calorieai/pkg/domain"
)

// GORM models used for persistence. Column names follow the storage
// contract: snake_case, timestamptz for eaten_at/logged_at.

type AccountModel struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (AccountModel) TableName() string { return "accounts" }

type ProfileModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	Weight       float64
	Height       float64
	Age          int
	WaterGoal    int
	GoalCalories int
	GoalProtein  int
	GoalFat      int
	GoalCarbs    int
}

func (ProfileModel) TableName() string { return "profiles" }

type MealModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Calories    int    `gorm:"not null"`
	Protein     int    `gorm:"not null"`
	Fat         int    `gorm:"not null"`
	Carbs       int    `gorm:"not null"`
	WeightG     int
	Description string
	Ingredients datatypes.JSON
	EatenAt     time.Time `gorm:"not null;index"`
}

func (MealModel) TableName() string { return "meals" }

type WaterModel struct {
	ID       string    `gorm:"primaryKey"`
	UserID   string    `gorm:"not null;index"`
	Amount   int       `gorm:"not null"`
	LoggedAt time.Time `gorm:"not null;index"`
}

func (WaterModel) TableName() string { return "water_log" }

func mealToModel(m domain.Meal) MealModel {
	model := MealModel{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		Calories:    m.Calories,
		Protein:     m.Protein,
		Fat:         m.Fat,
		Carbs:       m.Carbs,
		WeightG:     m.WeightG,
		Description: m.Description,
		EatenAt:     time.UnixMilli(m.Timestamp).UTC(),
	}
	if len(m.Ingredients) > 0 {
		if data, err := json.Marshal(m.Ingredients); err == nil {
			model.Ingredients = datatypes.JSON(data)
		}
	}
	return model
}

func mealFromModel(m MealModel) domain.Meal {
	meal := domain.Meal{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		Calories:    m.Calories,
		Protein:     m.Protein,
		Fat:         m.Fat,
		Carbs:       m.Carbs,
		WeightG:     m.WeightG,
		Description: m.Description,
		Timestamp:   m.EatenAt.UnixMilli(),
	}
	if len(m.Ingredients) > 0 {
		_ = json.Unmarshal(m.Ingredients, &meal.Ingredients)
	}
	return meal
}

func waterToModel(w domain.WaterEntry) WaterModel {
	return WaterModel{
		ID:       w.ID,
		UserID:   w.UserID,
		Amount:   w.Amount,
		LoggedAt: time.UnixMilli(w.Timestamp).UTC(),
	}
}

func waterFromModel(m WaterModel) domain.WaterEntry {
	return domain.WaterEntry{
		ID:        m.ID,
		UserID:    m.UserID,
		Amount:    m.Amount,
		Timestamp: m.LoggedAt.UnixMilli(),
	}
}

func profileToUser(account AccountModel, profile ProfileModel) domain.User {
	return domain.User{
		ID:        account.ID,
		Email:     account.Email,
		Name:      profile.Name,
		WeightKG:  profile.Weight,
		HeightCM:  profile.Height,
		Age:       profile.Age,
		WaterGoal: profile.WaterGoal,
		Goals: domain.Goals{
			Calories: profile.GoalCalories,
			Protein:  profile.GoalProtein,
			Fat:      profile.GoalFat,
			Carbs:    profile.GoalCarbs,
		},
		CreatedAt: account.CreatedAt.UnixMilli(),
	}
}
