package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"calorieai/pkg/auth"
	"calorieai/pkg/domain"
)

// GormGateway implements Gateway using GORM + Postgres.
type GormGateway struct {
	db *gorm.DB
}

// NewGormGateway opens the DB and runs auto-migrations.
func NewGormGateway(dsn string) (*GormGateway, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&AccountModel{}, &ProfileModel{}, &MealModel{}, &WaterModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormGateway{db: db}, nil
}

// SignUp creates an account plus a profile seeded with default goals.
func (g *GormGateway) SignUp(ctx context.Context, name, email, password string) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	var count int64
	if err := g.db.WithContext(ctx).Model(&AccountModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return domain.User{}, ErrDuplicateUser
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	goals := domain.DefaultGoals()
	account := AccountModel{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	profile := ProfileModel{
		ID:           account.ID,
		Name:         strings.TrimSpace(name),
		Weight:       70,
		Height:       170,
		Age:          25,
		WaterGoal:    domain.DefaultWaterGoalML,
		GoalCalories: goals.Calories,
		GoalProtein:  goals.Protein,
		GoalFat:      goals.Fat,
		GoalCarbs:    goals.Carbs,
	}
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		return tx.Create(&profile).Error
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return profileToUser(account, profile), nil
}

// SignIn validates credentials and returns the user with their goals.
func (g *GormGateway) SignIn(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	var account AccountModel
	if err := g.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, fmt.Errorf("fetch account: %w", err)
	}
	if !auth.CheckPassword(password, account.PasswordHash) {
		return domain.User{}, ErrInvalidCredentials
	}
	profile, err := g.loadProfile(ctx, account.ID)
	if err != nil {
		return domain.User{}, err
	}
	return profileToUser(account, profile), nil
}

// GetUser returns a user by ID for session restore.
func (g *GormGateway) GetUser(ctx context.Context, userID string) (domain.User, bool, error) {
	var account AccountModel
	if err := g.db.WithContext(ctx).First(&account, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, fmt.Errorf("fetch account: %w", err)
	}
	profile, err := g.loadProfile(ctx, account.ID)
	if err != nil {
		return domain.User{}, false, err
	}
	return profileToUser(account, profile), true, nil
}

// loadProfile fetches the profile row, defaulting goals when absent.
func (g *GormGateway) loadProfile(ctx context.Context, userID string) (ProfileModel, error) {
	var profile ProfileModel
	if err := g.db.WithContext(ctx).First(&profile, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			goals := domain.DefaultGoals()
			return ProfileModel{
				ID:           userID,
				WaterGoal:    domain.DefaultWaterGoalML,
				GoalCalories: goals.Calories,
				GoalProtein:  goals.Protein,
				GoalFat:      goals.Fat,
				GoalCarbs:    goals.Carbs,
			}, nil
		}
		return ProfileModel{}, fmt.Errorf("fetch profile: %w", err)
	}
	return profile, nil
}

// UpdateProfile applies non-nil patch fields to the profile row.
func (g *GormGateway) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) error {
	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = strings.TrimSpace(*patch.Name)
	}
	if patch.WeightKG != nil {
		updates["weight"] = *patch.WeightKG
	}
	if patch.HeightCM != nil {
		updates["height"] = *patch.HeightCM
	}
	if patch.Age != nil {
		updates["age"] = *patch.Age
	}
	if patch.WaterGoal != nil {
		updates["water_goal"] = *patch.WaterGoal
	}
	if patch.Goals != nil {
		updates["goal_calories"] = patch.Goals.Calories
		updates["goal_protein"] = patch.Goals.Protein
		updates["goal_fat"] = patch.Goals.Fat
		updates["goal_carbs"] = patch.Goals.Carbs
	}
	if len(updates) == 0 {
		return nil
	}
	res := g.db.WithContext(ctx).Model(&ProfileModel{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMeals returns the user's meals newest first.
func (g *GormGateway) ListMeals(ctx context.Context, userID string) ([]domain.Meal, error) {
	var models []MealModel
	if err := g.db.WithContext(ctx).Where("user_id = ?", userID).Order("eaten_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}
	meals := make([]domain.Meal, 0, len(models))
	for _, m := range models {
		meals = append(meals, mealFromModel(m))
	}
	return meals, nil
}

// InsertMeal stores a meal under a freshly assigned canonical ID.
func (g *GormGateway) InsertMeal(ctx context.Context, m domain.Meal) (domain.Meal, error) {
	model := mealToModel(m)
	model.ID = uuid.NewString()
	if err := g.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Meal{}, fmt.Errorf("insert meal: %w", err)
	}
	return mealFromModel(model), nil
}

// InsertMeals bulk-inserts meals keeping their IDs fresh.
func (g *GormGateway) InsertMeals(ctx context.Context, meals []domain.Meal) error {
	if len(meals) == 0 {
		return nil
	}
	models := make([]MealModel, 0, len(meals))
	for _, m := range meals {
		model := mealToModel(m)
		model.ID = uuid.NewString()
		models = append(models, model)
	}
	if err := g.db.WithContext(ctx).CreateInBatches(&models, 50).Error; err != nil {
		return fmt.Errorf("insert meals: %w", err)
	}
	return nil
}

// DeleteMeal removes one meal scoped to its owner.
func (g *GormGateway) DeleteMeal(ctx context.Context, userID, id string) error {
	res := g.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&MealModel{})
	if res.Error != nil {
		return fmt.Errorf("delete meal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAllMeals removes every meal owned by the user.
func (g *GormGateway) DeleteAllMeals(ctx context.Context, userID string) error {
	if err := g.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&MealModel{}).Error; err != nil {
		return fmt.Errorf("delete meals: %w", err)
	}
	return nil
}

// ListWater returns the user's water entries newest first.
func (g *GormGateway) ListWater(ctx context.Context, userID string) ([]domain.WaterEntry, error) {
	var models []WaterModel
	if err := g.db.WithContext(ctx).Where("user_id = ?", userID).Order("logged_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list water: %w", err)
	}
	entries := make([]domain.WaterEntry, 0, len(models))
	for _, m := range models {
		entries = append(entries, waterFromModel(m))
	}
	return entries, nil
}

// InsertWater stores a water entry under a canonical ID.
func (g *GormGateway) InsertWater(ctx context.Context, w domain.WaterEntry) (domain.WaterEntry, error) {
	model := waterToModel(w)
	model.ID = uuid.NewString()
	if err := g.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.WaterEntry{}, fmt.Errorf("insert water: %w", err)
	}
	return waterFromModel(model), nil
}

// InsertWaterEntries bulk-inserts water entries.
func (g *GormGateway) InsertWaterEntries(ctx context.Context, entries []domain.WaterEntry) error {
	if len(entries) == 0 {
		return nil
	}
	models := make([]WaterModel, 0, len(entries))
	for _, w := range entries {
		model := waterToModel(w)
		model.ID = uuid.NewString()
		models = append(models, model)
	}
	if err := g.db.WithContext(ctx).CreateInBatches(&models, 50).Error; err != nil {
		return fmt.Errorf("insert water entries: %w", err)
	}
	return nil
}

// DeleteWater removes one water entry scoped to its owner.
func (g *GormGateway) DeleteWater(ctx context.Context, userID, id string) error {
	res := g.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&WaterModel{})
	if res.Error != nil {
		return fmt.Errorf("delete water: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAllWater removes every water entry owned by the user.
func (g *GormGateway) DeleteAllWater(ctx context.Context, userID string) error {
	if err := g.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&WaterModel{}).Error; err != nil {
		return fmt.Errorf("delete water entries: %w", err)
	}
	return nil
}
