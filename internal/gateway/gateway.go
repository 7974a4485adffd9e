// Package gateway is the remote persistence boundary: authentication and
// per-user CRUD over meals, water entries and profiles. The domain store
// depends on the Gateway interface only; implementations translate
// between the domain's camelCase/epoch-millisecond representation and the
// storage's snake_case/timestamp representation.
package gateway

import (
	"context"
	"errors"

	"calorieai/pkg/domain"
)

var (
	// ErrDuplicateUser is returned by SignUp when the email is taken.
	ErrDuplicateUser = errors.New("пользователь с таким email уже существует")

	// ErrInvalidCredentials is returned by SignIn on no match. The message
	// is user-facing and must not enable account enumeration.
	ErrInvalidCredentials = errors.New("неверный email или пароль")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
)

// Gateway defines the remote persistence operations the store relies on.
type Gateway interface {
	// auth + profile
	SignUp(ctx context.Context, name, email, password string) (domain.User, error)
	SignIn(ctx context.Context, email, password string) (domain.User, error)
	GetUser(ctx context.Context, userID string) (domain.User, bool, error)
	UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) error

	// meals
	ListMeals(ctx context.Context, userID string) ([]domain.Meal, error)
	InsertMeal(ctx context.Context, m domain.Meal) (domain.Meal, error)
	InsertMeals(ctx context.Context, meals []domain.Meal) error
	DeleteMeal(ctx context.Context, userID, id string) error
	DeleteAllMeals(ctx context.Context, userID string) error

	// water
	ListWater(ctx context.Context, userID string) ([]domain.WaterEntry, error)
	InsertWater(ctx context.Context, w domain.WaterEntry) (domain.WaterEntry, error)
	InsertWaterEntries(ctx context.Context, entries []domain.WaterEntry) error
	DeleteWater(ctx context.Context, userID, id string) error
	DeleteAllWater(ctx context.Context, userID string) error
}
