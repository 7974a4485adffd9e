package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"calorieai/pkg/auth"
	"calorieai/pkg/domain"
)

// MemoryGateway keeps everything in-process. It backs local mode and the
// test suite, mirroring the Postgres gateway's behavior including
// canonical ID assignment.
type MemoryGateway struct {
	mu       sync.RWMutex
	accounts map[string]account // key: user ID
	emails   map[string]string  // email -> user ID
	meals    map[string][]domain.Meal
	water    map[string][]domain.WaterEntry

	// nextErr, when set, fails the next mutating call and clears itself.
	// Tests use it to simulate a remote write failure.
	nextErr error
}

type account struct {
	user         domain.User
	passwordHash string
}

// NewMemoryGateway initializes an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		accounts: make(map[string]account),
		emails:   make(map[string]string),
		meals:    make(map[string][]domain.Meal),
		water:    make(map[string][]domain.WaterEntry),
	}
}

// FailNext makes the next mutating operation return err.
func (g *MemoryGateway) FailNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextErr = err
}

func (g *MemoryGateway) takeErr() error {
	if g.nextErr != nil {
		err := g.nextErr
		g.nextErr = nil
		return err
	}
	return nil
}

// SignUp registers an account with default profile and goals.
func (g *MemoryGateway) SignUp(_ context.Context, name, email, password string) (domain.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr(); err != nil {
		return domain.User{}, err
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if _, exists := g.emails[email]; exists {
		return domain.User{}, ErrDuplicateUser
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		WeightKG:  70,
		HeightCM:  170,
		Age:       25,
		WaterGoal: domain.DefaultWaterGoalML,
		Goals:     domain.DefaultGoals(),
		CreatedAt: time.Now().UnixMilli(),
	}
	g.accounts[user.ID] = account{user: user, passwordHash: hash}
	g.emails[email] = user.ID
	return user, nil
}

// SignIn validates credentials.
func (g *MemoryGateway) SignIn(_ context.Context, email, password string) (domain.User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.emails[strings.TrimSpace(strings.ToLower(email))]
	if !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	acc := g.accounts[id]
	if !auth.CheckPassword(password, acc.passwordHash) {
		return domain.User{}, ErrInvalidCredentials
	}
	return acc.user, nil
}

// GetUser returns a user by ID.
func (g *MemoryGateway) GetUser(_ context.Context, userID string) (domain.User, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	acc, ok := g.accounts[userID]
	return acc.user, ok, nil
}

// UpdateProfile applies non-nil patch fields.
func (g *MemoryGateway) UpdateProfile(_ context.Context, userID string, patch domain.ProfilePatch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr(); err != nil {
		return err
	}
	acc, ok := g.accounts[userID]
	if !ok {
		return ErrNotFound
	}
	if patch.Name != nil {
		acc.user.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.WeightKG != nil {
		acc.user.WeightKG = *patch.WeightKG
	}
	if patch.HeightCM != nil {
		acc.user.HeightCM = *patch.HeightCM
	}
	if patch.Age != nil {
		acc.user.Age = *patch.Age
	}
	if patch.WaterGoal != nil {
		acc.user.WaterGoal = *patch.WaterGoal
	}
	if patch.Goals != nil {
		acc.user.Goals = *patch.Goals
	}
	g.accounts[userID] = acc
	return nil
}

// ListMeals returns the user's meals newest first.
func (g *MemoryGateway) ListMeals(_ context.Context, userID string) ([]domain.Meal, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	meals := append([]domain.Meal(nil), g.meals[userID]...)
	sortByTimestampDesc(meals)
	return meals, nil
}

// InsertMeal stores a meal under a canonical ID.
func (g *MemoryGateway) InsertMeal(_ context.Context, m domain.Meal) (domain.Meal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr(); err != nil {
		return domain.Meal{}, err
	}
	m.ID = uuid.NewString()
	g.meals[m.UserID] = append(g.meals[m.UserID], m)
	return m, nil
}

// InsertMeals bulk-inserts meals with fresh IDs.
func (g *MemoryGateway) InsertMeals(_ context.Context, meals []domain.Meal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr(); err != nil {
		return err
	}
	for _, m := range meals {
		m.ID = uuid.NewString()
		g.meals[m.UserID] = append(g.meals[m.UserID], m)
	}
	return nil
}

// DeleteMeal removes one meal scoped to its owner.
func (g *MemoryGateway) DeleteMeal(_ context.Context, userID, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr(); err != nil {
		return err
	}
	meals := g.meals[userID]
	for i, m := range meals {
		if m.ID == id {
			g.meals[userID] = append(meals[:i:i], meals[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// DeleteAllMeals removes every meal owned by the user.
func (g *MemoryGateway) DeleteAllMeals(_ context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr(); err != nil {
		return err
	}
	delete(g.meals, userID)
	return nil
}

// ListWater returns the user's water entries newest first.
func (g *MemoryGateway) ListWater(_ context.Context, userID string) ([]domain.WaterEntry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	entries := append([]domain.WaterEntry(nil), g.water[userID]...)
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Timestamp > entries[j-1].Timestamp; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	return entries, nil
}

// InsertWater stores a water entry under a canonical ID.
func (g *MemoryGateway) InsertWater(_ context.Context, w domain.WaterEntry) (domain.WaterEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr(); err != nil {
		return domain.WaterEntry{}, err
	}
	w.ID = uuid.NewString()
	g.water[w.UserID] = append(g.water[w.UserID], w)
	return w, nil
}

// InsertWaterEntries bulk-inserts water entries with fresh IDs.
func (g *MemoryGateway) InsertWaterEntries(_ context.Context, entries []domain.WaterEntry) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr(); err != nil {
		return err
	}
	for _, w := range entries {
		w.ID = uuid.NewString()
		g.water[w.UserID] = append(g.water[w.UserID], w)
	}
	return nil
}

// DeleteWater removes one water entry scoped to its owner.
func (g *MemoryGateway) DeleteWater(_ context.Context, userID, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr(); err != nil {
		return err
	}
	entries := g.water[userID]
	for i, w := range entries {
		if w.ID == id {
			g.water[userID] = append(entries[:i:i], entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// DeleteAllWater removes every water entry owned by the user.
func (g *MemoryGateway) DeleteAllWater(_ context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.takeErr(); err != nil {
		return err
	}
	delete(g.water, userID)
	return nil
}

func sortByTimestampDesc(meals []domain.Meal) {
	for i := 1; i < len(meals); i++ {
		for j := i; j > 0 && meals[j].Timestamp > meals[j-1].Timestamp; j-- {
			meals[j], meals[j-1] = meals[j-1], meals[j]
		}
	}
}
