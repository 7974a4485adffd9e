// Package store is the authoritative in-process state machine for the
// current user, their meals and water entries. Mutations apply an
// optimistic local change, issue the remote write, and on failure roll
// back exactly that operation's effect before surfacing the error.
package store

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"calorieai/internal/events"
	"calorieai/internal/gateway"
	"calorieai/internal/util"
	"calorieai/pkg/auth"
	"calorieai/pkg/domain"
)

// Store owns the session's in-memory collections. No other component
// writes to them; all reads go through the accessor surface, which
// reflects the latest committed (post-optimistic or post-rollback) state.
type Store struct {
	gw     gateway.Gateway
	events events.Publisher

	mu     sync.RWMutex
	gen    uint64 // bumped on session transitions; late remote completions from an older gen are discarded
	user   *domain.User
	meals  []domain.Meal      // newest first
	water  []domain.WaterEntry // newest first
	apiKey string

	keyPath string // optional file persisting the API key across sessions
}

// Option configures a Store.
type Option func(*Store)

// WithEvents sets the change-event publisher.
func WithEvents(pub events.Publisher) Option {
	return func(s *Store) { s.events = pub }
}

// New builds a store over the given persistence gateway.
func New(gw gateway.Gateway, opts ...Option) *Store {
	s := &Store{gw: gw, events: events.NopPublisher{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BindAPIKeyFile sets the file persisting the vision credential and loads
// any previously saved key. The key never leaves the local machine.
func (s *Store) BindAPIKeyFile(path string) {
	var key string
	if data, err := os.ReadFile(path); err == nil {
		key = strings.TrimSpace(string(data))
	}
	s.mu.Lock()
	s.keyPath = path
	if s.apiKey == "" {
		s.apiKey = key
	}
	s.mu.Unlock()
}

// ─── Accessors ───────────────────────────────────────────────────────────

// CurrentUser returns the authenticated user, if any.
func (s *Store) CurrentUser() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

// Meals returns a copy of the session's meal collection, newest first.
func (s *Store) Meals() []domain.Meal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Meal(nil), s.meals...)
}

// Water returns a copy of the session's water entries, newest first.
func (s *Store) Water() []domain.WaterEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.WaterEntry(nil), s.water...)
}

// APIKey returns the stored vision credential override.
func (s *Store) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

// SetAPIKey stores the vision credential and persists it locally.
func (s *Store) SetAPIKey(key string) {
	key = strings.TrimSpace(key)
	s.mu.Lock()
	s.apiKey = key
	path := s.keyPath
	s.mu.Unlock()
	if path != "" {
		if err := os.WriteFile(path, []byte(key), 0o600); err != nil {
			slog.Warn("persist api key", "err", err)
		}
	}
}

// ─── Authentication ──────────────────────────────────────────────────────

// Register creates an account with default goals and makes it current.
func (s *Store) Register(ctx context.Context, name, email, password string) (domain.User, error) {
	if strings.TrimSpace(name) == "" {
		return domain.User{}, ErrNameRequired
	}
	if !validEmail(email) {
		return domain.User{}, ErrInvalidEmail
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, err
	}
	user, err := s.gw.SignUp(ctx, name, email, password)
	if err != nil {
		return domain.User{}, err
	}
	s.beginSession(user, nil, nil)
	return user, nil
}

// Login authenticates and loads the user's full dataset.
func (s *Store) Login(ctx context.Context, email, password string) (domain.User, error) {
	user, err := s.gw.SignIn(ctx, email, password)
	if err != nil {
		return domain.User{}, err
	}
	meals, water, err := s.loadDataset(ctx, user.ID)
	if err != nil {
		return domain.User{}, err
	}
	s.beginSession(user, meals, water)
	return user, nil
}

// Restore resumes a session for a known user ID, e.g. from a persisted
// token. Returns false when the user no longer exists.
func (s *Store) Restore(ctx context.Context, userID string) (domain.User, bool, error) {
	user, ok, err := s.gw.GetUser(ctx, userID)
	if err != nil || !ok {
		return domain.User{}, ok, err
	}
	meals, water, err := s.loadDataset(ctx, user.ID)
	if err != nil {
		return domain.User{}, false, err
	}
	s.beginSession(user, meals, water)
	return user, true, nil
}

// Logout clears the current user and all in-memory session data.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.user = nil
	s.meals = nil
	s.water = nil
}

func (s *Store) beginSession(user domain.User, meals []domain.Meal, water []domain.WaterEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.user = &user
	s.meals = meals
	s.water = water
}

func (s *Store) loadDataset(ctx context.Context, userID string) ([]domain.Meal, []domain.WaterEntry, error) {
	var (
		meals []domain.Meal
		water []domain.WaterEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		meals, err = s.gw.ListMeals(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		water, err = s.gw.ListWater(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return meals, water, nil
}

// ─── Profile ─────────────────────────────────────────────────────────────

// UpdateProfile merges the patch into the current user optimistically and
// persists it; a rejected remote update rolls the merge back.
func (s *Store) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (domain.User, error) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return domain.User{}, ErrNotAuthenticated
	}
	gen := s.gen
	prev := *s.user
	merged := applyPatch(prev, patch)
	s.user = &merged
	s.mu.Unlock()

	if err := s.gw.UpdateProfile(ctx, prev.ID, patch); err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.user = &prev
		}
		s.mu.Unlock()
		return domain.User{}, remoteErr(err)
	}
	s.publish(ctx, events.TypeProfileUpdated, prev.ID, patch)
	return merged, nil
}

func applyPatch(u domain.User, p domain.ProfilePatch) domain.User {
	if p.Name != nil {
		u.Name = strings.TrimSpace(*p.Name)
	}
	if p.WeightKG != nil {
		u.WeightKG = *p.WeightKG
	}
	if p.HeightCM != nil {
		u.HeightCM = *p.HeightCM
	}
	if p.Age != nil {
		u.Age = *p.Age
	}
	if p.WaterGoal != nil {
		u.WaterGoal = *p.WaterGoal
	}
	if p.Goals != nil {
		u.Goals = *p.Goals
	}
	return u
}

// ─── Meals ───────────────────────────────────────────────────────────────

// AddMeal inserts the draft optimistically under a temporary ID, persists
// it, and replaces the temporary record with the canonical one. On remote
// failure exactly the optimistic record is removed. Returns the canonical
// meal.
func (s *Store) AddMeal(ctx context.Context, draft domain.MealDraft) (domain.Meal, error) {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return domain.Meal{}, ErrNameRequired
	}

	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return domain.Meal{}, ErrNotAuthenticated
	}
	gen := s.gen
	ts := draft.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	tmp := domain.Meal{
		ID:          "tmp_" + util.NewID(),
		UserID:      s.user.ID,
		Name:        name,
		Calories:    clampNonNegative(draft.Calories),
		Protein:     clampNonNegative(draft.Protein),
		Fat:         clampNonNegative(draft.Fat),
		Carbs:       clampNonNegative(draft.Carbs),
		WeightG:     clampNonNegative(draft.WeightG),
		Description: strings.TrimSpace(draft.Description),
		Ingredients: draft.Ingredients,
		Timestamp:   ts,
	}
	s.meals = append([]domain.Meal{tmp}, s.meals...)
	s.mu.Unlock()

	canonical, err := s.gw.InsertMeal(ctx, tmp)

	s.mu.Lock()
	if s.gen != gen {
		// Session superseded while the write was in flight; the local
		// optimistic record is already gone and must stay gone.
		s.mu.Unlock()
		if err != nil {
			return domain.Meal{}, remoteErr(err)
		}
		return canonical, nil
	}
	idx := indexOfMeal(s.meals, tmp.ID)
	if err != nil {
		if idx >= 0 {
			s.meals = append(s.meals[:idx:idx], s.meals[idx+1:]...)
		}
		s.mu.Unlock()
		return domain.Meal{}, remoteErr(err)
	}
	if idx >= 0 {
		s.meals[idx] = canonical
	}
	s.mu.Unlock()

	s.publish(ctx, events.TypeMealAdded, canonical.UserID, canonical)
	return canonical, nil
}

// DeleteMeal removes the meal optimistically and persists the delete; on
// failure the removed record is re-inserted at its prior position.
func (s *Store) DeleteMeal(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	gen := s.gen
	userID := s.user.ID
	idx := indexOfMeal(s.meals, id)
	if idx < 0 {
		s.mu.Unlock()
		return gateway.ErrNotFound
	}
	removed := s.meals[idx]
	s.meals = append(s.meals[:idx:idx], s.meals[idx+1:]...)
	s.mu.Unlock()

	if err := s.gw.DeleteMeal(ctx, userID, id); err != nil {
		s.mu.Lock()
		if s.gen == gen {
			at := idx
			if at > len(s.meals) {
				at = len(s.meals)
			}
			s.meals = append(s.meals[:at], append([]domain.Meal{removed}, s.meals[at:]...)...)
		}
		s.mu.Unlock()
		return remoteErr(err)
	}
	s.publish(ctx, events.TypeMealDeleted, userID, map[string]string{"id": id})
	return nil
}

// ─── Water ───────────────────────────────────────────────────────────────

// AddWater logs a water intake with the same optimistic pattern as
// AddMeal. With no current user it is a silent no-op.
func (s *Store) AddWater(ctx context.Context, amountML int) (domain.WaterEntry, error) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return domain.WaterEntry{}, nil
	}
	if amountML <= 0 {
		s.mu.Unlock()
		return domain.WaterEntry{}, ErrInvalidAmount
	}
	gen := s.gen
	tmp := domain.WaterEntry{
		ID:        "tmp_" + util.NewID(),
		UserID:    s.user.ID,
		Amount:    amountML,
		Timestamp: time.Now().UnixMilli(),
	}
	s.water = append([]domain.WaterEntry{tmp}, s.water...)
	s.mu.Unlock()

	canonical, err := s.gw.InsertWater(ctx, tmp)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if err != nil {
			return domain.WaterEntry{}, remoteErr(err)
		}
		return canonical, nil
	}
	idx := indexOfWater(s.water, tmp.ID)
	if err != nil {
		if idx >= 0 {
			s.water = append(s.water[:idx:idx], s.water[idx+1:]...)
		}
		s.mu.Unlock()
		return domain.WaterEntry{}, remoteErr(err)
	}
	if idx >= 0 {
		s.water[idx] = canonical
	}
	s.mu.Unlock()

	s.publish(ctx, events.TypeWaterAdded, canonical.UserID, canonical)
	return canonical, nil
}

// DeleteWater mirrors DeleteMeal for the water collection.
func (s *Store) DeleteWater(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	gen := s.gen
	userID := s.user.ID
	idx := indexOfWater(s.water, id)
	if idx < 0 {
		s.mu.Unlock()
		return gateway.ErrNotFound
	}
	removed := s.water[idx]
	s.water = append(s.water[:idx:idx], s.water[idx+1:]...)
	s.mu.Unlock()

	if err := s.gw.DeleteWater(ctx, userID, id); err != nil {
		s.mu.Lock()
		if s.gen == gen {
			at := idx
			if at > len(s.water) {
				at = len(s.water)
			}
			s.water = append(s.water[:at], append([]domain.WaterEntry{removed}, s.water[at:]...)...)
		}
		s.mu.Unlock()
		return remoteErr(err)
	}
	s.publish(ctx, events.TypeWaterDeleted, userID, map[string]string{"id": id})
	return nil
}

// ─── Bulk operations ─────────────────────────────────────────────────────

// LoadMockData persists the demo dataset for the current user and reloads
// the full dataset from the gateway to resynchronize local state.
func (s *Store) LoadMockData(ctx context.Context) error {
	s.mu.RLock()
	if s.user == nil {
		s.mu.RUnlock()
		return ErrNotAuthenticated
	}
	userID := s.user.ID
	s.mu.RUnlock()

	meals, water := demoDataset(userID, time.Now())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.gw.InsertMeals(gctx, meals) })
	g.Go(func() error { return s.gw.InsertWaterEntries(gctx, water) })
	if err := g.Wait(); err != nil {
		return remoteErr(err)
	}
	return s.resync(ctx, userID)
}

// ClearUserData deletes all meals and water entries for the current user.
// The remote deletes run first; local state is emptied only once both
// succeed, so a failed remote delete never leaves local and remote
// diverged.
func (s *Store) ClearUserData(ctx context.Context) error {
	s.mu.RLock()
	if s.user == nil {
		s.mu.RUnlock()
		return ErrNotAuthenticated
	}
	userID := s.user.ID
	s.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.gw.DeleteAllMeals(gctx, userID) })
	g.Go(func() error { return s.gw.DeleteAllWater(gctx, userID) })
	if err := g.Wait(); err != nil {
		return remoteErr(err)
	}

	s.mu.Lock()
	if s.user != nil && s.user.ID == userID {
		s.gen++
		s.meals = nil
		s.water = nil
	}
	s.mu.Unlock()
	return nil
}

// resync replaces the local collections with the gateway's current state.
func (s *Store) resync(ctx context.Context, userID string) error {
	meals, water, err := s.loadDataset(ctx, userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.user != nil && s.user.ID == userID {
		s.gen++
		s.meals = meals
		s.water = water
	}
	s.mu.Unlock()
	return nil
}

// ─── helpers ─────────────────────────────────────────────────────────────

func (s *Store) publish(ctx context.Context, typ, userID string, payload any) {
	if err := s.events.Publish(ctx, events.Event{Type: typ, UserID: userID, Payload: payload}); err != nil {
		slog.Warn("publish event", "type", typ, "err", err)
	}
}

func remoteErr(err error) error {
	return &remoteWriteError{err: err}
}

// remoteWriteError tags a gateway failure so callers can match both
// ErrRemoteWrite and the underlying cause.
type remoteWriteError struct {
	err error
}

func (e *remoteWriteError) Error() string { return ErrRemoteWrite.Error() + ": " + e.err.Error() }

func (e *remoteWriteError) Unwrap() []error { return []error{ErrRemoteWrite, e.err} }

func indexOfMeal(meals []domain.Meal, id string) int {
	for i, m := range meals {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func indexOfWater(entries []domain.WaterEntry, id string) int {
	for i, w := range entries {
		if w.ID == id {
			return i
		}
	}
	return -1
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	return at > 0 && strings.Contains(email[at:], ".")
}
