package store

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"calorieai/pkg/domain"
)

// ExportData packages the current user's profile, meals and water log
// into a versioned snapshot.
func (s *Store) ExportData() (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.Snapshot{}, ErrNotAuthenticated
	}
	snap := domain.Snapshot{
		Version:    domain.SnapshotVersion,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		User: domain.SnapshotUser{
			Name:      s.user.Name,
			WeightKG:  s.user.WeightKG,
			HeightCM:  s.user.HeightCM,
			Age:       s.user.Age,
			WaterGoal: s.user.WaterGoal,
			Goals:     s.user.Goals,
		},
		Meals:    append([]domain.Meal(nil), s.meals...),
		WaterLog: append([]domain.WaterEntry(nil), s.water...),
	}
	return snap, nil
}

// ImportData replaces nothing and deletes nothing: it appends the
// snapshot's meals and water entries to the current user's data (with
// fresh identities) and applies the snapshot's profile fields. Local
// state is reloaded from the gateway afterwards.
//
// Snapshot records go through the same coercion as manual entry:
// names are trimmed, numeric macros clamped to non-negative. Records
// that cannot be coerced into valid form (blank meal name, water
// amount <= 0) fail the whole import before anything is written.
func (s *Store) ImportData(ctx context.Context, snap domain.Snapshot) error {
	s.mu.RLock()
	if s.user == nil {
		s.mu.RUnlock()
		return ErrInvalidImport
	}
	userID := s.user.ID
	s.mu.RUnlock()

	if snap.Version != domain.SnapshotVersion {
		return ErrInvalidImport
	}

	meals := make([]domain.Meal, 0, len(snap.Meals))
	for _, m := range snap.Meals {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			return ErrInvalidImport
		}
		m.ID = ""
		m.UserID = userID
		m.Calories = clampNonNegative(m.Calories)
		m.Protein = clampNonNegative(m.Protein)
		m.Fat = clampNonNegative(m.Fat)
		m.Carbs = clampNonNegative(m.Carbs)
		m.WeightG = clampNonNegative(m.WeightG)
		m.Description = strings.TrimSpace(m.Description)
		if m.Timestamp == 0 {
			m.Timestamp = time.Now().UnixMilli()
		}
		meals = append(meals, m)
	}
	water := make([]domain.WaterEntry, 0, len(snap.WaterLog))
	for _, w := range snap.WaterLog {
		if w.Amount <= 0 {
			return ErrInvalidImport
		}
		w.ID = ""
		w.UserID = userID
		if w.Timestamp == 0 {
			w.Timestamp = time.Now().UnixMilli()
		}
		water = append(water, w)
	}

	g, gctx := errgroup.WithContext(ctx)
	if len(meals) > 0 {
		g.Go(func() error { return s.gw.InsertMeals(gctx, meals) })
	}
	if len(water) > 0 {
		g.Go(func() error { return s.gw.InsertWaterEntries(gctx, water) })
	}
	if err := g.Wait(); err != nil {
		return remoteErr(err)
	}

	if patch := snapshotPatch(snap.User); patch != (domain.ProfilePatch{}) {
		if _, err := s.UpdateProfile(ctx, patch); err != nil {
			return err
		}
	}
	return s.resync(ctx, userID)
}

// snapshotPatch converts the snapshot profile into a patch of its
// non-zero fields, so partial snapshots do not blank out the profile.
func snapshotPatch(u domain.SnapshotUser) domain.ProfilePatch {
	var patch domain.ProfilePatch
	if u.Name != "" {
		name := u.Name
		patch.Name = &name
	}
	if u.WeightKG > 0 {
		w := u.WeightKG
		patch.WeightKG = &w
	}
	if u.HeightCM > 0 {
		h := u.HeightCM
		patch.HeightCM = &h
	}
	if u.Age > 0 {
		a := u.Age
		patch.Age = &a
	}
	if u.WaterGoal > 0 {
		g := u.WaterGoal
		patch.WaterGoal = &g
	}
	if u.Goals != (domain.Goals{}) {
		goals := u.Goals
		patch.Goals = &goals
	}
	return patch
}
