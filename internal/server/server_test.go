package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"calorieai/internal/gateway"
	"calorieai/internal/ratelimit"
	"calorieai/internal/session"
	"calorieai/pkg/domain"
	"calorieai/pkg/vision"
)

type testEnv struct {
	srv *httptest.Server
	gw  *gateway.MemoryGateway
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	redis := miniredis.RunT(t)
	sessions, err := session.New("test-secret", time.Hour, redis.Addr(), "")
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	t.Cleanup(func() { _ = sessions.Close() })

	gw := gateway.NewMemoryGateway()
	cfg := Config{
		Gateway:  gw,
		Sessions: sessions,
		Vision:   vision.New("http://localhost:0", "", "test-model"),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := httptest.NewServer(New(cfg).Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, gw: gw}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func (e *testEnv) signup(t *testing.T, name, email string) (string, domain.User) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": "secret1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup expected 201, got %d", resp.StatusCode)
	}
	auth := decodeBody[authResponse](t, resp)
	return auth.Token, auth.User
}

func TestSignupLoginLogoutFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	token, user := env.signup(t, "Анна", "anna@example.com")
	if user.Email != "anna@example.com" || token == "" {
		t.Fatalf("unexpected signup response: %+v", user)
	}

	// Duplicate email conflicts.
	resp := env.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"name": "Анна 2", "email": "anna@example.com", "password": "secret1",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate signup expected 409, got %d", resp.StatusCode)
	}

	// Login works with the right password only.
	resp = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "anna@example.com", "password": "wrong-pass",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login expected 401, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "anna@example.com", "password": "secret1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login expected 200, got %d", resp.StatusCode)
	}
	login := decodeBody[authResponse](t, resp)

	// Logout revokes the token.
	resp = env.do(t, http.MethodPost, "/auth/logout", login.Token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout expected 204, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/meals", login.Token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token expected 401, got %d", resp.StatusCode)
	}
}

func TestMealsRequireAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/meals", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestMealLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	token, _ := env.signup(t, "Анна", "anna@example.com")

	resp := env.do(t, http.MethodPost, "/meals", token, domain.MealDraft{
		Name: "Борщ со сметаной", Calories: 290, Protein: 12, Fat: 10, Carbs: 35, WeightG: 400,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add meal expected 201, got %d", resp.StatusCode)
	}
	meal := decodeBody[domain.Meal](t, resp)
	if meal.ID == "" || meal.Name != "Борщ со сметаной" {
		t.Fatalf("unexpected meal: %+v", meal)
	}

	resp = env.do(t, http.MethodGet, "/meals", token, nil)
	list := decodeBody[struct {
		Items []domain.Meal `json:"items"`
		Count int           `json:"count"`
	}](t, resp)
	if list.Count != 1 || list.Items[0].ID != meal.ID {
		t.Fatalf("unexpected meal list: %+v", list)
	}

	resp = env.do(t, http.MethodDelete, "/meals/"+meal.ID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete expected 204, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodDelete, "/meals/"+meal.ID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete expected 404, got %d", resp.StatusCode)
	}
}

func TestTodaySummary(t *testing.T) {
	env := newTestEnv(t, nil)
	token, _ := env.signup(t, "Анна", "anna@example.com")

	resp := env.do(t, http.MethodPost, "/meals", token, domain.MealDraft{Name: "Овсянка", Calories: 1900, Protein: 120, Fat: 40, Carbs: 200})
	resp.Body.Close()
	resp = env.do(t, http.MethodPost, "/water", token, map[string]int{"amount": 500})
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/summary/today", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary expected 200, got %d", resp.StatusCode)
	}
	summary := decodeBody[todaySummary](t, resp)
	if summary.Calories.Consumed != 1900 || summary.Calories.Goal != 2000 {
		t.Fatalf("unexpected calories progress: %+v", summary.Calories)
	}
	if summary.Water.Consumed != 500 || summary.Water.Goal != 2000 {
		t.Fatalf("unexpected water progress: %+v", summary.Water)
	}
	if summary.MealCount != 1 {
		t.Fatalf("expected 1 meal today, got %d", summary.MealCount)
	}
	if summary.Recommendation != "Отличный баланс! Так держать!" {
		t.Fatalf("unexpected recommendation: %q", summary.Recommendation)
	}
}

func TestHistoryGroupsAndSearch(t *testing.T) {
	env := newTestEnv(t, nil)
	token, _ := env.signup(t, "Анна", "anna@example.com")

	resp := env.do(t, http.MethodPost, "/data/demo", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("demo load expected 204, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/history?period=all", token, nil)
	history := decodeBody[historyResponse](t, resp)
	if history.MealCount != 10 {
		t.Fatalf("expected 10 demo meals, got %d", history.MealCount)
	}
	// 10 meals spread over a week; around midnight the same-day offsets
	// can straddle a calendar boundary, so allow one extra group.
	if len(history.Days) < 7 || len(history.Days) > 8 {
		t.Fatalf("expected about 7 day groups, got %d", len(history.Days))
	}

	resp = env.do(t, http.MethodGet, "/history?period=all&q=борщ", token, nil)
	filtered := decodeBody[historyResponse](t, resp)
	if filtered.MealCount != 1 {
		t.Fatalf("expected 1 match for борщ, got %d", filtered.MealCount)
	}
}

func TestCatalogIsPublic(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/catalog?q=гречка", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("catalog expected 200, got %d", resp.StatusCode)
	}
	list := decodeBody[struct {
		Count int `json:"count"`
	}](t, resp)
	if list.Count == 0 {
		t.Fatalf("expected catalog matches for гречка")
	}
}

func TestAuthRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redis.Addr(), "", "test:auth", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	env := newTestEnv(t, func(cfg *Config) {
		cfg.AuthLimiter = limiter
	})

	body := map[string]string{"email": "anna@example.com", "password": "secret1"}
	resp := env.do(t, http.MethodPost, "/auth/login", "", body)
	resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		t.Fatalf("first request must not be limited")
	}
	resp = env.do(t, http.MethodPost, "/auth/login", "", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", resp.StatusCode)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"is_food":true,"name":"Борщ","calories":290,"protein":12,"fat":10,"carbs":35,"weight_g":400}`
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
	defer provider.Close()

	env := newTestEnv(t, func(cfg *Config) {
		cfg.Vision = vision.New(provider.URL, "provider-key", "test-model")
	})
	token, _ := env.signup(t, "Анна", "anna@example.com")

	var imgBuf bytes.Buffer
	if err := png.Encode(&imgBuf, image.NewRGBA(image.Rect(0, 0, 10, 10))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "meal.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(imgBuf.Bytes()); err != nil {
		t.Fatalf("write image: %v", err)
	}
	_ = mw.Close()

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/analyze", &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("analyze request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("analyze expected 200, got %d: %s", resp.StatusCode, data)
	}
	result := decodeBody[analyzeResponse](t, resp)
	if !result.IsFood || result.Name != "Борщ" || result.Calories != 290 {
		t.Fatalf("unexpected analyze result: %+v", result)
	}
}

type fakePhotoStore struct {
	mu         sync.Mutex
	puts       []string
	deletes    []string
	presignErr error
}

func (f *fakePhotoStore) Put(_ context.Context, key string, _ io.Reader, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, key)
	return nil
}

func (f *fakePhotoStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "http://photos.local/" + key, nil
}

func (f *fakePhotoStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	return nil
}

func postAnalyzeImage(t *testing.T, env *testEnv, token string) *http.Response {
	t.Helper()
	var imgBuf bytes.Buffer
	if err := png.Encode(&imgBuf, image.NewRGBA(image.Rect(0, 0, 10, 10))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "meal.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(imgBuf.Bytes()); err != nil {
		t.Fatalf("write image: %v", err)
	}
	_ = mw.Close()

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/analyze", &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("analyze request: %v", err)
	}
	return resp
}

func TestAnalyzeRemovesUnreachablePhoto(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"is_food":true,"name":"Борщ","calories":290,"protein":12,"fat":10,"carbs":35,"weight_g":400}`
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
	defer provider.Close()

	photos := &fakePhotoStore{presignErr: errors.New("presign unavailable")}
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Vision = vision.New(provider.URL, "provider-key", "test-model")
		cfg.Photos = photos
	})
	token, _ := env.signup(t, "Анна", "anna@example.com")

	resp := postAnalyzeImage(t, env, token)
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("analyze expected 200, got %d: %s", resp.StatusCode, data)
	}
	result := decodeBody[analyzeResponse](t, resp)
	if result.PhotoURL != "" {
		t.Fatalf("expected no photo URL when presign fails, got %q", result.PhotoURL)
	}

	photos.mu.Lock()
	defer photos.mu.Unlock()
	if len(photos.puts) != 1 {
		t.Fatalf("expected 1 uploaded photo, got %d", len(photos.puts))
	}
	if len(photos.deletes) != 1 || photos.deletes[0] != photos.puts[0] {
		t.Fatalf("expected uploaded object removed, puts %v deletes %v", photos.puts, photos.deletes)
	}
}

func TestProfilePatch(t *testing.T) {
	env := newTestEnv(t, nil)
	token, _ := env.signup(t, "Анна", "anna@example.com")

	resp := env.do(t, http.MethodPatch, "/profile", token, map[string]any{
		"weight": 64.0,
		"goals":  domain.Goals{Calories: 1800, Protein: 120, Fat: 55, Carbs: 200},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch expected 200, got %d", resp.StatusCode)
	}
	profile := decodeBody[profileResponse](t, resp)
	if profile.User.WeightKG != 64.0 || profile.User.Goals.Calories != 1800 {
		t.Fatalf("unexpected profile: %+v", profile.User)
	}
	if profile.BMI == 0 {
		t.Fatalf("expected BMI computed")
	}
}

func TestExportImportEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	token, _ := env.signup(t, "Анна", "anna@example.com")

	resp := env.do(t, http.MethodPost, "/meals", token, domain.MealDraft{Name: "Плов", Calories: 450})
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/data/export", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export expected 200, got %d", resp.StatusCode)
	}
	snap := decodeBody[domain.Snapshot](t, resp)
	if snap.Version != domain.SnapshotVersion || len(snap.Meals) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	token2, _ := env.signup(t, "Борис", "boris@example.com")
	resp = env.do(t, http.MethodPost, "/data/import", token2, snap)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("import expected 204, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/meals", token2, nil)
	list := decodeBody[struct {
		Count int `json:"count"`
	}](t, resp)
	if list.Count != 1 {
		t.Fatalf("expected imported meal, got %d", list.Count)
	}

	// Wrong version is rejected.
	bad := snap
	bad.Version = 1
	resp = env.do(t, http.MethodPost, "/data/import", token2, bad)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad import expected 400, got %d", resp.StatusCode)
	}
}

func TestClearDataEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	token, _ := env.signup(t, "Анна", "anna@example.com")

	resp := env.do(t, http.MethodPost, "/data/demo", token, nil)
	resp.Body.Close()
	resp = env.do(t, http.MethodDelete, "/data", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear expected 204, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/meals", token, nil)
	list := decodeBody[struct {
		Count int `json:"count"`
	}](t, resp)
	if list.Count != 0 {
		t.Fatalf("expected empty collection after clear, got %d", list.Count)
	}
}

func TestStoreSurvivesServerRestart(t *testing.T) {
	redis := miniredis.RunT(t)
	sessions, err := session.New("test-secret", time.Hour, redis.Addr(), "")
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	defer sessions.Close()
	gw := gateway.NewMemoryGateway()

	cfg := Config{Gateway: gw, Sessions: sessions, Vision: vision.New("http://localhost:0", "", "m")}
	first := httptest.NewServer(New(cfg).Router())
	env1 := &testEnv{srv: first, gw: gw}
	token, _ := env1.signup(t, "Анна", "anna@example.com")
	resp := env1.do(t, http.MethodPost, "/meals", token, domain.MealDraft{Name: "Суп", Calories: 100})
	resp.Body.Close()
	first.Close()

	// New server process, same gateway and session backend: the session
	// store is rebuilt lazily from persistence.
	second := httptest.NewServer(New(cfg).Router())
	defer second.Close()
	env2 := &testEnv{srv: second, gw: gw}
	resp = env2.do(t, http.MethodGet, "/meals", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after restart, got %d", resp.StatusCode)
	}
	list := decodeBody[struct {
		Count int `json:"count"`
	}](t, resp)
	if list.Count != 1 {
		t.Fatalf("expected dataset reloaded after restart, got %d", list.Count)
	}
}
