package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// fakeProvider serves a canned chat-completions reply.
func fakeProvider(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("missing bearer auth header")
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"message": "provider says no"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
}

func TestAnalyzeParsesResult(t *testing.T) {
	content := `{"is_food":true,"name":"Борщ","description":"Суп","calories":290.4,"protein":"12","fat":10,"carbs":35,"weight_g":400,"ingredients":[{"name":"свёкла","calories":43}]}`
	srv := fakeProvider(t, http.StatusOK, content)
	defer srv.Close()

	c := New(srv.URL, "fallback-key", "test-model")
	res, err := c.Analyze(context.Background(), "", testImage(t))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !res.IsFood || res.Name != "Борщ" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Calories != 290 {
		t.Fatalf("expected calories rounded to 290, got %d", res.Calories)
	}
	if res.Protein != 12 {
		t.Fatalf("expected string protein coerced to 12, got %d", res.Protein)
	}
	if len(res.Ingredients) != 1 || res.Ingredients[0].Name != "свёкла" {
		t.Fatalf("unexpected ingredients: %+v", res.Ingredients)
	}
}

func TestAnalyzeStripsCodeFence(t *testing.T) {
	content := "```json\n{\"is_food\":true,\"name\":\"Каша\",\"calories\":200,\"protein\":5,\"fat\":3,\"carbs\":30}\n```"
	srv := fakeProvider(t, http.StatusOK, content)
	defer srv.Close()

	c := New(srv.URL, "k", "m")
	res, err := c.Analyze(context.Background(), "", testImage(t))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.Name != "Каша" || res.Calories != 200 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestAnalyzeNonFoodZeroesNutrition(t *testing.T) {
	content := `{"is_food":false,"name":"Стол","calories":999,"protein":9,"fat":9,"carbs":9,"weight_g":9,"ingredients":[{"name":"дерево","calories":1}]}`
	srv := fakeProvider(t, http.StatusOK, content)
	defer srv.Close()

	c := New(srv.URL, "k", "m")
	res, err := c.Analyze(context.Background(), "", testImage(t))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.IsFood {
		t.Fatalf("expected non-food verdict")
	}
	if res.Calories != 0 || res.Protein != 0 || res.Fat != 0 || res.Carbs != 0 || res.WeightG != 0 {
		t.Fatalf("expected zeroed nutrition, got %+v", res)
	}
	if len(res.Ingredients) != 0 {
		t.Fatalf("expected empty ingredients, got %+v", res.Ingredients)
	}
}

func TestAnalyzeMissingFieldFailsSchema(t *testing.T) {
	content := `{"is_food":true,"name":"Суп","calories":100,"protein":5,"fat":2}`
	srv := fakeProvider(t, http.StatusOK, content)
	defer srv.Close()

	c := New(srv.URL, "k", "m")
	_, err := c.Analyze(context.Background(), "", testImage(t))
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
	if !strings.Contains(err.Error(), `"carbs"`) {
		t.Fatalf("expected error to name the missing field, got %v", err)
	}
}

func TestAnalyzeStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusInternalServerError, ErrRemoteService},
	}
	for _, tc := range cases {
		srv := fakeProvider(t, tc.status, "")
		c := New(srv.URL, "k", "m")
		_, err := c.Analyze(context.Background(), "", testImage(t))
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		if !strings.Contains(err.Error(), "provider says no") {
			t.Fatalf("status %d: expected provider message in error, got %v", tc.status, err)
		}
	}
}

func TestAnalyzeRequiresCredential(t *testing.T) {
	c := New("http://localhost:0", "", "m")
	_, err := c.Analyze(context.Background(), "", testImage(t))
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestAnalyzeCallerKeyOverridesFallback(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": `{"is_food":true,"name":"x","calories":1,"protein":1,"fat":1,"carbs":1}`}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "fallback", "m")
	if _, err := c.Analyze(context.Background(), "caller-key", testImage(t)); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if gotKey != "Bearer caller-key" {
		t.Fatalf("expected caller key to win, got %q", gotKey)
	}
}
