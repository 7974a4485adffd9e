package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"calorieai/pkg/domain"
	"calorieai/pkg/imaging"
)

// Result is the transient outcome of a single photo analysis. It becomes
// a meal only when the caller confirms it.
type Result struct {
	IsFood      bool                `json:"is_food"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Calories    int                 `json:"calories"`
	Protein     int                 `json:"protein"`
	Fat         int                 `json:"fat"`
	Carbs       int                 `json:"carbs"`
	WeightG     int                 `json:"weight_g"`
	Ingredients []domain.Ingredient `json:"ingredients"`
}

// Client calls an OpenAI-compatible multimodal /chat/completions endpoint
// to estimate the nutrition of a food photo. One blocking round trip per
// call, no retries; a transient failure surfaces to the caller.
type Client struct {
	baseURL     string
	fallbackKey string
	model       string
	maxDim      int
	httpClient  *http.Client
}

// New builds a vision client. baseURL should include the /v1 prefix.
// fallbackKey is used when the caller does not supply a key of their own.
func New(baseURL, fallbackKey, model string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		fallbackKey: strings.TrimSpace(fallbackKey),
		model:       strings.TrimSpace(model),
		maxDim:      imaging.MaxDimension,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Analyze normalizes the image, sends it with the fixed instruction, and
// decodes the model reply into a fully-typed Result.
func (c *Client) Analyze(ctx context.Context, apiKey string, image []byte) (Result, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = c.fallbackKey
	}
	if key == "" {
		return Result{}, ErrMissingCredential
	}

	normalized, err := imaging.Normalize(image, c.maxDim)
	if err != nil {
		return Result{}, err
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: systemPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: imaging.DataURL(normalized)}},
			},
		}},
		Temperature:    0.1,
		MaxTokens:      1024,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, err
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRemoteService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return Result{}, fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		case http.StatusTooManyRequests:
			return Result{}, fmt.Errorf("%w: %s", ErrRateLimited, msg)
		default:
			return Result{}, fmt.Errorf("%w: %s", ErrRemoteService, msg)
		}
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrRemoteService, err)
	}
	if len(chatResp.Choices) == 0 {
		return Result{}, fmt.Errorf("%w: empty choices", ErrRemoteService)
	}
	return parseResult(chatResp.Choices[0].Message.Content)
}

// requiredFields must all be present in the model reply; weight_g,
// description and ingredients stay lenient.
var requiredFields = []string{"is_food", "name", "calories", "protein", "fat", "carbs"}

// parseResult strips any code-fence markup, parses the JSON payload and
// coerces it into a Result. Missing required fields fail with ErrSchema
// naming the first absent field.
func parseResult(raw string) (Result, error) {
	cleaned := stripCodeFence(raw)

	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return Result{}, fmt.Errorf("%w: invalid json: %v", ErrSchema, err)
	}
	for _, field := range requiredFields {
		if _, ok := payload[field]; !ok {
			return Result{}, fmt.Errorf("%w: missing field %q", ErrSchema, field)
		}
	}

	res := Result{
		IsFood:      asBool(payload["is_food"]),
		Name:        asString(payload["name"]),
		Description: asString(payload["description"]),
		Calories:    asInt(payload["calories"]),
		Protein:     asInt(payload["protein"]),
		Fat:         asInt(payload["fat"]),
		Carbs:       asInt(payload["carbs"]),
		WeightG:     asInt(payload["weight_g"]),
		Ingredients: asIngredients(payload["ingredients"]),
	}
	if !res.IsFood {
		// Contract: a non-food verdict zeroes every numeric field and the
		// ingredient list, regardless of what the model returned.
		res.Calories, res.Protein, res.Fat, res.Carbs, res.WeightG = 0, 0, 0, 0, 0
		res.Ingredients = []domain.Ingredient{}
	}
	return res, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asInt coerces any JSON value to a rounded non-negative integer,
// treating non-numeric or missing values as 0.
func asInt(v any) int {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	return int(math.Round(f))
}

func asIngredients(v any) []domain.Ingredient {
	arr, ok := v.([]any)
	if !ok {
		return []domain.Ingredient{}
	}
	out := make([]domain.Ingredient, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, domain.Ingredient{
			Name:     asString(m["name"]),
			Calories: asInt(m["calories"]),
		})
	}
	return out
}

// OpenAI-compatible request/response types.

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
