package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/truthcast/internal/model"
)

var (
	// ErrSynthesisUnavailable is returned when the reasoning backend cannot be reached
	ErrSynthesisUnavailable = errors.New("synthesis unavailable")

	// ErrMalformedJudgment is returned when the model answer cannot be parsed
	ErrMalformedJudgment = errors.New("malformed judgment")
)

// Judge decides how one source bears on one claim
type Judge interface {
	// Name returns the provider name
	Name() string

	// Judge returns the source's stance toward the claim and its relevance
	Judge(ctx context.Context, req JudgeRequest) (*Judgment, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// JudgeRequest is one (claim, source) pair
type JudgeRequest struct {
	Claim        string
	Context      string // surrounding transcript sentences
	SourceTitle  string
	SourceURL    string
	SourceDomain string
	Excerpt      string
}

// Judgment is the model's reading of one source
type Judgment struct {
	Stance         model.Stance
	RelevanceScore int
	Explanation    string
	Model          string
	TokensUsed     int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30,
		MaxTokens: 400,
	}
}

const systemPrompt = "You are a careful fact-checking assistant. You judge whether a single source supports or disputes a claim, using only the text you are given. Answer with JSON only."

// maxExcerptChars bounds the excerpt sent to the model
const maxExcerptChars = 1500

// BuildJudgePrompt constructs the prompt for one claim and source
func BuildJudgePrompt(req JudgeRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CLAIM: %s\n", req.Claim)
	if req.Context != "" {
		fmt.Fprintf(&b, "CONTEXT (what was said around the claim): %s\n", req.Context)
	}

	b.WriteString("\nSOURCE:\n")
	fmt.Fprintf(&b, "- Title: %s\n", req.SourceTitle)
	if req.SourceDomain != "" {
		fmt.Fprintf(&b, "- Domain: %s\n", req.SourceDomain)
	}
	fmt.Fprintf(&b, "- URL: %s\n", req.SourceURL)

	excerpt := strings.TrimSpace(req.Excerpt)
	if excerpt == "" {
		excerpt = "(no excerpt available, judge from the title only)"
	}
	if r := []rune(excerpt); len(r) > maxExcerptChars {
		excerpt = string(r[:maxExcerptChars]) + "..."
	}
	fmt.Fprintf(&b, "- Excerpt: %s\n", excerpt)

	b.WriteString(`
RULES:
1. Use ONLY the excerpt and title above. Do not rely on outside knowledge.
2. "supports" means the source states the same fact; "disputes" means it contradicts it;
   "mixed" means it both supports and contradicts parts of the claim;
   "neutral" means it is on topic but neither confirms nor denies.
3. relevance is 0-100: how directly the source addresses this specific claim.
4. The explanation is one sentence quoting or paraphrasing the source.

Respond with exactly this JSON object:
{"stance": "supports|disputes|mixed|neutral", "relevance": 0-100, "explanation": "..."}`)

	return b.String()
}

// judgmentPayload is the JSON shape requested from the model
type judgmentPayload struct {
	Stance      string      `json:"stance"`
	Relevance   json.Number `json:"relevance"`
	Explanation string      `json:"explanation"`
}

// ParseJudgment extracts a Judgment from a model answer, tolerating code fences and prose around the JSON
func ParseJudgment(text string) (*Judgment, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in %q", ErrMalformedJudgment, truncate(text, 80))
	}

	var payload judgmentPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJudgment, err)
	}

	stance, ok := model.ParseStance(payload.Stance)
	if !ok {
		return nil, fmt.Errorf("%w: unknown stance %q", ErrMalformedJudgment, payload.Stance)
	}

	if payload.Relevance == "" {
		payload.Relevance = "50"
	}
	relevance, err := payload.Relevance.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: relevance %q", ErrMalformedJudgment, payload.Relevance)
	}
	// Some models answer on a 0-1 scale
	if relevance > 0 && relevance <= 1 && strings.Contains(payload.Relevance.String(), ".") {
		relevance *= 100
	}

	return &Judgment{
		Stance:         stance,
		RelevanceScore: model.Clamp(int(relevance+0.5), 0, 100),
		Explanation:    strings.TrimSpace(payload.Explanation),
	}, nil
}

// unavailable marks a transport or API failure
func unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrSynthesisUnavailable, provider, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
