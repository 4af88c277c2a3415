package gemini

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/phrazzld/scry-engine/internal/config"
	"github.com/phrazzld/scry-engine/internal/generation"
	"google.golang.org/genai"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

const (
	flashcardTemplate = "flashcards.tmpl"
	quizTemplate      = "quiz.tmpl"

	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
)

// contentGenerator is the slice of the genai client the generator calls.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Generator produces study content with a Gemini model.
type Generator struct {
	logger     *slog.Logger
	client     contentGenerator
	model      string
	prompts    *template.Template
	maxRetries int
	baseDelay  time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

var _ generation.Generator = (*Generator)(nil)

// promptData is passed to the prompt templates.
type promptData struct {
	Title    string
	Material string
	Quantity int
	Extra    map[string]string
}

// New creates a Generator connected to the Gemini API.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Generator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newGenerator(client.Models, cfg, logger)
}

func newGenerator(client contentGenerator, cfg config.LLMConfig, logger *slog.Logger) (*Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	prompts, err := template.ParseFS(promptFS, "prompts/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt templates: %v", generation.ErrInvalidConfig, err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	baseDelay := time.Duration(cfg.RetryDelaySeconds) * time.Second
	if baseDelay <= 0 {
		baseDelay = defaultRetryDelay
	}

	return &Generator{
		logger:     logger.With("component", "gemini_generator", "model", cfg.ModelName),
		client:     client,
		model:      cfg.ModelName,
		prompts:    prompts,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// GenerateFlashcards implements generation.Generator.
func (g *Generator) GenerateFlashcards(
	ctx context.Context,
	req generation.Request,
	progress generation.ProgressFunc,
) ([]generation.FlashcardDraft, error) {
	var resp flashcardResponse
	if err := g.generate(ctx, flashcardTemplate, req, progress, &resp); err != nil {
		return nil, err
	}

	drafts, err := resp.drafts(req.Quantity)
	if err != nil {
		return nil, err
	}
	progress.Report(1, "flashcards ready")
	g.logger.InfoContext(ctx, "flashcards generated", "count", len(drafts))
	return drafts, nil
}

// GenerateQuiz implements generation.Generator.
func (g *Generator) GenerateQuiz(
	ctx context.Context,
	req generation.Request,
	progress generation.ProgressFunc,
) ([]generation.QuizDraft, error) {
	var resp quizResponse
	if err := g.generate(ctx, quizTemplate, req, progress, &resp); err != nil {
		return nil, err
	}

	drafts, err := resp.drafts(req.Quantity)
	if err != nil {
		return nil, err
	}
	progress.Report(1, "quiz ready")
	g.logger.InfoContext(ctx, "quiz questions generated", "count", len(drafts))
	return drafts, nil
}

// generate renders the prompt, calls the model and decodes the JSON reply into out.
func (g *Generator) generate(
	ctx context.Context,
	templateName string,
	req generation.Request,
	progress generation.ProgressFunc,
	out any,
) error {
	if err := req.Validate(); err != nil {
		return err
	}

	progress.Report(0.05, "preparing prompt")
	prompt, err := g.renderPrompt(templateName, req)
	if err != nil {
		return err
	}

	progress.Report(0.1, "waiting for model")
	text, err := g.callWithRetry(ctx, prompt)
	if err != nil {
		return err
	}

	progress.Report(0.9, "parsing response")
	return decodeJSON(text, out)
}

func (g *Generator) renderPrompt(templateName string, req generation.Request) (string, error) {
	var buf bytes.Buffer
	err := g.prompts.ExecuteTemplate(&buf, templateName, promptData{
		Title:    req.Title,
		Material: req.Material,
		Quantity: req.Quantity,
		Extra:    req.Extra,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute prompt template %s: %w", templateName, err)
	}
	return buf.String(), nil
}

// callWithRetry calls the model, retrying transient errors up to maxRetries
// times with exponential backoff and jitter. Safety blocks and empty
// responses are returned immediately.
func (g *Generator) callWithRetry(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	for attempt := 0; ; attempt++ {
		resp, err := g.client.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
		if err == nil {
			text, perr := responseText(resp)
			if perr != nil {
				g.logger.WarnContext(ctx, "permanent error from model, not retrying",
					"attempt", attempt+1, "error", perr)
				return "", perr
			}
			return text, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %w", generation.ErrTransientFailure, ctxErr)
		}
		g.logger.ErrorContext(ctx, "gemini API call failed",
			"attempt", attempt+1,
			"max_attempts", g.maxRetries+1,
			"error", err)

		if attempt >= g.maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
				generation.ErrTransientFailure, g.maxRetries, err)
		}

		delay := g.backoff(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", generation.ErrTransientFailure, ctx.Err())
		}
	}
}

// backoff returns baseDelay * 2^attempt scaled by a jitter factor in [0.5, 1).
func (g *Generator) backoff(attempt int) time.Duration {
	g.rngMu.Lock()
	jitter := 0.5 + g.rng.Float64()*0.5
	g.rngMu.Unlock()
	return time.Duration(float64(g.baseDelay) * math.Pow(2, float64(attempt)) * jitter)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: empty text in response", generation.ErrInvalidResponse)
	}
	return sb.String(), nil
}
