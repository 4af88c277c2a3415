package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-engine/internal/domain"
	"github.com/phrazzld/scry-engine/internal/generation"
	"github.com/phrazzld/scry-engine/internal/platform/logger"
	"github.com/phrazzld/scry-engine/internal/store"
	"golang.org/x/time/rate"
)

// DefaultQuantity is used when a task does not ask for a specific count.
const DefaultQuantity = 10

// Skip reasons reported by the content generation handler.
const (
	SkipSubjectGone   = "subject no longer exists"
	SkipNotLinked     = "subject no longer linked to collection"
	SkipContentExists = "content already present"
	SkipLockHeld      = "generation running elsewhere"
)

// Locker is the part of the lock service used around generation.
type Locker interface {
	Acquire(ctx context.Context, subjectID, userID uuid.UUID, kind domain.WorkKind, ttl time.Duration) (*domain.GenerationLock, error)
	UpdateStatus(ctx context.Context, lockID uuid.UUID, status domain.LockStatus, errorMessage *string) error
	Release(ctx context.Context, lockID uuid.UUID, success bool, errorMessage string) error
}

// ContentGenerationHandler generates and persists flashcards or quiz
// questions for a subject.
type ContentGenerationHandler struct {
	subjects        store.SubjectStore
	content         store.ContentStore
	locks           Locker
	generator       generation.Generator
	limiter         *rate.Limiter
	lockTTL         time.Duration
	today           func() time.Time
	defaultQuantity int
	logger          *slog.Logger
}

var _ Handler = (*ContentGenerationHandler)(nil)

// ContentGenerationConfig configures a ContentGenerationHandler.
type ContentGenerationConfig struct {
	// LockTTL is passed to Acquire; zero uses the lock service default.
	LockTTL time.Duration

	// RatePerMinute throttles generator calls; zero disables throttling.
	RatePerMinute float64

	// DefaultQuantity applies to tasks without a quantity.
	DefaultQuantity int

	// Today returns the current calendar day used for new review schedules.
	Today func() time.Time
}

// NewContentGenerationHandler creates the handler. It panics on a nil collaborator.
func NewContentGenerationHandler(
	subjects store.SubjectStore,
	content store.ContentStore,
	locks Locker,
	generator generation.Generator,
	cfg ContentGenerationConfig,
	log *slog.Logger,
) *ContentGenerationHandler {
	if subjects == nil || content == nil || locks == nil || generator == nil {
		panic("content generation handler dependencies cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60), 1)
	}
	today := cfg.Today
	if today == nil {
		today = func() time.Time { return domain.CalendarDay(time.Now(), time.Local) }
	}
	quantity := cfg.DefaultQuantity
	if quantity <= 0 {
		quantity = DefaultQuantity
	}

	return &ContentGenerationHandler{
		subjects:        subjects,
		content:         content,
		locks:           locks,
		generator:       generator,
		limiter:         limiter,
		lockTTL:         cfg.LockTTL,
		today:           today,
		defaultQuantity: quantity,
		logger:          log.With(slog.String("component", "content_generation")),
	}
}

// Handle checks that the work is still relevant, takes the cross-runtime
// lock, runs the generator and persists what it returns.
func (h *ContentGenerationHandler) Handle(ctx context.Context, t GenerationTask, progress ProgressFunc) (Result, error) {
	subjectID := *t.SubjectID
	kind := t.Metadata.ContentKind
	log := logger.FromContextOrDefault(ctx, h.logger).With(
		"task_id", t.ID,
		"subject_id", subjectID,
		"user_id", t.UserID,
		"content_kind", kind,
	)

	subject, skip, err := h.checkPreconditions(ctx, t)
	if err != nil {
		return Result{}, err
	}
	if skip != "" {
		log.Info("skipping generation", "reason", skip)
		return Skip(skip), nil
	}

	lock, err := h.locks.Acquire(ctx, subjectID, t.UserID, domain.WorkKindFor(kind), h.lockTTL)
	if err != nil {
		return Result{}, fmt.Errorf("failed to acquire generation lock: %w", err)
	}
	if lock == nil {
		log.Info("skipping generation", "reason", SkipLockHeld)
		return Skip(SkipLockHeld), nil
	}

	var runErr error
	defer func() {
		// The task context may already be past its deadline.
		releaseCtx := context.WithoutCancel(ctx)
		msg := ""
		if runErr != nil {
			msg = runErr.Error()
		}
		if err := h.locks.Release(releaseCtx, lock.ID, runErr == nil, msg); err != nil {
			log.Error("failed to release generation lock", "lock_id", lock.ID, "error", err)
		}
	}()

	if err := h.locks.UpdateStatus(ctx, lock.ID, domain.LockStatusRunning, nil); err != nil {
		log.Warn("failed to mark generation lock running", "lock_id", lock.ID, "error", err)
	}
	progress(5)

	if runErr = h.limiter.Wait(ctx); runErr != nil {
		return Result{}, fmt.Errorf("waiting for generation slot: %w", runErr)
	}

	var res Result
	res, runErr = h.generate(ctx, t, subject, progress)
	if runErr != nil {
		return Result{}, runErr
	}
	log.Info("content generated",
		"flashcards", len(res.Flashcards),
		"quiz_questions", len(res.QuizQuestions),
		"recovered", res.Recovered)
	return res, nil
}

// checkPreconditions returns a skip reason when the task is no longer relevant.
func (h *ContentGenerationHandler) checkPreconditions(ctx context.Context, t GenerationTask) (*domain.Subject, string, error) {
	subjectID := *t.SubjectID

	subject, err := h.subjects.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, SkipSubjectGone, nil
		}
		return nil, "", fmt.Errorf("failed to load subject: %w", err)
	}
	if subject.UserID != t.UserID {
		return nil, SkipSubjectGone, nil
	}

	if t.CollectionID != nil {
		linked, err := h.subjects.IsLinked(ctx, *t.CollectionID, subjectID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to check collection link: %w", err)
		}
		if !linked {
			return nil, SkipNotLinked, nil
		}
	}

	n, err := h.content.Count(ctx, subjectID, t.UserID, t.Metadata.ContentKind)
	if err != nil {
		return nil, "", fmt.Errorf("failed to count existing content: %w", err)
	}
	if n > 0 {
		return nil, SkipContentExists, nil
	}
	return subject, "", nil
}

func (h *ContentGenerationHandler) generate(
	ctx context.Context,
	t GenerationTask,
	subject *domain.Subject,
	progress ProgressFunc,
) (Result, error) {
	quantity := t.Metadata.Options.Quantity
	if quantity <= 0 {
		quantity = h.defaultQuantity
	}
	req := generation.Request{
		Title:    subject.Title,
		Material: subject.Material,
		Quantity: quantity,
		Extra:    t.Metadata.Options.Extra,
	}
	// Generation spans 5..95 percent; persisting takes the rest.
	onProgress := func(fraction float64, _ string) {
		progress(5 + int(fraction*90))
	}
	today := h.today()

	switch t.Metadata.ContentKind {
	case domain.ContentKindQuiz:
		drafts, err := h.generator.GenerateQuiz(ctx, req, onProgress)
		if err != nil {
			return Result{}, fmt.Errorf("quiz generation failed: %w", err)
		}
		drafts = uniqueDrafts(drafts, func(d generation.QuizDraft) string { return d.Question })
		questions := make([]*domain.QuizQuestion, 0, len(drafts))
		for _, d := range drafts {
			q, err := domain.NewQuizQuestion(subject.ID, t.UserID, d.Question, d.Options, d.CorrectIndex, d.Difficulty, today)
			if err != nil {
				return Result{}, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
			}
			questions = append(questions, q)
		}
		progress(95)
		return h.persistQuiz(ctx, subject.ID, t.UserID, questions)

	default:
		drafts, err := h.generator.GenerateFlashcards(ctx, req, onProgress)
		if err != nil {
			return Result{}, fmt.Errorf("flashcard generation failed: %w", err)
		}
		drafts = uniqueDrafts(drafts, func(d generation.FlashcardDraft) string { return d.Question })
		cards := make([]*domain.Flashcard, 0, len(drafts))
		for _, d := range drafts {
			c, err := domain.NewFlashcard(subject.ID, t.UserID, d.Question, d.Answer, d.Difficulty, today)
			if err != nil {
				return Result{}, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
			}
			cards = append(cards, c)
		}
		progress(95)
		return h.persistFlashcards(ctx, subject.ID, t.UserID, cards)
	}
}

// uniqueDrafts keeps the first draft for each question, compared trimmed and
// case-folded. The store rejects a whole batch on one repeated question.
func uniqueDrafts[D any](drafts []D, question func(D) string) []D {
	seen := make(map[string]struct{}, len(drafts))
	out := make([]D, 0, len(drafts))
	for _, d := range drafts {
		key := strings.ToLower(strings.TrimSpace(question(d)))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}

// persistFlashcards inserts the batch. A uniqueness conflict means another
// runtime stored the same content first; its rows are returned instead. A
// conflict with nothing stored for the subject is a failure.
func (h *ContentGenerationHandler) persistFlashcards(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	cards []*domain.Flashcard,
) (Result, error) {
	insertErr := h.content.InsertFlashcards(ctx, cards)
	if insertErr == nil {
		return Result{Flashcards: cards}, nil
	}
	if !errors.Is(insertErr, store.ErrContentExists) {
		return Result{}, fmt.Errorf("failed to save flashcards: %w", insertErr)
	}
	existing, err := h.content.ListFlashcards(ctx, subjectID, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load existing flashcards: %w", err)
	}
	if len(existing) == 0 {
		return Result{}, fmt.Errorf("failed to save flashcards: %w", insertErr)
	}
	return Result{Recovered: true, Flashcards: existing}, nil
}

func (h *ContentGenerationHandler) persistQuiz(
	ctx context.Context,
	subjectID, userID uuid.UUID,
	questions []*domain.QuizQuestion,
) (Result, error) {
	insertErr := h.content.InsertQuizQuestions(ctx, questions)
	if insertErr == nil {
		return Result{QuizQuestions: questions}, nil
	}
	if !errors.Is(insertErr, store.ErrContentExists) {
		return Result{}, fmt.Errorf("failed to save quiz questions: %w", insertErr)
	}
	existing, err := h.content.ListQuizQuestions(ctx, subjectID, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load existing quiz questions: %w", err)
	}
	if len(existing) == 0 {
		return Result{}, fmt.Errorf("failed to save quiz questions: %w", insertErr)
	}
	return Result{Recovered: true, QuizQuestions: existing}, nil
}
