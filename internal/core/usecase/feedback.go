package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
	"github.com/kirillkom/kth-research-assistant/internal/core/ports"
)

const maxFeedbackCommentRunes = 2000

// FeedbackUseCase accepts answer ratings on the API side and persists them
// on the worker side.
type FeedbackUseCase struct {
	publisher ports.FeedbackPublisher
	repo      ports.FeedbackRepository
	now       func() time.Time
}

// NewFeedbackUseCase wires either side; the API passes a nil repo and the
// worker a nil publisher.
func NewFeedbackUseCase(publisher ports.FeedbackPublisher, repo ports.FeedbackRepository) *FeedbackUseCase {
	return &FeedbackUseCase{
		publisher: publisher,
		repo:      repo,
		now:       time.Now,
	}
}

func (uc *FeedbackUseCase) SubmitFeedback(ctx context.Context, feedback domain.Feedback) (*domain.Feedback, error) {
	if uc.publisher == nil {
		return nil, errors.New("feedback publisher is not configured")
	}
	feedback.Query = strings.TrimSpace(feedback.Query)
	feedback.SessionID = strings.TrimSpace(feedback.SessionID)
	feedback.Comment = strings.TrimSpace(feedback.Comment)

	if err := validateFeedback(feedback); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit feedback", err)
	}
	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	feedback.CreatedAt = uc.now().UTC()

	if err := uc.publisher.PublishFeedback(ctx, feedback); err != nil {
		return nil, fmt.Errorf("publish feedback: %w", err)
	}
	return &feedback, nil
}

func (uc *FeedbackUseCase) RecordFeedback(ctx context.Context, feedback domain.Feedback) error {
	if uc.repo == nil {
		return errors.New("feedback repository is not configured")
	}
	if err := validateFeedback(feedback); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "record feedback", err)
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = uc.now().UTC()
	}
	if err := uc.repo.SaveFeedback(ctx, feedback); err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

func validateFeedback(feedback domain.Feedback) error {
	if feedback.Query == "" {
		return errors.New("query is required")
	}
	if feedback.Rating != -1 && feedback.Rating != 1 {
		return fmt.Errorf("rating must be -1 or 1, got %d", feedback.Rating)
	}
	if utf8.RuneCountInString(feedback.Comment) > maxFeedbackCommentRunes {
		return fmt.Errorf("comment exceeds %d characters", maxFeedbackCommentRunes)
	}
	return nil
}
