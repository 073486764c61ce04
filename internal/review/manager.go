package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lino-backend/internal/ai"
	"lino-backend/internal/models"
	"lino-backend/internal/workflow"
)

var (
	// ErrRefinementLimit is returned once the draft has been through
	// MaxRefinements correction cycles. Only accepting remains.
	ErrRefinementLimit = errors.New("refinement limit reached, the draft can only be accepted")
	ErrInvalidState    = errors.New("draft is not in a reviewable state")
)

const summarizeTimeout = 30 * time.Second

// Manager drives the draft review loop: preview summarization, bounded
// refinement, and final acceptance through the workflow controller.
type Manager struct {
	store      Store
	summarizer ai.Summarizer
	controller *workflow.Controller
}

func NewManager(store Store, summarizer ai.Summarizer, controller *workflow.Controller) *Manager {
	return &Manager{
		store:      store,
		summarizer: summarizer,
		controller: controller,
	}
}

// StartRequest captures the raw input of a new draft.
type StartRequest struct {
	// Nil or empty means the sender stays anonymous.
	SenderID   *string
	ReceiverID string
	RawInput   string
}

// Start produces the first summary in preview mode (nothing is persisted)
// and moves the draft to Reviewing.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*DraftSession, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	session := &DraftSession{
		ID:          id.String(),
		IsAnonymous: true,
		ReceiverID:  req.ReceiverID,
		RawInput:    req.RawInput,
		State:       StateDrafting,
		CreatedAt:   time.Now(),
	}
	if req.SenderID != nil && *req.SenderID != "" {
		session.SenderID = *req.SenderID
		session.IsAnonymous = false
	}

	summarizeCtx, cancel := context.WithTimeout(ctx, summarizeTimeout)
	defer cancel()

	summary, err := m.summarizer.Summarize(summarizeCtx, req.RawInput)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrSummarizationFailed, err)
	}

	session.CurrentSummary = summary
	session.State = StateReviewing
	if err := m.store.Save(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// Refine reconciles the current summary with the sender's correction and
// returns the draft to Reviewing. The fifth completed cycle moves the draft
// to Concluded, after which only Accept is available.
func (m *Manager) Refine(ctx context.Context, id, correction string) (*DraftSession, error) {
	session, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.State != StateReviewing {
		if session.State == StateConcluded {
			return nil, ErrRefinementLimit
		}
		return nil, ErrInvalidState
	}
	if !session.CanRefine() {
		return nil, ErrRefinementLimit
	}

	session.State = StateRefining
	if err := m.store.Save(ctx, session); err != nil {
		return nil, err
	}

	summarizeCtx, cancel := context.WithTimeout(ctx, summarizeTimeout)
	defer cancel()

	summary, err := m.summarizer.Reconcile(summarizeCtx, session.CurrentSummary, correction)
	if err != nil {
		// The cycle did not complete; the draft stays reviewable and the
		// counter is not consumed.
		session.State = StateReviewing
		_ = m.store.Save(ctx, session)
		return nil, fmt.Errorf("%w: %v", workflow.ErrSummarizationFailed, err)
	}

	session.CurrentSummary = summary
	session.RefinementCount++
	session.State = StateReviewing
	if session.RefinementCount >= MaxRefinements {
		session.State = StateConcluded
	}
	if err := m.store.Save(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// Accept submits the current summary through the workflow controller. The
// accepted text is passed through as-is, not summarized a second time.
func (m *Manager) Accept(ctx context.Context, id string) (*models.Feedback, error) {
	session, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.State != StateReviewing && session.State != StateConcluded {
		return nil, ErrInvalidState
	}

	var senderID *string
	if !session.IsAnonymous {
		senderID = &session.SenderID
	}

	feedback, err := m.controller.Submit(ctx, workflow.SubmitRequest{
		SenderID:   senderID,
		ReceiverID: session.ReceiverID,
		RawMessage: session.CurrentSummary,
		Summarized: true,
	})
	if err != nil {
		return nil, err
	}

	// Submitted is terminal; the session is no longer needed.
	session.State = StateSubmitted
	_ = m.store.Delete(ctx, session.ID)

	return feedback, nil
}

// Get loads a draft session for display.
func (m *Manager) Get(ctx context.Context, id string) (*DraftSession, error) {
	return m.store.Load(ctx, id)
}
