package review

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lino-backend/internal/config"
	"lino-backend/internal/models"
	"lino-backend/internal/workflow"
)

type scriptedSummarizer struct {
	summarizeCalls int
	reconcileCalls int
	failReconcile  bool
}

func (s *scriptedSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	s.summarizeCalls++
	return "SUMMARY: " + text, nil
}

func (s *scriptedSummarizer) Reconcile(ctx context.Context, priorSummary, correction string) (string, error) {
	s.reconcileCalls++
	if s.failReconcile {
		return "", errors.New("upstream unavailable")
	}
	return fmt.Sprintf("%s (rev %d)", priorSummary, s.reconcileCalls), nil
}

func setupReviewTest(t *testing.T) (*Manager, *scriptedSummarizer, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Team{}, &models.Feedback{}))

	summarizer := &scriptedSummarizer{}
	controller := workflow.New(db, &config.Config{}, summarizer, nil, nil, echo.New().Logger)
	manager := NewManager(NewMemoryStore(), summarizer, controller)

	return manager, summarizer, db
}

func seedTeam(t *testing.T, db *gorm.DB) (leader, member *models.User) {
	leader = &models.User{Name: "Lea Der", Email: "leader@example.com", Password: "password123"}
	require.NoError(t, db.Create(leader).Error)
	member = &models.User{Name: "Mem Ber", Email: "member@example.com", Password: "password123"}
	require.NoError(t, db.Create(member).Error)

	team := &models.Team{Name: "Test Team", LeaderID: leader.ID}
	require.NoError(t, db.Create(team).Error)
	require.NoError(t, team.AddMember(db, leader))
	require.NoError(t, team.AddMember(db, member))
	return leader, member
}

func TestStart_PreviewDoesNotPersist(t *testing.T) {
	manager, summarizer, db := setupReviewTest(t)
	_, member := seedTeam(t, db)

	session, err := manager.Start(context.Background(), StartRequest{
		ReceiverID: member.ID,
		RawInput:   "raw draft text",
	})
	require.NoError(t, err)

	assert.Equal(t, StateReviewing, session.State)
	assert.Equal(t, "SUMMARY: raw draft text", session.CurrentSummary)
	assert.Equal(t, 1, summarizer.summarizeCalls)
	assert.True(t, session.IsAnonymous)

	// Nothing reaches storage until the draft is accepted
	var count int64
	require.NoError(t, db.Model(&models.Feedback{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestRefine_UpdatesSummaryAndCount(t *testing.T) {
	manager, _, db := setupReviewTest(t)
	_, member := seedTeam(t, db)

	session, err := manager.Start(context.Background(), StartRequest{
		ReceiverID: member.ID,
		RawInput:   "raw draft text",
	})
	require.NoError(t, err)

	refined, err := manager.Refine(context.Background(), session.ID, "that is not what I meant")
	require.NoError(t, err)

	assert.Equal(t, StateReviewing, refined.State)
	assert.Equal(t, 1, refined.RefinementCount)
	assert.Equal(t, "SUMMARY: raw draft text (rev 1)", refined.CurrentSummary)
}

func TestRefine_CapAfterFiveCycles(t *testing.T) {
	manager, _, db := setupReviewTest(t)
	_, member := seedTeam(t, db)

	session, err := manager.Start(context.Background(), StartRequest{
		ReceiverID: member.ID,
		RawInput:   "raw draft text",
	})
	require.NoError(t, err)

	for i := 0; i < MaxRefinements; i++ {
		session, err = manager.Refine(context.Background(), session.ID, "still not right")
		require.NoError(t, err)
	}
	assert.Equal(t, StateConcluded, session.State)
	assert.Equal(t, MaxRefinements, session.RefinementCount)

	// The sixth disagreement is rejected; only accepting remains
	_, err = manager.Refine(context.Background(), session.ID, "one more time")
	assert.ErrorIs(t, err, ErrRefinementLimit)

	// Accepting a concluded draft still works
	feedback, err := manager.Accept(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.CurrentSummary, feedback.Message)
}

func TestRefine_FailureDoesNotConsumeCycle(t *testing.T) {
	manager, summarizer, db := setupReviewTest(t)
	_, member := seedTeam(t, db)

	session, err := manager.Start(context.Background(), StartRequest{
		ReceiverID: member.ID,
		RawInput:   "raw draft text",
	})
	require.NoError(t, err)

	summarizer.failReconcile = true
	_, err = manager.Refine(context.Background(), session.ID, "correction")
	assert.ErrorIs(t, err, workflow.ErrSummarizationFailed)

	// The draft stays reviewable with the counter untouched
	reloaded, err := manager.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReviewing, reloaded.State)
	assert.Equal(t, 0, reloaded.RefinementCount)

	summarizer.failReconcile = false
	refined, err := manager.Refine(context.Background(), session.ID, "correction")
	require.NoError(t, err)
	assert.Equal(t, 1, refined.RefinementCount)
}

func TestAccept_PassesSummaryThroughUnchanged(t *testing.T) {
	manager, summarizer, db := setupReviewTest(t)
	leader, member := seedTeam(t, db)

	sender := member.ID
	session, err := manager.Start(context.Background(), StartRequest{
		SenderID:   &sender,
		ReceiverID: member.ID,
		RawInput:   "raw draft text",
	})
	require.NoError(t, err)

	feedback, err := manager.Accept(context.Background(), session.ID)
	require.NoError(t, err)

	// The reviewed text is stored as-is, not summarized a second time
	assert.Equal(t, session.CurrentSummary, feedback.Message)
	assert.Equal(t, 1, summarizer.summarizeCalls)
	assert.Equal(t, leader.ID, feedback.ReceiverUserID)
	assert.Equal(t, member.ID, feedback.SenderUserID)

	// The session is gone once submitted
	_, err = manager.Get(context.Background(), session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAccept_WorkflowFailureKeepsSession(t *testing.T) {
	manager, _, db := setupReviewTest(t)
	seedTeam(t, db)

	// Receiver without a team makes the final submission fail
	loner := &models.User{Name: "No Team", Email: "loner@example.com", Password: "password123"}
	require.NoError(t, db.Create(loner).Error)

	session, err := manager.Start(context.Background(), StartRequest{
		ReceiverID: loner.ID,
		RawInput:   "raw draft text",
	})
	require.NoError(t, err)

	_, err = manager.Accept(context.Background(), session.ID)
	assert.ErrorIs(t, err, workflow.ErrTeamNotFound)

	// The draft is still there for the sender to retarget or retry
	reloaded, err := manager.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReviewing, reloaded.State)
}

func TestRefine_UnknownSession(t *testing.T) {
	manager, _, _ := setupReviewTest(t)

	_, err := manager.Refine(context.Background(), "missing", "correction")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCanRefine(t *testing.T) {
	session := &DraftSession{State: StateReviewing, RefinementCount: MaxRefinements - 1}
	assert.True(t, session.CanRefine())

	session.RefinementCount = MaxRefinements
	assert.False(t, session.CanRefine())

	session = &DraftSession{State: StateDrafting}
	assert.False(t, session.CanRefine())
}
