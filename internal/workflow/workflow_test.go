package workflow

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
)

type fakeSummarizer struct {
	calls int
	fail  bool
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	f.calls++
	if f.fail {
		return "", errors.New("upstream unavailable")
	}
	return "SUMMARY: " + text, nil
}

func (f *fakeSummarizer) Reconcile(ctx context.Context, priorSummary, correction string) (string, error) {
	f.calls++
	if f.fail {
		return "", errors.New("upstream unavailable")
	}
	return priorSummary + " / " + correction, nil
}

type failingSynthesizer struct{}

func (failingSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return nil, errors.New("synthesis unavailable")
}

type fakeNotifier struct {
	delivered []string
	fail      bool
}

func (f *fakeNotifier) DeliverSummary(ctx context.Context, text string, audioPath string) error {
	if f.fail {
		return errors.New("delivery unavailable")
	}
	f.delivered = append(f.delivered, text)
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.User{}, &models.Enterprise{}, &models.Team{}, &models.Feedback{})
	require.NoError(t, err)

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, name, email string) *models.User {
	user := &models.User{
		Name:     name,
		Email:    email,
		Password: "password123",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// createTestTeam creates a team led by leader with the given members. The
// leader is always a member as well.
func createTestTeam(t *testing.T, db *gorm.DB, leader *models.User, members ...*models.User) *models.Team {
	team := &models.Team{
		Name:     "Test Team",
		LeaderID: leader.ID,
	}
	require.NoError(t, db.Create(team).Error)
	require.NoError(t, team.AddMember(db, leader))
	for _, member := range members {
		require.NoError(t, team.AddMember(db, member))
	}
	return team
}

func newTestController(db *gorm.DB, cfg *config.Config, summarizer *fakeSummarizer, notifier *fakeNotifier) *Controller {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return New(db, cfg, summarizer, nil, notifier, echo.New().Logger)
}

func feedbackCount(t *testing.T, db *gorm.DB) int64 {
	var count int64
	require.NoError(t, db.Model(&models.Feedback{}).Count(&count).Error)
	return count
}

func TestSubmit_StoresSummaryNotRaw(t *testing.T) {
	db := setupTestDB(t)
	leader := createTestUser(t, db, "Lea Der", "leader@example.com")
	member := createTestUser(t, db, "Mem Ber", "member@example.com")
	createTestTeam(t, db, leader, member)

	summarizer := &fakeSummarizer{}
	notifier := &fakeNotifier{}
	controller := newTestController(db, nil, summarizer, notifier)

	sender := member.ID
	feedback, err := controller.Submit(context.Background(), SubmitRequest{
		SenderID:   &sender,
		ReceiverID: member.ID,
		RawMessage: "the standups are way too long",
	})
	require.NoError(t, err)

	assert.Equal(t, "SUMMARY: the standups are way too long", feedback.Message)
	assert.Equal(t, leader.ID, feedback.ReceiverUserID)
	assert.Equal(t, member.ID, feedback.SenderUserID)

	var stored models.Feedback
	require.NoError(t, db.First(&stored, "id = ?", feedback.ID).Error)
	assert.Equal(t, "SUMMARY: the standups are way too long", stored.Message)
	assert.NotContains(t, stored.Message, "\nthe standups are way too long\n")

	// The leader got the same text that was persisted
	require.Len(t, notifier.delivered, 1)
	assert.Equal(t, stored.Message, notifier.delivered[0])
}

func TestSubmit_AnonymousSender(t *testing.T) {
	db := setupTestDB(t)
	leader := createTestUser(t, db, "Lea Der", "leader@example.com")
	member := createTestUser(t, db, "Mem Ber", "member@example.com")
	createTestTeam(t, db, leader, member)

	controller := newTestController(db, nil, &fakeSummarizer{}, &fakeNotifier{})

	feedback, err := controller.Submit(context.Background(), SubmitRequest{
		ReceiverID: member.ID,
		RawMessage: "anonymous input",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AnonymousSender, feedback.SenderUserID)
}

func TestSubmit_SenderNotFound(t *testing.T) {
	db := setupTestDB(t)
	leader := createTestUser(t, db, "Lea Der", "leader@example.com")
	member := createTestUser(t, db, "Mem Ber", "member@example.com")
	createTestTeam(t, db, leader, member)

	summarizer := &fakeSummarizer{}
	controller := newTestController(db, nil, summarizer, &fakeNotifier{})

	unknown := "does-not-exist"
	_, err := controller.Submit(context.Background(), SubmitRequest{
		SenderID:   &unknown,
		ReceiverID: member.ID,
		RawMessage: "some feedback",
	})
	assert.ErrorIs(t, err, ErrSenderNotFound)

	// Validation happens before any model invocation or persistence
	assert.Equal(t, 0, summarizer.calls)
	assert.Equal(t, int64(0), feedbackCount(t, db))
}

func TestSubmit_ReceiverWithoutTeam(t *testing.T) {
	db := setupTestDB(t)
	loner := createTestUser(t, db, "No Team", "loner@example.com")

	summarizer := &fakeSummarizer{}
	controller := newTestController(db, nil, summarizer, &fakeNotifier{})

	_, err := controller.Submit(context.Background(), SubmitRequest{
		ReceiverID: loner.ID,
		RawMessage: "some feedback",
	})
	assert.ErrorIs(t, err, ErrTeamNotFound)
	assert.Equal(t, 0, summarizer.calls)
	assert.Equal(t, int64(0), feedbackCount(t, db))
}

func TestSubmit_SummarizationFailure(t *testing.T) {
	db := setupTestDB(t)
	leader := createTestUser(t, db, "Lea Der", "leader@example.com")
	member := createTestUser(t, db, "Mem Ber", "member@example.com")
	createTestTeam(t, db, leader, member)

	notifier := &fakeNotifier{}
	controller := newTestController(db, nil, &fakeSummarizer{fail: true}, notifier)

	_, err := controller.Submit(context.Background(), SubmitRequest{
		ReceiverID: member.ID,
		RawMessage: "some feedback",
	})
	assert.ErrorIs(t, err, ErrSummarizationFailed)

	// Nothing was persisted or delivered
	assert.Equal(t, int64(0), feedbackCount(t, db))
	assert.Empty(t, notifier.delivered)
}

func TestSubmit_DeliveryFailuresAreSwallowed(t *testing.T) {
	db := setupTestDB(t)
	leader := createTestUser(t, db, "Lea Der", "leader@example.com")
	member := createTestUser(t, db, "Mem Ber", "member@example.com")
	createTestTeam(t, db, leader, member)

	cfg := &config.Config{}
	cfg.VoiceDelivery = true
	controller := New(db, cfg, &fakeSummarizer{}, failingSynthesizer{}, &fakeNotifier{fail: true}, echo.New().Logger)

	feedback, err := controller.Submit(context.Background(), SubmitRequest{
		ReceiverID: member.ID,
		RawMessage: "some feedback",
	})
	require.NoError(t, err)
	require.NotNil(t, feedback)

	// The record survives both the synthesis and notification failures
	assert.Equal(t, int64(1), feedbackCount(t, db))
}

func TestSubmit_NoDeduplication(t *testing.T) {
	db := setupTestDB(t)
	leader := createTestUser(t, db, "Lea Der", "leader@example.com")
	member := createTestUser(t, db, "Mem Ber", "member@example.com")
	createTestTeam(t, db, leader, member)

	controller := newTestController(db, nil, &fakeSummarizer{}, &fakeNotifier{})

	req := SubmitRequest{ReceiverID: member.ID, RawMessage: "same text"}
	first, err := controller.Submit(context.Background(), req)
	require.NoError(t, err)
	second, err := controller.Submit(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, int64(2), feedbackCount(t, db))
}

func TestSubmit_PreSummarizedPassThrough(t *testing.T) {
	db := setupTestDB(t)
	leader := createTestUser(t, db, "Lea Der", "leader@example.com")
	member := createTestUser(t, db, "Mem Ber", "member@example.com")
	createTestTeam(t, db, leader, member)

	summarizer := &fakeSummarizer{}
	controller := newTestController(db, nil, summarizer, &fakeNotifier{})

	feedback, err := controller.Submit(context.Background(), SubmitRequest{
		ReceiverID: member.ID,
		RawMessage: "already reviewed summary",
		Summarized: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "already reviewed summary", feedback.Message)
	assert.Equal(t, 0, summarizer.calls)
}

func TestSubmit_FeedbackToLeaderGoesToOwnLeader(t *testing.T) {
	db := setupTestDB(t)
	leader := createTestUser(t, db, "Lea Der", "leader@example.com")
	member := createTestUser(t, db, "Mem Ber", "member@example.com")
	createTestTeam(t, db, leader, member)

	controller := newTestController(db, nil, &fakeSummarizer{}, &fakeNotifier{})

	// The leader is a member of their own team, so feedback addressed to the
	// leader resolves back to them.
	feedback, err := controller.Submit(context.Background(), SubmitRequest{
		ReceiverID: leader.ID,
		RawMessage: fmt.Sprintf("feedback about %s", leader.Name),
	})
	require.NoError(t, err)
	assert.Equal(t, leader.ID, feedback.ReceiverUserID)
}
