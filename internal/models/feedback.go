package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnonymousSender is stored as the sender when the submitter opts out of
// attribution. No identity linkage exists for such records.
const AnonymousSender = "anonymous"

// Feedback is the summarized message delivered to a team leader. The stored
// message is always the post-summarization text; raw transcripts and audio
// are transient and never persisted. Records are immutable once created.
type Feedback struct {
	ID             string    `json:"id" gorm:"unique;not null"`
	ReceiverUserID string    `gorm:"not null;index" json:"receiver_user_id"`
	SenderUserID   string    `gorm:"not null;index;default:anonymous" json:"sender_user_id"`
	Message        string    `gorm:"not null" json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

func (f *Feedback) BeforeCreate(tx *gorm.DB) (err error) {
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return err
	}
	f.ID = uuidV7.String()

	if f.SenderUserID == "" {
		f.SenderUserID = AnonymousSender
	}

	return
}

func GetFeedbackByID(db *gorm.DB, id string) (*Feedback, error) {
	var feedback Feedback
	if err := db.Where("id = ?", id).First(&feedback).Error; err != nil {
		return nil, err
	}
	return &feedback, nil
}
