package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Team groups users under a leader. The leader is the sole receiver of
// feedback addressed to the team.
type Team struct {
	ID           string      `json:"id" gorm:"unique;not null"`
	Name         string      `gorm:"not null" json:"name" validate:"required"`
	LeaderID     string      `gorm:"not null" json:"leader_id" validate:"required"`
	Leader       *User       `json:"leader,omitempty" gorm:"foreignKey:LeaderID"`
	EnterpriseID *string     `json:"enterprise_id" gorm:"default:null"`
	Enterprise   *Enterprise `json:"enterprise,omitempty"`
	Members      []User      `json:"members,omitempty" gorm:"many2many:team_members"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (t *Team) BeforeCreate(tx *gorm.DB) (err error) {
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return err
	}
	t.ID = uuidV7.String()

	return
}

func GetTeamByID(db *gorm.DB, id string) (*Team, error) {
	var team Team
	if err := db.Where("id = ?", id).First(&team).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

// GetTeamByMemberID finds the team whose member set contains the given user.
// The leader is derived from that team, decoupling who feedback is about
// from who it must reach.
func GetTeamByMemberID(db *gorm.DB, userID string) (*Team, error) {
	var team Team
	err := db.
		Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("team_members.user_id = ?", userID).
		First(&team).Error
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// GetTeamByLeaderID finds the team a user leads.
func GetTeamByLeaderID(db *gorm.DB, leaderID string) (*Team, error) {
	var team Team
	if err := db.Where("leader_id = ?", leaderID).First(&team).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

// AddMember appends a user to the team's member set.
func (t *Team) AddMember(db *gorm.DB, user *User) error {
	if user == nil {
		return errors.New("user is required")
	}
	return db.Model(t).Association("Members").Append(user)
}
