package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Enterprise is the organizational container that owns teams.
type Enterprise struct {
	ID          string    `json:"id" gorm:"unique;not null"`
	Name        string    `gorm:"not null" json:"name" validate:"required"`
	AdminUserID string    `gorm:"not null" json:"admin_user_id" validate:"required"`
	AdminUser   *User     `json:"admin_user,omitempty" gorm:"foreignKey:AdminUserID"`
	Teams       []Team    `json:"teams,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (e *Enterprise) BeforeCreate(tx *gorm.DB) (err error) {
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return err
	}
	e.ID = uuidV7.String()

	return
}

func GetEnterpriseByID(db *gorm.DB, id string) (*Enterprise, error) {
	var enterprise Enterprise
	if err := db.Where("id = ?", id).First(&enterprise).Error; err != nil {
		return nil, err
	}
	return &enterprise, nil
}
