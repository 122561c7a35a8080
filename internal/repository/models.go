package repository

import "time"

// ReportStatus is the collection lifecycle of a report.
type ReportStatus string

const (
	StatusPending    ReportStatus = "pending"
	StatusInProgress ReportStatus = "in_progress"
	StatusCompleted  ReportStatus = "completed"
)

// User is a reporter or collector.
type User struct {
	ID        uint      `gorm:"primaryKey"`
	Email     string    `gorm:"column:email;uniqueIndex;size:255;not null"`
	Name      string    `gorm:"column:name;size:255;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (User) TableName() string {
	return "users"
}

// Report is a persisted waste report.
type Report struct {
	ID                 uint         `gorm:"primaryKey"`
	UserID             uint         `gorm:"column:user_id;index;not null"`
	Location           string       `gorm:"column:location;type:text;not null"`
	WasteType          string       `gorm:"column:waste_type;size:255;not null"`
	Amount             string       `gorm:"column:amount;size:255;not null"`
	ImageURL           *string      `gorm:"column:image_url;type:text"`
	VerificationResult *string      `gorm:"column:verification_result;type:text"`
	Status             ReportStatus `gorm:"column:status;size:32;not null;default:pending;index"`
	CollectorID        *uint        `gorm:"column:collector_id"`
	CreatedAt          time.Time    `gorm:"column:created_at;index"`
}

// TableName overrides the default table name.
func (Report) TableName() string {
	return "reports"
}

// Reward holds points earned by a user.
type Reward struct {
	ID             uint      `gorm:"primaryKey"`
	UserID         uint      `gorm:"column:user_id;index;not null"`
	Points         int       `gorm:"column:points;not null;default:0"`
	Level          int       `gorm:"column:level;not null;default:1"`
	Name           string    `gorm:"column:name;size:255;not null"`
	Description    string    `gorm:"column:description;type:text"`
	CollectionInfo string    `gorm:"column:collection_info;type:text"`
	IsAvailable    bool      `gorm:"column:is_available;not null;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (Reward) TableName() string {
	return "rewards"
}

// AvailableReward is a reward a user may redeem, or the synthetic entry for
// the user's own point balance.
type AvailableReward struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	Cost           int    `json:"cost"`
	Description    string `json:"description"`
	CollectionInfo string `json:"collection_info"`
}
