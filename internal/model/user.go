package model

import "time"

// User is a planner owner. CalendarURL is the private ICS feed and doubles as the calendar access token.
type User struct {
	ID          string `gorm:"primaryKey;type:text"`
	TelegramID  *int64 `gorm:"uniqueIndex"`
	Name        string
	CalendarURL string
	Timezone    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
