package models

import "time"

// Session is one bookable calendar occurrence of an activity. Sessions are
// keyed by calendar date; a date may host several time slots.
type Session struct {
	ID         int64     `json:"id"`
	ActivityID int64     `json:"activity_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Location   string    `json:"location"`
	Price      float64   `json:"price"`
	CoachName  string    `json:"coach_name"`
	TeamName   string    `json:"team_name"`
}

// DateKey returns the calendar-date index key, time of day stripped.
func (s Session) DateKey() string {
	return s.StartTime.Format("2006-01-02")
}
