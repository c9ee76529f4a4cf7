package entity

import "time"

// Record is one shift in `clock_records`. An open shift has no ClockOutTime.
type Record struct {
	ID           int64      `db:"id" json:"recordId"`
	UserID       int64      `db:"user_id" json:"userId"`
	LocationID   *int64     `db:"location_id" json:"locationId,omitempty"`
	ClockInTime  time.Time  `db:"clock_in_time" json:"clockInTime"`
	ClockOutTime *time.Time `db:"clock_out_time" json:"clockOutTime,omitempty"`
	TotalHours   *float64   `db:"total_hours" json:"totalHours,omitempty"`
	JobsiteNotes *string    `db:"jobsite_notes" json:"notes,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`

	UserName     string  `db:"user_name" json:"userName,omitempty"`
	LocationName *string `db:"location_name" json:"locationName,omitempty"`
}

func (r *Record) Open() bool { return r.ClockOutTime == nil }

func (r *Record) StatusText() string {
	if r.Open() {
		return "Active"
	}
	return "Completed"
}

// HoursAt is the elapsed time of the shift in hours, measured to now for an
// open shift.
func (r *Record) HoursAt(now time.Time) float64 {
	end := now
	if r.ClockOutTime != nil {
		end = *r.ClockOutTime
	}
	return end.Sub(r.ClockInTime).Hours()
}
