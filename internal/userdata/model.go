package userdata

import "time"

// Entry is one stored value. Value holds the serialized JSON text exactly
// as persisted, which may be invalid if the row was written out of band.
type Entry struct {
	UserID    int64     `json:"user_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
