package domain

import "time"

type Trip struct {
	ID            string    `json:"id"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departure_time"`
	SeatPrice     int64     `json:"seat_price"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
}

func (t *Trip) Departed(now time.Time) bool {
	return !now.Before(t.DepartureTime)
}

type SeatState string

const (
	SeatAvailable SeatState = "available"
	SeatLocked    SeatState = "locked"
	SeatBooked    SeatState = "booked"
)

type Seat struct {
	Code  string    `json:"code"`
	State SeatState `json:"state"`
}
