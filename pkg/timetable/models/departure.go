package models

import "time"

// Departure is one upcoming train at the requested station.
type Departure struct {
	Time        string    `json:"time"`
	Minutes     int       `json:"minutes"`
	IsTomorrow  bool      `json:"is_tomorrow"`
	IsCarryover bool      `json:"is_carryover"`
	Schedule    string    `json:"schedule"`
	ScheduleURL string    `json:"schedule_url"`
	DepartsAt   time.Time `json:"departs_at"`
}

// ResolvedDirection is the answer for one station and direction.
type ResolvedDirection struct {
	Station     string      `json:"station"`
	Direction   Direction   `json:"direction"`
	Trains      []Departure `json:"trains"`
	Schedule    string      `json:"schedule"`
	ScheduleURL string      `json:"schedule_url"`
}

// Board is the answer for one station in both directions. A nil direction
// means no upcoming service that way.
type Board struct {
	Query       string             `json:"query,omitempty"`
	Station     string             `json:"station"`
	GeneratedAt time.Time          `json:"server_time_iso"`
	Eastbound   *ResolvedDirection `json:"eastbound"`
	Westbound   *ResolvedDirection `json:"westbound"`
}

// For returns the side of the board for dir.
func (b Board) For(dir Direction) *ResolvedDirection {
	if dir == Eastbound {
		return b.Eastbound
	}
	return b.Westbound
}
