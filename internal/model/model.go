package model

import (
	"errors"
	"time"
)

// DeletedEventName is shown for registrations whose event no longer exists.
const DeletedEventName = "deleted event"

const DateLayout = "2006-01-02"

type EventType string

const (
	EventGroupCounseling EventType = "group-counseling"
	EventVolunteerGrowth EventType = "volunteer-growth"
	EventParentEducation EventType = "parent-education"
	EventLeadership      EventType = "leadership"
	EventArtWorkshop     EventType = "art-workshop"
)

var EventTypes = []EventType{
	EventGroupCounseling,
	EventVolunteerGrowth,
	EventParentEducation,
	EventLeadership,
	EventArtWorkshop,
}

func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Event struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        EventType  `json:"type"`
	Date        string     `json:"date"`
	Time        *string    `json:"time,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Description *string    `json:"description,omitempty"`
	Capacity    *int       `json:"capacity,omitempty"`
	Fee         *float64   `json:"fee,omitempty"`
	Deadline    *string    `json:"deadline,omitempty"`
	Active      bool       `json:"active"`
	PosterURL   *string    `json:"posterUrl,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// DeadlinePassed reports whether registration for the event is closed at now.
// The deadline day itself is still open.
func (e Event) DeadlinePassed(now time.Time) bool {
	if e.Deadline == nil || *e.Deadline == "" {
		return false
	}
	d, err := time.ParseInLocation(DateLayout, *e.Deadline, now.Location())
	if err != nil {
		return false
	}
	return !now.Before(d.AddDate(0, 0, 1))
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var validTransitions = map[Status][]Status{
	StatusPending:   {StatusPending, StatusProcessed},
	StatusProcessed: {StatusProcessed},
}

func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

type Registration struct {
	ID                  string     `json:"id"`
	EventID             string     `json:"eventId"`
	EventName           string     `json:"eventName,omitempty"`
	Name                string     `json:"name"`
	Email               *string    `json:"email,omitempty"`
	Phone               *string    `json:"phone,omitempty"`
	Grade               *string    `json:"grade,omitempty"`
	ClassName           *string    `json:"className,omitempty"`
	SeatNumber          *int       `json:"seatNumber,omitempty"`
	Birthdate           *string    `json:"birthdate,omitempty"`
	DietaryRequirements *string    `json:"dietaryRequirements,omitempty"`
	Notes               *string    `json:"notes,omitempty"`
	SignatureImage      *string    `json:"signatureImage,omitempty"`
	RegistrationDate    string     `json:"registrationDate"`
	Status              Status     `json:"status"`
	SubmittedAt         time.Time  `json:"submittedAt"`
	UpdatedAt           *time.Time `json:"updatedAt,omitempty"`
}

// Derived reports fields computed on read that are never written to the remote store.
var Derived = []string{"eventName"}
