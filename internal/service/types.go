package service

import (
	"context"
	"errors"
	"time"

	"eventDesk/internal/model"
)

var (
	ErrValidationFailed   = errors.New("validation failed")
	ErrEventFull          = errors.New("event is full")
	ErrRegistrationClosed = errors.New("registration closed")
)

type EventInput struct {
	Name        string          `json:"name" validate:"required,max=100,safetext"`
	Type        model.EventType `json:"type" validate:"required,eventtype"`
	Date        string          `json:"date" validate:"required,date"`
	Time        *string         `json:"time,omitempty" validate:"omitempty,clock"`
	Location    *string         `json:"location,omitempty" validate:"omitempty,max=200,safetext"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=2000,safetext"`
	Capacity    *int            `json:"capacity,omitempty" validate:"omitempty,positive"`
	Fee         *float64        `json:"fee,omitempty" validate:"omitempty,gte=0"`
	Deadline    *string         `json:"deadline,omitempty" validate:"omitempty,date"`
	Active      *bool           `json:"active,omitempty"`
	PosterURL   *string         `json:"posterUrl,omitempty" validate:"omitempty,max=2000000"`
}

// EventPatch changes only the fields that are set. An empty string clears
// an optional field.
type EventPatch struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,min=1,max=100,safetext"`
	Type        *model.EventType `json:"type,omitempty" validate:"omitempty,eventtype"`
	Date        *string          `json:"date,omitempty" validate:"omitempty,date"`
	Time        *string          `json:"time,omitempty" validate:"omitempty,clock"`
	Location    *string          `json:"location,omitempty" validate:"omitempty,max=200,safetext"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=2000,safetext"`
	Capacity    *int             `json:"capacity,omitempty" validate:"omitempty,positive"`
	Fee         *float64         `json:"fee,omitempty" validate:"omitempty,gte=0"`
	Deadline    *string          `json:"deadline,omitempty" validate:"omitempty,date"`
	Active      *bool            `json:"active,omitempty"`
	PosterURL   *string          `json:"posterUrl,omitempty" validate:"omitempty,max=2000000"`
}

type RegistrationInput struct {
	EventID             string  `json:"eventId" validate:"required,max=64"`
	Name                string  `json:"name" validate:"required,min=2,max=50,safetext"`
	Email               *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone               *string `json:"phone,omitempty" validate:"omitempty,min=6,max=20,safetext"`
	Grade               *string `json:"grade,omitempty" validate:"omitempty,max=20,safetext"`
	ClassName           *string `json:"className,omitempty" validate:"omitempty,max=20,safetext"`
	SeatNumber          *int    `json:"seatNumber,omitempty" validate:"omitempty,positive,lte=99"`
	Birthdate           *string `json:"birthdate,omitempty" validate:"omitempty,date"`
	DietaryRequirements *string `json:"dietaryRequirements,omitempty" validate:"omitempty,max=500,safetext"`
	Notes               *string `json:"notes,omitempty" validate:"omitempty,max=1000,safetext"`
	SignatureImage      *string `json:"signatureImage,omitempty" validate:"omitempty,max=2000000"`
}

type RegistrationPatch struct {
	Status              *model.Status `json:"status,omitempty" validate:"omitempty,status"`
	Name                *string       `json:"name,omitempty" validate:"omitempty,min=2,max=50,safetext"`
	Email               *string       `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone               *string       `json:"phone,omitempty" validate:"omitempty,min=6,max=20,safetext"`
	DietaryRequirements *string       `json:"dietaryRequirements,omitempty" validate:"omitempty,max=500,safetext"`
	Notes               *string       `json:"notes,omitempty" validate:"omitempty,max=1000,safetext"`
}

type EventFilter struct {
	IncludeInactive bool
}

type EventList struct {
	Items     []model.Event `json:"items"`
	FromCache bool          `json:"fromCache"`
}

type Period string

const (
	PeriodAll   Period = ""
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

type RegistrationFilter struct {
	Search  string       `form:"search" validate:"max=100"`
	EventID string       `form:"eventId" validate:"max=64"`
	Period  Period       `form:"period" validate:"omitempty,oneof=today week month"`
	Status  model.Status `form:"status" validate:"omitempty,status"`
}

type RegistrationList struct {
	Items     []model.Registration `json:"items"`
	FromCache bool                 `json:"fromCache"`
}

type Stats struct {
	Total     int  `json:"total"`
	Today     int  `json:"today"`
	Week      int  `json:"week"`
	Pending   int  `json:"pending"`
	FromCache bool `json:"fromCache"`
}

// Notifier announces that a collection changed after a successful write.
type Notifier interface {
	Notify(ctx context.Context, collection string)
}

type Mailer interface {
	SendStatusUpdate(ctx context.Context, to, applicant, eventName string, status model.Status) error
}

type EventService interface {
	CreateEvent(ctx context.Context, in EventInput) (*model.Event, error)
	UpdateEvent(ctx context.Context, id string, patch EventPatch) (*model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context, f EventFilter) (EventList, error)
}

type RegistrationService interface {
	CreateRegistration(ctx context.Context, in RegistrationInput) (*model.Registration, error)
	UpdateRegistration(ctx context.Context, id string, patch RegistrationPatch) (*model.Registration, error)
	DeleteRegistration(ctx context.Context, id string) error
	ClearRegistrations(ctx context.Context) (int, error)
	ListRegistrations(ctx context.Context, f RegistrationFilter) (RegistrationList, error)
	Stats(ctx context.Context) (Stats, error)
}

type Service interface {
	EventService
	RegistrationService
}

func clock() time.Time { return time.Now() }
