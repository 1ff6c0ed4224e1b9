package reviews

import (
	"errors"
	"strings"
	"time"

	"github.com/joao-fontenele/guestdesk/internal/domain"
)

type Step string

const (
	StepName        Step = "name"
	StepRoom        Step = "room"
	StepCleanliness Step = "cleanliness"
	StepComfort     Step = "comfort"
	StepLocation    Step = "location"
	StepFacilities  Step = "facilities"
	StepStaff       Step = "staff"
	StepValue       Step = "value"
	StepPros        Step = "pros"
	StepCons        Step = "cons"
	StepComment     Step = "comment"
	StepConfirm     Step = "confirm"
	StepDone        Step = "done"
	StepCancelled   Step = "cancelled"
)

// Criterion returns the scored category asked at this step, if any.
func (s Step) Criterion() (domain.Criterion, bool) {
	c := domain.Criterion(s)
	return c, c.Valid()
}

func (s Step) Terminal() bool {
	return s == StepDone || s == StepCancelled
}

func (s Step) skippable() bool {
	switch s {
	case StepRoom, StepPros, StepCons, StepComment:
		return true
	}
	return false
}

// Draft is the review being assembled. It is persisted with the session.
type Draft struct {
	GuestName   string        `json:"guest_name"`
	Room        string        `json:"room,omitempty"`
	ScannedRoom string        `json:"scanned_room,omitempty"`
	Scores      domain.Scores `json:"scores"`
	Pros        string        `json:"pros,omitempty"`
	Cons        string        `json:"cons,omitempty"`
	Comment     string        `json:"comment,omitempty"`
}

type Session struct {
	RequesterID     int64     `db:"requester_id"`
	RequesterHandle string    `db:"requester_handle"`
	Step            Step      `db:"step"`
	Draft           Draft     `db:"-"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// NewSession starts a wizard. A known scanned room prefills the room and skips its step later.
func NewSession(requesterID int64, handle, scannedRoom string) Session {
	return Session{
		RequesterID:     requesterID,
		RequesterHandle: handle,
		Step:            StepName,
		Draft: Draft{
			Room:        scannedRoom,
			ScannedRoom: scannedRoom,
		},
	}
}

type Input interface {
	input()
}

type TextInput struct {
	Text string
}

type ScoreInput struct {
	Criterion domain.Criterion
	Value     int
}

type SkipInput struct{}

type ConfirmInput struct{}

type CancelInput struct{}

func (TextInput) input()    {}
func (ScoreInput) input()   {}
func (SkipInput) input()    {}
func (ConfirmInput) input() {}
func (CancelInput) input()  {}

// Effect tells the caller what to do after a step.
type Effect int

const (
	EffectPrompt Effect = iota
	EffectSubmit
	EffectCancelled
)

var ErrUnexpectedInput = errors.New("unexpected input for this step")

const maxTextLength = 1000

var stepOrder = []Step{
	StepName, StepRoom,
	StepCleanliness, StepComfort, StepLocation, StepFacilities, StepStaff, StepValue,
	StepPros, StepCons, StepComment, StepConfirm, StepDone,
}

func nextStep(s Session) Step {
	for i, step := range stepOrder {
		if step != s.Step {
			continue
		}
		next := stepOrder[i+1]
		if next == StepRoom && s.Draft.ScannedRoom != "" {
			next = stepOrder[i+2]
		}
		return next
	}
	return StepDone
}

// Advance applies one input to the session. On error the returned session is the one passed in.
func Advance(s Session, in Input) (Session, Effect, error) {
	if s.Step.Terminal() {
		return s, EffectPrompt, ErrUnexpectedInput
	}

	if _, ok := in.(CancelInput); ok {
		next := s
		next.Step = StepCancelled
		next.Draft = Draft{}
		return next, EffectCancelled, nil
	}

	next := s

	if criterion, ok := s.Step.Criterion(); ok {
		score, ok := in.(ScoreInput)
		if !ok || score.Criterion != criterion {
			return s, EffectPrompt, ErrUnexpectedInput
		}
		if !domain.ValidScore(score.Value) {
			return s, EffectPrompt, &domain.ValidationError{Field: string(criterion), Reason: "score must be between 1 and 10"}
		}
		next.Draft.Scores.Set(criterion, score.Value)
		next.Step = nextStep(s)
		return next, EffectPrompt, nil
	}

	switch in := in.(type) {
	case SkipInput:
		if !s.Step.skippable() {
			return s, EffectPrompt, ErrUnexpectedInput
		}
		next.Step = nextStep(s)
		return next, EffectPrompt, nil

	case TextInput:
		text := strings.TrimSpace(in.Text)
		if text == "" {
			return s, EffectPrompt, &domain.ValidationError{Field: string(s.Step), Reason: "text is required"}
		}
		if len(text) > maxTextLength {
			return s, EffectPrompt, &domain.ValidationError{Field: string(s.Step), Reason: "text is too long"}
		}
		switch s.Step {
		case StepName:
			next.Draft.GuestName = text
		case StepRoom:
			next.Draft.Room = text
		case StepPros:
			next.Draft.Pros = text
		case StepCons:
			next.Draft.Cons = text
		case StepComment:
			next.Draft.Comment = text
		default:
			return s, EffectPrompt, ErrUnexpectedInput
		}
		next.Step = nextStep(s)
		return next, EffectPrompt, nil

	case ConfirmInput:
		if s.Step != StepConfirm {
			return s, EffectPrompt, ErrUnexpectedInput
		}
		if err := s.Draft.Scores.Validate(); err != nil {
			return s, EffectPrompt, err
		}
		next.Step = StepDone
		return next, EffectSubmit, nil
	}

	return s, EffectPrompt, ErrUnexpectedInput
}

// Review builds the pending review a completed draft describes.
func (d Draft) Review(requesterID int64, handle string) *domain.Review {
	r := &domain.Review{
		RequesterID: &requesterID,
		GuestName:   d.GuestName,
		DisplayName: d.GuestName,
		Scores:      d.Scores,
		Room:        optional(d.Room),
		Pros:        optional(d.Pros),
		Cons:        optional(d.Cons),
		Comment:     optional(d.Comment),
		ScannedRoom: optional(d.ScannedRoom),
		Status:      domain.ReviewStatusPending,
	}
	if handle != "" {
		r.RequesterHandle = &handle
	}
	return r
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
