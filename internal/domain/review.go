package domain

import (
	"fmt"
	"time"
)

type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

const (
	MinScore = 1
	MaxScore = 10
)

type Criterion string

const (
	CriterionCleanliness Criterion = "cleanliness"
	CriterionComfort     Criterion = "comfort"
	CriterionLocation    Criterion = "location"
	CriterionFacilities  Criterion = "facilities"
	CriterionStaff       Criterion = "staff"
	CriterionValue       Criterion = "value"
)

// Criteria lists the scored categories in the order guests are asked about them.
var Criteria = []Criterion{
	CriterionCleanliness,
	CriterionComfort,
	CriterionLocation,
	CriterionFacilities,
	CriterionStaff,
	CriterionValue,
}

func (c Criterion) Valid() bool {
	for _, known := range Criteria {
		if c == known {
			return true
		}
	}
	return false
}

// Scores holds the six category ratings. A zero value means "not rated yet".
type Scores struct {
	Cleanliness int `json:"cleanliness" db:"cleanliness"`
	Comfort     int `json:"comfort" db:"comfort"`
	Location    int `json:"location" db:"location"`
	Facilities  int `json:"facilities" db:"facilities"`
	Staff       int `json:"staff" db:"staff"`
	Value       int `json:"value" db:"value_for_money"`
}

func (s Scores) Get(c Criterion) int {
	switch c {
	case CriterionCleanliness:
		return s.Cleanliness
	case CriterionComfort:
		return s.Comfort
	case CriterionLocation:
		return s.Location
	case CriterionFacilities:
		return s.Facilities
	case CriterionStaff:
		return s.Staff
	case CriterionValue:
		return s.Value
	}
	return 0
}

func (s *Scores) Set(c Criterion, v int) {
	switch c {
	case CriterionCleanliness:
		s.Cleanliness = v
	case CriterionComfort:
		s.Comfort = v
	case CriterionLocation:
		s.Location = v
	case CriterionFacilities:
		s.Facilities = v
	case CriterionStaff:
		s.Staff = v
	case CriterionValue:
		s.Value = v
	}
}

func ValidScore(v int) bool {
	return v >= MinScore && v <= MaxScore
}

// Complete reports whether every criterion holds an in-range score.
func (s Scores) Complete() bool {
	for _, c := range Criteria {
		if !ValidScore(s.Get(c)) {
			return false
		}
	}
	return true
}

// Validate returns a ValidationError naming the first missing or out-of-range score.
func (s Scores) Validate() error {
	for _, c := range Criteria {
		if v := s.Get(c); !ValidScore(v) {
			return &ValidationError{Field: string(c), Reason: fmt.Sprintf("score %d is outside %d..%d", v, MinScore, MaxScore)}
		}
	}
	return nil
}

func (s Scores) Sum() int {
	return s.Cleanliness + s.Comfort + s.Location + s.Facilities + s.Staff + s.Value
}

// Average is the composite rating: the mean of the six scores.
func (s Scores) Average() float64 {
	return float64(s.Sum()) / float64(len(Criteria))
}

type Review struct {
	ID              int64        `json:"id" db:"id"`
	RequesterID     *int64       `json:"-" db:"telegram_user_id"`
	RequesterHandle *string      `json:"-" db:"telegram_username"`
	GuestName       string       `json:"-" db:"guest_name"`
	DisplayName     string       `json:"display_name" db:"display_name"`
	Room            *string      `json:"room,omitempty" db:"room_number"`
	Scores          `json:"scores"`
	Pros            *string      `json:"pros,omitempty" db:"pros"`
	Cons            *string      `json:"cons,omitempty" db:"cons"`
	Comment         *string      `json:"comment,omitempty" db:"comment"`
	Status          ReviewStatus `json:"status" db:"status"`
	Published       bool         `json:"published" db:"is_published"`
	ScannedRoom     *string      `json:"-" db:"scanned_room_number"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	ModeratedAt     *time.Time   `json:"-" db:"moderated_at"`
	ModeratedBy     *int64       `json:"-" db:"moderated_by"`
}

func (r *Review) Average() float64 {
	return r.Scores.Average()
}
