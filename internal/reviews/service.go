package reviews

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/notify"
)

type Store interface {
	Create(ctx context.Context, review *domain.Review) error
}

type RoomLookup interface {
	Lookup(requesterID int64) (string, bool)
}

type Notifier interface {
	Notify(ctx context.Context, recipients []notify.Recipient, msg notify.Message) []notify.DeliveryResult
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// ErrNoSession is returned when input arrives for a requester with no wizard in progress.
var ErrNoSession = errors.New("no review in progress")

// Outcome is the result of one wizard step. Review is set once the draft was submitted.
type Outcome struct {
	Session Session
	Effect  Effect
	Review  *domain.Review
}

type Service struct {
	store     Store
	sessions  SessionStore
	rooms     RoomLookup
	notifier  Notifier
	directory notify.Directory
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
	submitted metric.Int64Counter
}

type ServiceOption func(*Service)

func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, sessions SessionStore, rooms RoomLookup, notifier Notifier, directory notify.Directory, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		sessions:  sessions,
		rooms:     rooms,
		notifier:  notifier,
		directory: directory,
		logger:    logger,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.submitted, _ = otel.Meter("guestdesk/reviews").Int64Counter("guestdesk.reviews.submitted")

	return s
}

// Start opens a fresh wizard, replacing any unfinished one.
func (s *Service) Start(ctx context.Context, requesterID int64, handle string) (*Session, error) {
	var scanned string
	if s.rooms != nil {
		scanned, _ = s.rooms.Lookup(requesterID)
	}

	session := NewSession(requesterID, handle, scanned)
	session.UpdatedAt = s.now().UTC()

	if err := s.sessions.Save(ctx, &session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info("review started", "requester_id", requesterID, "scanned_room", scanned)
	return &session, nil
}

func (s *Service) Active(ctx context.Context, requesterID int64) (*Session, error) {
	return s.sessions.Get(ctx, requesterID)
}

// Handle feeds one input into the requester's wizard and submits the review on confirmation.
func (s *Service) Handle(ctx context.Context, requesterID int64, in Input) (*Outcome, error) {
	session, err := s.sessions.Get(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, ErrNoSession
	}

	next, effect, err := Advance(*session, in)
	if err != nil {
		return &Outcome{Session: *session, Effect: EffectPrompt}, err
	}
	next.UpdatedAt = s.now().UTC()

	outcome := &Outcome{Session: next, Effect: effect}

	switch effect {
	case EffectCancelled:
		if err := s.sessions.Delete(ctx, requesterID); err != nil {
			return nil, fmt.Errorf("delete session: %w", err)
		}
		s.logger.Info("review cancelled", "requester_id", requesterID)

	case EffectSubmit:
		// Only the caller that removes the confirm-step session submits it.
		claimed, err := s.sessions.Claim(ctx, requesterID, session.Step)
		if err != nil {
			return nil, fmt.Errorf("claim session: %w", err)
		}
		if claimed == nil {
			return nil, ErrNoSession
		}
		review, err := s.Submit(ctx, next)
		if err != nil {
			if err := s.sessions.Save(ctx, claimed); err != nil {
				s.logger.Error("failed to restore session", "error", err, "requester_id", requesterID)
			}
			return nil, err
		}
		outcome.Review = review

	default:
		if err := s.sessions.Save(ctx, &next); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
	}

	return outcome, nil
}

// Submit persists a completed draft as a pending, unpublished review and alerts moderators.
func (s *Service) Submit(ctx context.Context, session Session) (*domain.Review, error) {
	if err := session.Draft.Scores.Validate(); err != nil {
		return nil, err
	}
	if session.Draft.GuestName == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "required"}
	}

	// The latest scan wins, so a QR code scanned while the wizard was open is still recorded.
	if s.rooms != nil {
		if room, ok := s.rooms.Lookup(session.RequesterID); ok {
			session.Draft.ScannedRoom = room
			if session.Draft.Room == "" {
				session.Draft.Room = room
			}
		}
	}

	review := session.Draft.Review(session.RequesterID, session.RequesterHandle)
	review.CreatedAt = s.now().UTC()

	if err := s.store.Create(ctx, review); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}

	if s.submitted != nil {
		s.submitted.Add(ctx, 1)
	}

	s.notifier.Notify(ctx, s.directory.Moderators(), moderatorMessage(review))

	if s.publisher != nil {
		event := domain.ReviewSubmittedEvent{
			ReviewID:    review.ID,
			GuestName:   review.GuestName,
			Room:        deref(review.Room),
			ScannedRoom: deref(review.ScannedRoom),
			Average:     review.Average(),
			Timestamp:   review.CreatedAt,
		}
		if err := s.publisher.Publish(ctx, fmt.Sprint(review.ID), event); err != nil {
			s.logger.Error("failed to publish review submitted event", "error", err, "review_id", review.ID)
		}
	}

	s.logger.Info("review submitted", "review_id", review.ID, "average", review.Average())
	return review, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
