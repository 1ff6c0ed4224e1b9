package rooms

import (
	"context"
	"log/slog"
	"time"

	"github.com/joao-fontenele/guestdesk/internal/domain"
)

type Store interface {
	LogScan(ctx context.Context, scan Scan) error
	UpsertCodes(ctx context.Context, codes []Code) error
	ListCodes(ctx context.Context) ([]Code, error)
}

// Service binds the in-memory tracker to the persisted scan log and QR catalog.
type Service struct {
	tracker     *Tracker
	store       Store
	botUsername string
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(tracker *Tracker, store Store, botUsername string, logger *slog.Logger) *Service {
	return &Service{
		tracker:     tracker,
		store:       store,
		botUsername: botUsername,
		logger:      logger,
		now:         time.Now,
	}
}

// RecordScan updates the tracker first; a failing scan log never loses the association.
func (s *Service) RecordScan(ctx context.Context, scan Scan) {
	s.tracker.RecordScan(scan.RequesterID, scan.Room)

	if scan.ScannedAt.IsZero() {
		scan.ScannedAt = s.now().UTC()
	}
	if s.store == nil {
		return
	}
	if err := s.store.LogScan(ctx, scan); err != nil {
		s.logger.Error("failed to log qr scan", "error", err, "room", scan.Room, "requester_id", scan.RequesterID)
	}
}

func (s *Service) Lookup(requesterID int64) (string, bool) {
	return s.tracker.Lookup(requesterID)
}

// GenerateCodes (re)creates deep links for one catalog room, or for every room when room is empty.
func (s *Service) GenerateCodes(ctx context.Context, room string) ([]Code, error) {
	targets := Catalog()
	if room != "" {
		if !Contains(room) {
			return nil, &domain.ValidationError{Field: "room", Reason: "room " + room + " is not in the catalog"}
		}
		targets = []string{room}
	}

	codes := make([]Code, 0, len(targets))
	for _, r := range targets {
		codes = append(codes, Code{Room: r, DeepLink: DeepLink(s.botUsername, r)})
	}

	if err := s.store.UpsertCodes(ctx, codes); err != nil {
		return nil, err
	}

	s.logger.Info("qr codes generated", "count", len(codes))
	return codes, nil
}

func (s *Service) ListCodes(ctx context.Context) ([]Code, error) {
	return s.store.ListCodes(ctx)
}
