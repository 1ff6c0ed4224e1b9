package rooms

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/joao-fontenele/guestdesk/internal/domain"
)

type fakeStore struct {
	scans   []Scan
	codes   []Code
	scanErr error
}

func (s *fakeStore) LogScan(_ context.Context, scan Scan) error {
	if s.scanErr != nil {
		return s.scanErr
	}
	s.scans = append(s.scans, scan)
	return nil
}

func (s *fakeStore) UpsertCodes(_ context.Context, codes []Code) error {
	s.codes = append(s.codes, codes...)
	return nil
}

func (s *fakeStore) ListCodes(_ context.Context) ([]Code, error) {
	return s.codes, nil
}

func newTestService(store *fakeStore) *Service {
	return NewService(NewTracker(), store, "pelikan_bot", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestService_RecordScan(t *testing.T) {
	t.Run("records in tracker and scan log", func(t *testing.T) {
		store := &fakeStore{}
		svc := newTestService(store)

		svc.RecordScan(context.Background(), Scan{Room: "205", RequesterID: 9, Action: ActionReviewStart})

		if room, ok := svc.Lookup(9); !ok || room != "205" {
			t.Errorf("expected 205, got %q", room)
		}
		if len(store.scans) != 1 {
			t.Fatalf("expected 1 logged scan, got %d", len(store.scans))
		}
		if store.scans[0].ScannedAt.IsZero() {
			t.Error("expected scan time to be stamped")
		}
	})

	t.Run("scan log failure keeps the association", func(t *testing.T) {
		store := &fakeStore{scanErr: errors.New("db down")}
		svc := newTestService(store)

		svc.RecordScan(context.Background(), Scan{Room: "301", RequesterID: 3})

		if room, ok := svc.Lookup(3); !ok || room != "301" {
			t.Errorf("expected 301, got %q", room)
		}
	})
}

func TestService_GenerateCodes(t *testing.T) {
	t.Run("all rooms", func(t *testing.T) {
		store := &fakeStore{}
		codes, err := newTestService(store).GenerateCodes(context.Background(), "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(codes) != len(Catalog()) {
			t.Errorf("expected %d codes, got %d", len(Catalog()), len(codes))
		}
	})

	t.Run("single room", func(t *testing.T) {
		store := &fakeStore{}
		codes, err := newTestService(store).GenerateCodes(context.Background(), "402")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(codes) != 1 || codes[0].DeepLink != "https://t.me/pelikan_bot?start=review_402" {
			t.Errorf("unexpected codes: %+v", codes)
		}
	})

	t.Run("room outside catalog", func(t *testing.T) {
		store := &fakeStore{}
		_, err := newTestService(store).GenerateCodes(context.Background(), "999")
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
		if len(store.codes) != 0 {
			t.Error("nothing should be stored for an unknown room")
		}
	})
}
