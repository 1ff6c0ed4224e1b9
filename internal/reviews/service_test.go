package reviews

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/notify"
)

type sentMessage struct {
	recipients []notify.Recipient
	msg        notify.Message
}

type fakeNotifier struct {
	sent []sentMessage
}

func (f *fakeNotifier) Notify(_ context.Context, recipients []notify.Recipient, msg notify.Message) []notify.DeliveryResult {
	f.sent = append(f.sent, sentMessage{recipients: recipients, msg: msg})
	return nil
}

type fakePublisher struct {
	events []any
}

func (f *fakePublisher) Publish(_ context.Context, _ string, event any) error {
	f.events = append(f.events, event)
	return nil
}

type fakeRooms map[int64]string

func (f fakeRooms) Lookup(id int64) (string, bool) {
	room, ok := f[id]
	return room, ok
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestService_WizardToModeration(t *testing.T) {
	store := newMemoryReviews()
	sessions := NewMemorySessionStore()
	notifier := &fakeNotifier{}
	publisher := &fakePublisher{}
	dir := notify.Directory{AdminIDs: []int64{1}, ManagerIDs: []int64{2, 1}}

	svc := NewService(store, sessions, fakeRooms{77: "205"}, notifier, dir, discardLogger(),
		WithPublisher(publisher), WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	session, err := svc.Start(ctx, 77, "ana")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.Draft.ScannedRoom != "205" {
		t.Fatalf("expected scanned room 205, got %q", session.Draft.ScannedRoom)
	}

	inputs := []Input{TextInput{Text: "Ana"}}
	for _, c := range domain.Criteria {
		inputs = append(inputs, ScoreInput{Criterion: c, Value: 9})
	}
	inputs = append(inputs, SkipInput{}, SkipInput{}, TextInput{Text: "lovely stay"}, ConfirmInput{})

	var outcome *Outcome
	for _, in := range inputs {
		outcome, err = svc.Handle(ctx, 77, in)
		if err != nil {
			t.Fatalf("handle %T: %v", in, err)
		}
	}

	if outcome.Effect != EffectSubmit || outcome.Review == nil {
		t.Fatalf("expected submitted review, got %+v", outcome)
	}

	stored := store.reviews[outcome.Review.ID]
	if stored.Status != domain.ReviewStatusPending || stored.Published {
		t.Errorf("expected pending unpublished review, got %s published=%v", stored.Status, stored.Published)
	}
	if stored.ScannedRoom == nil || *stored.ScannedRoom != "205" || stored.Room == nil || *stored.Room != "205" {
		t.Errorf("expected room 205, got room=%v scanned=%v", stored.Room, stored.ScannedRoom)
	}
	if stored.DisplayName != "Ana" || stored.Comment == nil || *stored.Comment != "lovely stay" {
		t.Errorf("unexpected review: %+v", stored)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected one moderator notification, got %d", len(notifier.sent))
	}
	if got := len(notifier.sent[0].recipients); got != 2 {
		t.Errorf("expected 2 moderators, got %d", got)
	}
	if !strings.Contains(notifier.sent[0].msg.Text, "9.0/10") {
		t.Errorf("expected average in message: %q", notifier.sent[0].msg.Text)
	}
	if len(publisher.events) != 1 {
		t.Errorf("expected one event, got %d", len(publisher.events))
	}

	if s, _ := sessions.Get(ctx, 77); s != nil {
		t.Error("expected session removed after submit")
	}
}

func TestService_Handle(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		svc := NewService(newMemoryReviews(), NewMemorySessionStore(), nil, &fakeNotifier{}, notify.Directory{}, discardLogger())

		_, err := svc.Handle(context.Background(), 77, TextInput{Text: "hi"})
		if !errors.Is(err, ErrNoSession) {
			t.Errorf("expected ErrNoSession, got %v", err)
		}
	})

	t.Run("rejected input keeps the session", func(t *testing.T) {
		sessions := NewMemorySessionStore()
		svc := NewService(newMemoryReviews(), sessions, nil, &fakeNotifier{}, notify.Directory{}, discardLogger())
		ctx := context.Background()

		_, _ = svc.Start(ctx, 77, "")
		outcome, err := svc.Handle(ctx, 77, ConfirmInput{})
		if !errors.Is(err, ErrUnexpectedInput) {
			t.Fatalf("expected ErrUnexpectedInput, got %v", err)
		}
		if outcome.Session.Step != StepName {
			t.Errorf("expected name step, got %s", outcome.Session.Step)
		}
		if s, _ := sessions.Get(ctx, 77); s == nil || s.Step != StepName {
			t.Errorf("expected stored session at name step, got %+v", s)
		}
	})

	t.Run("cancel removes the session", func(t *testing.T) {
		sessions := NewMemorySessionStore()
		store := newMemoryReviews()
		svc := NewService(store, sessions, nil, &fakeNotifier{}, notify.Directory{}, discardLogger())
		ctx := context.Background()

		_, _ = svc.Start(ctx, 77, "")
		outcome, err := svc.Handle(ctx, 77, CancelInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if outcome.Effect != EffectCancelled {
			t.Errorf("expected cancelled effect, got %v", outcome.Effect)
		}
		if s, _ := sessions.Get(ctx, 77); s != nil {
			t.Error("expected session removed")
		}
		if len(store.reviews) != 0 {
			t.Error("cancel must not store a review")
		}
	})
}

// rendezvousSessions holds every Get until parties callers have loaded the session.
type rendezvousSessions struct {
	*MemorySessionStore
	arrived sync.WaitGroup
}

func newRendezvousSessions(parties int) *rendezvousSessions {
	r := &rendezvousSessions{MemorySessionStore: NewMemorySessionStore()}
	r.arrived.Add(parties)
	return r
}

func (r *rendezvousSessions) Get(ctx context.Context, requesterID int64) (*Session, error) {
	s, err := r.MemorySessionStore.Get(ctx, requesterID)
	r.arrived.Done()
	r.arrived.Wait()
	return s, err
}

func confirmStepSession(requesterID int64) *Session {
	session := NewSession(requesterID, "ana", "")
	session.Step = StepConfirm
	session.Draft.GuestName = "Ana"
	session.Draft.Scores = domain.Scores{Cleanliness: 9, Comfort: 9, Location: 9, Facilities: 9, Staff: 9, Value: 9}
	return &session
}

type failingReviews struct{}

func (failingReviews) Create(context.Context, *domain.Review) error {
	return errors.New("connection refused")
}

func TestService_ConfirmOnce(t *testing.T) {
	t.Run("concurrent confirms submit a single review", func(t *testing.T) {
		store := newMemoryReviews()
		sessions := newRendezvousSessions(2)
		publisher := &fakePublisher{}
		svc := NewService(store, sessions, nil, &fakeNotifier{}, notify.Directory{}, discardLogger(), WithPublisher(publisher))
		ctx := context.Background()

		if err := sessions.Save(ctx, confirmStepSession(77)); err != nil {
			t.Fatalf("save: %v", err)
		}

		errs := make(chan error, 2)
		for range 2 {
			go func() {
				_, err := svc.Handle(ctx, 77, ConfirmInput{})
				errs <- err
			}()
		}

		var submitted, refused int
		for range 2 {
			switch err := <-errs; {
			case err == nil:
				submitted++
			case errors.Is(err, ErrNoSession):
				refused++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}

		if submitted != 1 || refused != 1 {
			t.Errorf("expected one submit and one refusal, got %d and %d", submitted, refused)
		}
		if len(store.reviews) != 1 {
			t.Errorf("expected one stored review, got %d", len(store.reviews))
		}
		if len(publisher.events) != 1 {
			t.Errorf("expected one event, got %d", len(publisher.events))
		}
	})

	t.Run("failed submit keeps the session", func(t *testing.T) {
		sessions := NewMemorySessionStore()
		svc := NewService(failingReviews{}, sessions, nil, &fakeNotifier{}, notify.Directory{}, discardLogger())
		ctx := context.Background()

		_ = sessions.Save(ctx, confirmStepSession(77))

		if _, err := svc.Handle(ctx, 77, ConfirmInput{}); err == nil {
			t.Fatal("expected storage error")
		}

		s, _ := sessions.Get(ctx, 77)
		if s == nil || s.Step != StepConfirm {
			t.Fatalf("expected session back at confirm, got %+v", s)
		}
	})
}

func TestService_SubmitUsesLatestScan(t *testing.T) {
	store := newMemoryReviews()
	tracked := fakeRooms{}
	svc := NewService(store, NewMemorySessionStore(), tracked, &fakeNotifier{}, notify.Directory{}, discardLogger())
	ctx := context.Background()

	if _, err := svc.Start(ctx, 77, "ana"); err != nil {
		t.Fatalf("start: %v", err)
	}

	inputs := []Input{TextInput{Text: "Ana"}, SkipInput{}}
	for _, c := range domain.Criteria {
		inputs = append(inputs, ScoreInput{Criterion: c, Value: 8})
	}
	inputs = append(inputs, SkipInput{}, SkipInput{}, SkipInput{})
	for _, in := range inputs {
		if _, err := svc.Handle(ctx, 77, in); err != nil {
			t.Fatalf("handle %T: %v", in, err)
		}
	}

	tracked[77] = "310"

	outcome, err := svc.Handle(ctx, 77, ConfirmInput{})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	stored := store.reviews[outcome.Review.ID]
	if stored.ScannedRoom == nil || *stored.ScannedRoom != "310" {
		t.Errorf("expected scanned room 310, got %v", stored.ScannedRoom)
	}
	if stored.Room == nil || *stored.Room != "310" {
		t.Errorf("expected skipped room to fall back to 310, got %v", stored.Room)
	}
}
