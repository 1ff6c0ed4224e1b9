package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/joao-fontenele/guestdesk/internal/access"
	"github.com/joao-fontenele/guestdesk/internal/domain"
	"github.com/joao-fontenele/guestdesk/internal/notify"
)

type fakeStore struct {
	reviews []domain.Review
	calls   [][2]time.Time
}

func (f *fakeStore) Between(_ context.Context, from, to time.Time) ([]domain.Review, error) {
	f.calls = append(f.calls, [2]time.Time{from, to})
	var out []domain.Review
	for _, r := range f.reviews {
		if !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

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

type fakeCharts struct{}

func (fakeCharts) Render(context.Context, *Report) ([]notify.Attachment, error) {
	return []notify.Attachment{{Name: "trend.png", Data: []byte{1}}}, nil
}

type allowAll struct{}

func (allowAll) HasCapability(int64, access.Capability) bool { return true }

func newTestReporter(store Store, notifier Notifier, opts ...ReporterOption) *Reporter {
	dir := notify.Directory{AdminIDs: []int64{1}, ReportEmail: "report@example.com"}
	opts = append([]ReporterOption{WithClock(func() time.Time { return now })}, opts...)
	return NewReporter(store, notifier, dir, allowAll{}, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func TestReporter_Send(t *testing.T) {
	store := &fakeStore{reviews: []domain.Review{
		review(1, 9, domain.ReviewStatusApproved, now.Add(-48*time.Hour)),
		review(2, 6, domain.ReviewStatusApproved, now.AddDate(0, 0, -40)),
	}}
	notifier := &fakeNotifier{}
	r := newTestReporter(store, notifier, WithCharts(fakeCharts{}))

	if err := r.Send(context.Background(), 30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.calls) != 2 || !store.calls[1][1].Equal(store.calls[0][0]) {
		t.Errorf("expected adjacent windows, got %v", store.calls)
	}

	if len(notifier.sent) != 2 {
		t.Fatalf("expected admin text and report email, got %d", len(notifier.sent))
	}
	admin := notifier.sent[0]
	if !strings.Contains(admin.msg.Text, "Average: 9.0/10") || !strings.Contains(admin.msg.Text, "Change: +3.0") {
		t.Errorf("unexpected admin text: %q", admin.msg.Text)
	}
	if len(admin.msg.Attachments) != 1 {
		t.Errorf("expected chart attachment, got %d", len(admin.msg.Attachments))
	}

	email := notifier.sent[1]
	if email.recipients[0].Channel != notify.ChannelEmail || !strings.Contains(email.msg.HTML, "<b>9.0</b>") {
		t.Errorf("unexpected email: %+v", email)
	}
}

func TestReporter_EmptyPeriod(t *testing.T) {
	notifier := &fakeNotifier{}
	r := newTestReporter(&fakeStore{}, notifier, WithCharts(fakeCharts{}))

	if err := r.Send(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(notifier.sent[0].msg.Text, "No reviews in this period.") {
		t.Errorf("unexpected text: %q", notifier.sent[0].msg.Text)
	}
	if len(notifier.sent[0].msg.Attachments) != 0 {
		t.Error("expected no charts for an empty period")
	}
}

func TestReporter_ForActor(t *testing.T) {
	r := newTestReporter(&fakeStore{}, &fakeNotifier{})

	if _, _, err := r.ForActor(context.Background(), 1, 14); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for 14 days, got %v", err)
	}
	report, msg, err := r.ForActor(context.Background(), 1, 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Days != 90 || msg.Text == "" {
		t.Errorf("unexpected report: %+v", report)
	}

	denied := NewReporter(&fakeStore{}, &fakeNotifier{}, notify.Directory{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, _, err := denied.ForActor(context.Background(), 1, 7); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

type countingSender struct {
	calls chan int
}

func (c *countingSender) Send(_ context.Context, days int) error {
	c.calls <- days
	return nil
}

func TestScheduler_Next(t *testing.T) {
	s := NewScheduler(nil, 8, 0, 30, nil)

	before := time.Date(2026, 3, 1, 7, 59, 0, 0, time.UTC)
	if got := s.Next(before); !got.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("expected same day, got %v", got)
	}
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if got := s.Next(at); !got.Equal(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("expected next day, got %v", got)
	}
}

func TestScheduler_Run(t *testing.T) {
	sender := &countingSender{calls: make(chan int, 1)}
	s := NewScheduler(sender, 8, 0, 30, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return now }

	var (
		waited time.Duration
		fired  bool
	)
	s.after = func(d time.Duration) <-chan time.Time {
		if fired {
			return nil
		}
		fired = true
		waited = d
		fire := make(chan time.Time, 1)
		fire <- now
		return fire
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	if days := <-sender.calls; days != 30 {
		t.Errorf("expected 30 days, got %d", days)
	}
	cancel()
	<-done

	if waited != 24*time.Hour {
		t.Errorf("expected to wait a full day, got %v", waited)
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("08:30")
	if err != nil || h != 8 || m != 30 {
		t.Errorf("unexpected result: %d %d %v", h, m, err)
	}
	if _, _, err := ParseClock("8am"); err == nil {
		t.Error("expected error")
	}
}
