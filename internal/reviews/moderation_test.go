package reviews

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/joao-fontenele/guestdesk/internal/access"
	"github.com/joao-fontenele/guestdesk/internal/domain"
)

// memoryReviews mirrors the guarded SQL statements of ReviewRepository.
type memoryReviews struct {
	mu      sync.Mutex
	nextID  int64
	reviews map[int64]*domain.Review
}

func newMemoryReviews() *memoryReviews {
	return &memoryReviews{reviews: map[int64]*domain.Review{}}
}

func (m *memoryReviews) Create(_ context.Context, r *domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	cp := *r
	m.reviews[r.ID] = &cp
	return nil
}

func (m *memoryReviews) GetByID(_ context.Context, id int64) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memoryReviews) update(id, actorID int64, at time.Time, guard func(*domain.Review) bool, apply func(*domain.Review)) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok || (guard != nil && !guard(r)) {
		return nil, nil
	}
	apply(r)
	r.ModeratedAt = &at
	r.ModeratedBy = &actorID
	cp := *r
	return &cp, nil
}

func (m *memoryReviews) ApproveAndPublish(_ context.Context, id, actorID int64, at time.Time) (*domain.Review, error) {
	return m.update(id, actorID, at, nil, func(r *domain.Review) {
		r.Status = domain.ReviewStatusApproved
		r.Published = true
	})
}

func (m *memoryReviews) ApproveOnly(_ context.Context, id, actorID int64, at time.Time) (*domain.Review, error) {
	return m.update(id, actorID, at, nil, func(r *domain.Review) { r.Status = domain.ReviewStatusApproved })
}

func (m *memoryReviews) Reject(_ context.Context, id, actorID int64, at time.Time) (*domain.Review, error) {
	return m.update(id, actorID, at, nil, func(r *domain.Review) {
		r.Status = domain.ReviewStatusRejected
		r.Published = false
	})
}

func (m *memoryReviews) Publish(_ context.Context, id, actorID int64, at time.Time) (*domain.Review, error) {
	return m.update(id, actorID, at,
		func(r *domain.Review) bool { return r.Status == domain.ReviewStatusApproved },
		func(r *domain.Review) { r.Published = true })
}

func (m *memoryReviews) Unpublish(_ context.Context, id, actorID int64, at time.Time) (*domain.Review, error) {
	return m.update(id, actorID, at, nil, func(r *domain.Review) { r.Published = false })
}

func (m *memoryReviews) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.reviews[id]
	delete(m.reviews, id)
	return ok, nil
}

func (m *memoryReviews) sorted(keep func(*domain.Review) bool) []domain.Review {
	var out []domain.Review
	for _, r := range m.reviews {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memoryReviews) Pending(_ context.Context, limit int) ([]domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(func(r *domain.Review) bool { return r.Status == domain.ReviewStatusPending })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryReviews) Published(_ context.Context, limit, offset int) ([]domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(func(r *domain.Review) bool { return r.Status == domain.ReviewStatusApproved && r.Published })
	if offset >= len(out) {
		return []domain.Review{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryReviews) seed(status domain.ReviewStatus, published bool, createdAt time.Time) int64 {
	r := &domain.Review{GuestName: "Guest", DisplayName: "Guest", Status: status, Published: published, CreatedAt: createdAt}
	_ = m.Create(context.Background(), r)
	return r.ID
}

type allowList map[int64][]access.Capability

func (a allowList) HasCapability(actorID int64, c access.Capability) bool {
	for _, have := range a[actorID] {
		if have == c {
			return true
		}
	}
	return false
}

const (
	adminID   = int64(1)
	managerID = int64(2)
	guestID   = int64(77)
)

func newTestModerator(store *memoryReviews, publisher Publisher) *Moderator {
	policy := allowList{
		adminID:   {access.CapReviewModerate, access.CapReviewDelete},
		managerID: {access.CapReviewModerate},
	}
	m := NewModerator(store, policy, publisher, discardLogger())
	m.now = func() time.Time { return fixedNow }
	return m
}

func assertInvariant(t *testing.T, r *domain.Review) {
	t.Helper()
	if r.Published && r.Status != domain.ReviewStatusApproved {
		t.Errorf("review %d published while %s", r.ID, r.Status)
	}
}

func TestModerator_Actions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		status        domain.ReviewStatus
		published     bool
		action        Action
		wantStatus    domain.ReviewStatus
		wantPublished bool
		wantErr       error
	}{
		{name: "approve and publish pending", status: domain.ReviewStatusPending, action: ActionApprove,
			wantStatus: domain.ReviewStatusApproved, wantPublished: true},
		{name: "approve and publish rejected", status: domain.ReviewStatusRejected, action: ActionApprove,
			wantStatus: domain.ReviewStatusApproved, wantPublished: true},
		{name: "approve only pending", status: domain.ReviewStatusPending, action: ActionApproveOnly,
			wantStatus: domain.ReviewStatusApproved},
		{name: "approve only keeps publication", status: domain.ReviewStatusApproved, published: true, action: ActionApproveOnly,
			wantStatus: domain.ReviewStatusApproved, wantPublished: true},
		{name: "reject published", status: domain.ReviewStatusApproved, published: true, action: ActionReject,
			wantStatus: domain.ReviewStatusRejected},
		{name: "publish approved", status: domain.ReviewStatusApproved, action: ActionPublish,
			wantStatus: domain.ReviewStatusApproved, wantPublished: true},
		{name: "publish pending", status: domain.ReviewStatusPending, action: ActionPublish,
			wantStatus: domain.ReviewStatusPending, wantErr: domain.ErrInvalidTransition},
		{name: "publish rejected", status: domain.ReviewStatusRejected, action: ActionPublish,
			wantStatus: domain.ReviewStatusRejected, wantErr: domain.ErrInvalidTransition},
		{name: "unpublish pending keeps status", status: domain.ReviewStatusPending, action: ActionUnpublish,
			wantStatus: domain.ReviewStatusPending},
		{name: "unpublish approved", status: domain.ReviewStatusApproved, published: true, action: ActionUnpublish,
			wantStatus: domain.ReviewStatusApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryReviews()
			publisher := &fakePublisher{}
			id := store.seed(tt.status, tt.published, fixedNow)
			m := newTestModerator(store, publisher)

			_, err := m.Apply(ctx, tt.action, id, managerID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			got := store.reviews[id]
			if got.Status != tt.wantStatus || got.Published != tt.wantPublished {
				t.Errorf("expected %s published=%v, got %s published=%v", tt.wantStatus, tt.wantPublished, got.Status, got.Published)
			}
			assertInvariant(t, got)

			if tt.wantErr == nil {
				if got.ModeratedBy == nil || *got.ModeratedBy != managerID || got.ModeratedAt == nil {
					t.Error("expected moderation stamp")
				}
				if len(publisher.events) != 1 {
					t.Errorf("expected one event, got %d", len(publisher.events))
				}
			} else if len(publisher.events) != 0 {
				t.Error("failed action must not publish")
			}
		})
	}
}

func TestModerator_ReapplyRestamps(t *testing.T) {
	store := newMemoryReviews()
	id := store.seed(domain.ReviewStatusPending, false, fixedNow)
	m := newTestModerator(store, nil)

	if _, err := m.ApproveAndPublish(context.Background(), id, managerID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	later := fixedNow.Add(time.Hour)
	m.now = func() time.Time { return later }
	if _, err := m.ApproveAndPublish(context.Background(), id, adminID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := store.reviews[id]
	if !got.ModeratedAt.Equal(later) || *got.ModeratedBy != adminID {
		t.Errorf("expected restamp by admin at %v, got %v by %d", later, got.ModeratedAt, *got.ModeratedBy)
	}
}

func TestModerator_RejectWinsOverPublish(t *testing.T) {
	store := newMemoryReviews()
	id := store.seed(domain.ReviewStatusApproved, false, fixedNow)
	m := newTestModerator(store, nil)

	if _, err := m.Reject(context.Background(), id, adminID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Publish(context.Background(), id, managerID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
	assertInvariant(t, store.reviews[id])
}

func TestModerator_Authorization(t *testing.T) {
	ctx := context.Background()
	store := newMemoryReviews()
	id := store.seed(domain.ReviewStatusPending, false, fixedNow)
	m := newTestModerator(store, nil)

	if _, err := m.ApproveAndPublish(ctx, 999, guestID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected forbidden before existence check, got %v", err)
	}
	if err := m.Delete(ctx, id, managerID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("manager must not delete, got %v", err)
	}
	if _, err := m.Pending(ctx, guestID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected forbidden listing, got %v", err)
	}
	if _, err := m.Reject(ctx, 999, managerID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := m.Apply(ctx, Action("bless"), id, adminID); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestModerator_Delete(t *testing.T) {
	ctx := context.Background()
	store := newMemoryReviews()
	id := store.seed(domain.ReviewStatusPending, false, fixedNow)
	m := newTestModerator(store, nil)

	if err := m.Delete(ctx, id, adminID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.reviews[id]; ok {
		t.Error("expected review gone")
	}
	if err := m.Delete(ctx, id, adminID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestModerator_Pending(t *testing.T) {
	store := newMemoryReviews()
	for i := 0; i < 12; i++ {
		store.seed(domain.ReviewStatusPending, false, fixedNow.Add(time.Duration(i)*time.Minute))
	}
	store.seed(domain.ReviewStatusApproved, true, fixedNow)
	m := newTestModerator(store, nil)

	pending, err := m.Pending(context.Background(), managerID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 10 {
		t.Fatalf("expected 10 pending, got %d", len(pending))
	}
	if !pending[0].CreatedAt.After(pending[1].CreatedAt) {
		t.Error("expected newest first")
	}
}
