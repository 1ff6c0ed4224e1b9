package access

import (
	"errors"
	"testing"

	"github.com/joao-fontenele/guestdesk/internal/domain"
)

func newTestPolicy(t *testing.T) *Policy {
	t.Helper()

	p, err := NewPolicy(DefaultRoleCapabilities)
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}
	if err := p.AssignAll([]int64{1}, RoleAdmin); err != nil {
		t.Fatalf("failed to assign admin: %v", err)
	}
	if err := p.AssignAll([]int64{2}, RoleManager); err != nil {
		t.Fatalf("failed to assign manager: %v", err)
	}
	if err := p.AssignAll([]int64{3}, RoleStaff); err != nil {
		t.Fatalf("failed to assign staff: %v", err)
	}
	return p
}

func TestPolicy_HasCapability(t *testing.T) {
	p := newTestPolicy(t)

	tests := []struct {
		name    string
		actorID int64
		cap     Capability
		want    bool
	}{
		{"admin changes order status", 1, CapOrderChangeStatus, true},
		{"admin deletes review", 1, CapReviewDelete, true},
		{"manager moderates", 2, CapReviewModerate, true},
		{"manager cannot delete review", 2, CapReviewDelete, false},
		{"manager cannot change order status", 2, CapOrderChangeStatus, false},
		{"staff changes order status", 3, CapOrderChangeStatus, true},
		{"staff cannot moderate", 3, CapReviewModerate, false},
		{"guest has nothing", 42, CapOrderView, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.HasCapability(tt.actorID, tt.cap); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPolicy_MultipleRoles(t *testing.T) {
	p := newTestPolicy(t)
	if err := p.Assign(3, RoleManager); err != nil {
		t.Fatalf("failed to assign: %v", err)
	}

	if !p.HasCapability(3, CapReviewModerate) || !p.HasCapability(3, CapOrderChangeStatus) {
		t.Error("expected union of staff and manager capabilities")
	}
	if len(p.Roles(3)) != 2 {
		t.Errorf("expected 2 roles, got %v", p.Roles(3))
	}
}

func TestRequire(t *testing.T) {
	p := newTestPolicy(t)

	if err := Require(p, 1, CapQRGenerate); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := Require(p, 42, CapQRGenerate)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	var authErr *domain.AuthorizationError
	if !errors.As(err, &authErr) || authErr.ActorID != 42 {
		t.Errorf("unexpected error: %+v", err)
	}

	if err := Require(nil, 1, CapQRGenerate); err == nil {
		t.Error("nil checker must deny")
	}
}
