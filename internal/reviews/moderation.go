package reviews

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joao-fontenele/guestdesk/internal/access"
	"github.com/joao-fontenele/guestdesk/internal/domain"
)

type Action string

const (
	ActionApprove     Action = "approve"
	ActionApproveOnly Action = "approve_only"
	ActionReject      Action = "reject"
	ActionPublish     Action = "publish"
	ActionUnpublish   Action = "unpublish"
	ActionDelete      Action = "delete"
)

func ModerationCallback(a Action, id int64) string {
	return fmt.Sprintf("mod_%s_%d", a, id)
}

// ParseModerationCallback decodes mod_<action>_<id>. Actions may contain underscores.
func ParseModerationCallback(data string) (Action, int64, bool) {
	rest, ok := strings.CutPrefix(data, "mod_")
	if !ok {
		return "", 0, false
	}
	i := strings.LastIndex(rest, "_")
	if i <= 0 {
		return "", 0, false
	}
	id, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return Action(rest[:i]), id, true
}

type ModerationStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Review, error)
	ApproveAndPublish(ctx context.Context, id, actorID int64, at time.Time) (*domain.Review, error)
	ApproveOnly(ctx context.Context, id, actorID int64, at time.Time) (*domain.Review, error)
	Reject(ctx context.Context, id, actorID int64, at time.Time) (*domain.Review, error)
	Publish(ctx context.Context, id, actorID int64, at time.Time) (*domain.Review, error)
	Unpublish(ctx context.Context, id, actorID int64, at time.Time) (*domain.Review, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Pending(ctx context.Context, limit int) ([]domain.Review, error)
}

const pendingLimit = 10

type Moderator struct {
	store     ModerationStore
	policy    access.Checker
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewModerator(store ModerationStore, policy access.Checker, publisher Publisher, logger *slog.Logger) *Moderator {
	return &Moderator{
		store:     store,
		policy:    policy,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

type moderationWrite func(ctx context.Context, id, actorID int64, at time.Time) (*domain.Review, error)

func (m *Moderator) write(a Action) (moderationWrite, bool) {
	switch a {
	case ActionApprove:
		return m.store.ApproveAndPublish, true
	case ActionApproveOnly:
		return m.store.ApproveOnly, true
	case ActionReject:
		return m.store.Reject, true
	case ActionPublish:
		return m.store.Publish, true
	case ActionUnpublish:
		return m.store.Unpublish, true
	}
	return nil, false
}

// Apply runs one moderation action. Authorization is checked before existence.
func (m *Moderator) Apply(ctx context.Context, a Action, id, actorID int64) (*domain.Review, error) {
	if a == ActionDelete {
		return nil, m.Delete(ctx, id, actorID)
	}

	write, ok := m.write(a)
	if !ok {
		return nil, &domain.ValidationError{Field: "action", Reason: "unknown moderation action " + string(a)}
	}

	if err := access.Require(m.policy, actorID, access.CapReviewModerate); err != nil {
		return nil, err
	}

	current, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	if current == nil {
		return nil, &domain.NotFoundError{Entity: "review", ID: strconv.FormatInt(id, 10)}
	}

	review, err := write(ctx, id, actorID, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%s review: %w", a, err)
	}
	if review == nil {
		// Only the publish guard can miss on an existing row: the review is not approved (or was deleted meanwhile).
		return nil, &domain.InvalidTransitionError{
			Entity: "review",
			ID:     strconv.FormatInt(id, 10),
			From:   string(current.Status),
			To:     string(a),
		}
	}

	m.publish(ctx, a, review, actorID)
	m.logger.Info("review moderated", "review_id", id, "action", a, "actor_id", actorID,
		"status", review.Status, "published", review.Published)
	return review, nil
}

func (m *Moderator) ApproveAndPublish(ctx context.Context, id, actorID int64) (*domain.Review, error) {
	return m.Apply(ctx, ActionApprove, id, actorID)
}

func (m *Moderator) ApproveOnly(ctx context.Context, id, actorID int64) (*domain.Review, error) {
	return m.Apply(ctx, ActionApproveOnly, id, actorID)
}

func (m *Moderator) Reject(ctx context.Context, id, actorID int64) (*domain.Review, error) {
	return m.Apply(ctx, ActionReject, id, actorID)
}

func (m *Moderator) Publish(ctx context.Context, id, actorID int64) (*domain.Review, error) {
	return m.Apply(ctx, ActionPublish, id, actorID)
}

func (m *Moderator) Unpublish(ctx context.Context, id, actorID int64) (*domain.Review, error) {
	return m.Apply(ctx, ActionUnpublish, id, actorID)
}

func (m *Moderator) Delete(ctx context.Context, id, actorID int64) error {
	if err := access.Require(m.policy, actorID, access.CapReviewDelete); err != nil {
		return err
	}

	deleted, err := m.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if !deleted {
		return &domain.NotFoundError{Entity: "review", ID: strconv.FormatInt(id, 10)}
	}

	m.publish(ctx, ActionDelete, &domain.Review{ID: id}, actorID)
	m.logger.Info("review deleted", "review_id", id, "actor_id", actorID)
	return nil
}

func (m *Moderator) Pending(ctx context.Context, actorID int64) ([]domain.Review, error) {
	if err := access.Require(m.policy, actorID, access.CapReviewModerate); err != nil {
		return nil, err
	}
	return m.store.Pending(ctx, pendingLimit)
}

func (m *Moderator) publish(ctx context.Context, a Action, review *domain.Review, actorID int64) {
	if m.publisher == nil {
		return
	}
	event := domain.ReviewModeratedEvent{
		ReviewID:  review.ID,
		Action:    string(a),
		Status:    review.Status,
		Published: review.Published,
		ActorID:   actorID,
		Timestamp: m.now().UTC(),
	}
	if err := m.publisher.Publish(ctx, strconv.FormatInt(review.ID, 10), event); err != nil {
		m.logger.Error("failed to publish review moderated event", "error", err, "review_id", review.ID)
	}
}
