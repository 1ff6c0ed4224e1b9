package reviews

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/joao-fontenele/guestdesk/internal/domain"
)

type ReviewRepository struct {
	db *sqlx.DB
}

func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

const reviewColumns = `id, telegram_user_id, telegram_username, guest_name, display_name, room_number,
	cleanliness, comfort, location, facilities, staff, value_for_money, pros, cons, comment,
	status, is_published, scanned_room_number, created_at, moderated_at, moderated_by`

func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	rows, err := r.db.NamedQueryContext(ctx, `
		INSERT INTO reviews (telegram_user_id, telegram_username, guest_name, display_name, room_number,
			cleanliness, comfort, location, facilities, staff, value_for_money, pros, cons, comment,
			status, is_published, scanned_room_number, created_at)
		VALUES (:telegram_user_id, :telegram_username, :guest_name, :display_name, :room_number,
			:cleanliness, :comfort, :location, :facilities, :staff, :value_for_money, :pros, :cons, :comment,
			:status, :is_published, :scanned_room_number, :created_at)
		RETURNING id
	`, review)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return rows.Scan(&review.ID)
}

func (r *ReviewRepository) get(ctx context.Context, query string, args ...any) (*domain.Review, error) {
	var review domain.Review
	if err := r.db.GetContext(ctx, &review, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &review, nil
}

func (r *ReviewRepository) GetByID(ctx context.Context, id int64) (*domain.Review, error) {
	return r.get(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id)
}

// Each moderation write is a single statement returning the new row, or nil when the guard did not match.

func (r *ReviewRepository) ApproveAndPublish(ctx context.Context, id, actorID int64, at time.Time) (*domain.Review, error) {
	return r.get(ctx, `
		UPDATE reviews SET status = 'approved', is_published = true, moderated_at = $2, moderated_by = $3
		WHERE id = $1
		RETURNING `+reviewColumns, id, at, actorID)
}

func (r *ReviewRepository) ApproveOnly(ctx context.Context, id, actorID int64, at time.Time) (*domain.Review, error) {
	return r.get(ctx, `
		UPDATE reviews SET status = 'approved', moderated_at = $2, moderated_by = $3
		WHERE id = $1
		RETURNING `+reviewColumns, id, at, actorID)
}

func (r *ReviewRepository) Reject(ctx context.Context, id, actorID int64, at time.Time) (*domain.Review, error) {
	return r.get(ctx, `
		UPDATE reviews SET status = 'rejected', is_published = false, moderated_at = $2, moderated_by = $3
		WHERE id = $1
		RETURNING `+reviewColumns, id, at, actorID)
}

// Publish only matches approved reviews, so a concurrent reject always wins.
func (r *ReviewRepository) Publish(ctx context.Context, id, actorID int64, at time.Time) (*domain.Review, error) {
	return r.get(ctx, `
		UPDATE reviews SET is_published = true, moderated_at = $2, moderated_by = $3
		WHERE id = $1 AND status = 'approved'
		RETURNING `+reviewColumns, id, at, actorID)
}

func (r *ReviewRepository) Unpublish(ctx context.Context, id, actorID int64, at time.Time) (*domain.Review, error) {
	return r.get(ctx, `
		UPDATE reviews SET is_published = false, moderated_at = $2, moderated_by = $3
		WHERE id = $1
		RETURNING `+reviewColumns, id, at, actorID)
}

func (r *ReviewRepository) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ReviewRepository) Pending(ctx context.Context, limit int) ([]domain.Review, error) {
	reviews := []domain.Review{}
	err := r.db.SelectContext(ctx, &reviews, `
		SELECT `+reviewColumns+` FROM reviews
		WHERE status = 'pending'
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	return reviews, err
}

func (r *ReviewRepository) Published(ctx context.Context, limit, offset int) ([]domain.Review, error) {
	reviews := []domain.Review{}
	err := r.db.SelectContext(ctx, &reviews, `
		SELECT `+reviewColumns+` FROM reviews
		WHERE status = 'approved' AND is_published = true
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return reviews, err
}

// Between returns approved and pending reviews created in [from, to), oldest first.
func (r *ReviewRepository) Between(ctx context.Context, from, to time.Time) ([]domain.Review, error) {
	reviews := []domain.Review{}
	err := r.db.SelectContext(ctx, &reviews, `
		SELECT `+reviewColumns+` FROM reviews
		WHERE status IN ('approved', 'pending') AND created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`, from, to)
	return reviews, err
}
