package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/joao-fontenele/guestdesk/internal/domain"
)

const defaultListLimit = 50

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `order_id, client_name, room, telegram_user_id, telegram_username, items, total,
	submitted_at, status, receipt_ref, scanned_room_number, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order       domain.Order
		requesterID sql.NullInt64
		handle      sql.NullString
		items       []byte
		receipt     sql.NullString
		scanned     sql.NullString
	)

	err := row.Scan(&order.ID, &order.GuestName, &order.Room, &requesterID, &handle, &items, &order.Total,
		&order.SubmittedAt, &order.Status, &receipt, &scanned, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if requesterID.Valid {
		id := requesterID.Int64
		order.RequesterID = &id
	}
	order.RequesterHandle = handle.String
	order.ReceiptRef = receipt.String
	order.ScannedRoom = scanned.String

	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("decode items of order %s: %w", order.ID, err)
	}

	return &order, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts the order unless its id already exists. It reports whether a row was written.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) (bool, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return false, fmt.Errorf("encode items: %w", err)
	}

	var requesterID sql.NullInt64
	if order.RequesterID != nil {
		requesterID = sql.NullInt64{Int64: *order.RequesterID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, client_name, room, telegram_user_id, telegram_username, items, total,
			submitted_at, status, scanned_room_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (order_id) DO NOTHING
	`, order.ID, order.GuestName, order.Room, requesterID, nullString(order.RequesterHandle), items, order.Total,
		order.SubmittedAt, order.Status, nullString(order.ScannedRoom), order.CreatedAt)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, id)

	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return order, nil
}

// UpdateStatus moves the order from one status to another and logs the change.
// It reports false when the order is no longer in the expected status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, actorID int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $3, updated_at = NOW()
		WHERE order_id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if rowsAffected == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_status_log (order_id, from_status, to_status, actor_id, changed_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, id, from, to, actorID)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (r *OrderRepository) SetReceipt(ctx context.Context, id, ref string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE orders SET receipt_ref = $2 WHERE order_id = $1`, id, ref)
	return err
}

func (r *OrderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var (
		conditions []string
		args       []any
	)

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

type PeriodStats struct {
	Count int64   `json:"count"`
	Sum   int64   `json:"sum"`
	Avg   float64 `json:"avg"`
	Min   int64   `json:"min"`
	Max   int64   `json:"max"`
}

type ClientStats struct {
	Name   string `json:"name"`
	Room   string `json:"room"`
	Orders int64  `json:"orders"`
	Spent  int64  `json:"spent"`
}

type StatusStats struct {
	Status domain.OrderStatus `json:"status"`
	Count  int64              `json:"count"`
	Sum    int64              `json:"sum"`
}

type AverageCheck struct {
	AllTime  float64 `json:"all_time"`
	LastWeek float64 `json:"last_week"`
	Today    float64 `json:"today"`
}

func (r *OrderRepository) PeriodStats(ctx context.Context, since time.Time) (*PeriodStats, error) {
	stats := &PeriodStats{}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total), 0), COALESCE(AVG(total), 0), COALESCE(MIN(total), 0), COALESCE(MAX(total), 0)
		FROM orders
		WHERE created_at >= $1
	`, since).Scan(&stats.Count, &stats.Sum, &stats.Avg, &stats.Min, &stats.Max)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *OrderRepository) TopClients(ctx context.Context, limit int) ([]ClientStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT client_name, room, COUNT(*) AS orders, SUM(total) AS spent
		FROM orders
		GROUP BY client_name, room
		ORDER BY orders DESC, spent DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var clients []ClientStats
	for rows.Next() {
		var c ClientStats
		if err := rows.Scan(&c.Name, &c.Room, &c.Orders, &c.Spent); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return clients, nil
}

func (r *OrderRepository) StatusStats(ctx context.Context) ([]StatusStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(total), 0)
		FROM orders
		GROUP BY status
		ORDER BY COUNT(*) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var stats []StatusStats
	for rows.Next() {
		var s StatusStats
		if err := rows.Scan(&s.Status, &s.Count, &s.Sum); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *OrderRepository) AverageCheck(ctx context.Context, now time.Time) (*AverageCheck, error) {
	check := &AverageCheck{}
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(AVG(total), 0),
			COALESCE(AVG(total) FILTER (WHERE created_at >= $1), 0),
			COALESCE(AVG(total) FILTER (WHERE created_at >= $2), 0)
		FROM orders
	`, now.AddDate(0, 0, -7), startOfDay).Scan(&check.AllTime, &check.LastWeek, &check.Today)
	if err != nil {
		return nil, err
	}

	return check, nil
}

// DeleteOlderThan removes orders created before cutoff. Their status log rows cascade.
func (r *OrderRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
