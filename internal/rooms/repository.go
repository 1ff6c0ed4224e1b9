package rooms

import (
	"context"
	"database/sql"
	"time"
)

const (
	ActionReviewStart = "review_start"
	ActionStart       = "start"
)

type Scan struct {
	Room            string
	RequesterID     int64
	RequesterHandle string
	Action          string
	ScannedAt       time.Time
}

type Code struct {
	Room          string     `json:"room"`
	DeepLink      string     `json:"deep_link"`
	ScansCount    int        `json:"scans_count"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// LogScan appends to the scan log and bumps the room's counter in one transaction.
func (r *Repository) LogScan(ctx context.Context, scan Scan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var handle any
	if scan.RequesterHandle != "" {
		handle = scan.RequesterHandle
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO qr_scans (room_number, telegram_user_id, telegram_username, action_type, scanned_at)
		VALUES ($1, $2, $3, $4, $5)
	`, scan.Room, scan.RequesterID, handle, scan.Action, scan.ScannedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE qr_codes SET scans_count = scans_count + 1, last_scanned_at = $2
		WHERE room_number = $1
	`, scan.Room, scan.ScannedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// UpsertCodes stores the deep link for each room, keeping existing scan counters.
func (r *Repository) UpsertCodes(ctx context.Context, codes []Code) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, code := range codes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO qr_codes (room_number, deep_link, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (room_number) DO UPDATE SET deep_link = EXCLUDED.deep_link
		`, code.Room, code.DeepLink)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) GetCode(ctx context.Context, room string) (*Code, error) {
	code := &Code{}

	err := r.db.QueryRowContext(ctx, `
		SELECT room_number, deep_link, scans_count, last_scanned_at, created_at
		FROM qr_codes
		WHERE room_number = $1
	`, room).Scan(&code.Room, &code.DeepLink, &code.ScansCount, &code.LastScannedAt, &code.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return code, nil
}

func (r *Repository) ListCodes(ctx context.Context) ([]Code, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT room_number, deep_link, scans_count, last_scanned_at, created_at
		FROM qr_codes
		ORDER BY room_number
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var codes []Code
	for rows.Next() {
		var code Code
		if err := rows.Scan(&code.Room, &code.DeepLink, &code.ScansCount, &code.LastScannedAt, &code.CreatedAt); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return codes, nil
}
