package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Siddarth2230/shortlink/internal/models"
	"github.com/Siddarth2230/shortlink/pkg/metrics"
)

var (
	ErrDuplicateCode = errors.New("short code already exists")
	ErrNotFound      = errors.New("short link not found")
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type LinkRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewLinkRepository(db *sql.DB, logger *zap.Logger) *LinkRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkRepository{db: db, logger: logger}
}

// Save inserts link and fills in its ID, CreatedAt and ClickCount.
// A code that is already taken yields ErrDuplicateCode.
func (r *LinkRepository) Save(ctx context.Context, link *models.ShortLink) error {
	defer observe("save")()

	query := `
        INSERT INTO short_links (code, original_url, created_at, expires_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at, click_count
    `
	createdAt := link.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := r.db.QueryRowContext(ctx, query, link.Code, link.OriginalURL, createdAt, nullTime(link.ExpiresAt))
	if err := row.Scan(&link.ID, &link.CreatedAt, &link.ClickCount); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("insert short link: %w", err)
	}
	return nil
}

// FindByCode returns the link for code, expired or not, or nil if none exists.
func (r *LinkRepository) FindByCode(ctx context.Context, code string) (*models.ShortLink, error) {
	defer observe("find_by_code")()

	query := `
        SELECT id, code, original_url, created_at, expires_at, click_count
        FROM short_links
        WHERE code = $1
	`

	var link models.ShortLink
	var expiresAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&link.ID, &link.Code, &link.OriginalURL, &link.CreatedAt, &expiresAt, &link.ClickCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("find short link: %w", err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		link.ExpiresAt = &t
	}
	return &link, nil
}

func (r *LinkRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	defer observe("exists_by_code")()

	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM short_links WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check short code: %w", err)
	}
	return exists, nil
}

// IncrementClicks bumps click_count in place, so concurrent calls never lose an update.
func (r *LinkRepository) IncrementClicks(ctx context.Context, code string) error {
	defer observe("increment_clicks")()

	return incrementClicks(ctx, r.db, code)
}

// RecordVisit inserts visit and increments the link's click_count in one transaction.
func (r *LinkRepository) RecordVisit(ctx context.Context, visit *models.Visit) error {
	defer observe("record_visit")()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin visit tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("visit rollback failed", zap.String("code", visit.ShortLinkCode), zap.Error(rbErr))
			}
		}
	}()

	createdAt := visit.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
        INSERT INTO visits (short_link_code, created_at, referrer, browser, os, device_class)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `
	err = tx.QueryRowContext(ctx, query,
		visit.ShortLinkCode,
		createdAt,
		nullString(visit.Referrer),
		nullString(visit.Browser),
		nullString(visit.OS),
		nullString(visit.DeviceClass),
	).Scan(&visit.ID, &visit.CreatedAt)
	if err != nil {
		err = fmt.Errorf("insert visit: %w", err)
		return err
	}

	if err = incrementClicks(ctx, tx, visit.ShortLinkCode); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("commit visit: %w", err)
		return err
	}
	return nil
}

// ListVisits returns the most recent visits for code, newest first.
func (r *LinkRepository) ListVisits(ctx context.Context, code string, limit int) ([]models.Visit, error) {
	defer observe("list_visits")()

	query := `
        SELECT id, short_link_code, created_at, referrer, browser, os, device_class
        FROM visits
        WHERE short_link_code = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2
    `
	rows, err := r.db.QueryContext(ctx, query, code, limit)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	visits := make([]models.Visit, 0, limit)
	for rows.Next() {
		var v models.Visit
		var referrer, browser, os, device sql.NullString
		if err := rows.Scan(&v.ID, &v.ShortLinkCode, &v.CreatedAt, &referrer, &browser, &os, &device); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		v.Referrer, v.Browser, v.OS, v.DeviceClass = referrer.String, browser.String, os.String, device.String
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

func (r *LinkRepository) DeleteByCode(ctx context.Context, code string) error {
	defer observe("delete_by_code")()

	result, err := r.db.ExecContext(ctx, `DELETE FROM short_links WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete short link: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete short link: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired removes links whose expires_at is before cutoff and returns their codes.
func (r *LinkRepository) DeleteExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	defer observe("delete_expired")()

	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM short_links WHERE expires_at IS NOT NULL AND expires_at < $1 RETURNING code`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("delete expired links: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan expired code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (r *LinkRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func incrementClicks(ctx context.Context, db execer, code string) error {
	result, err := db.ExecContext(ctx, `UPDATE short_links SET click_count = click_count + 1 WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("increment clicks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment clicks: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func observe(operation string) func() {
	start := time.Now()
	return func() {
		metrics.DatabaseQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
