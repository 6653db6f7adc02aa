package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"voucherd/pkg/contracts/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// pgUniqueViolation is the SQLSTATE class for unique constraint violations.
const pgUniqueViolation = "23505"

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PostgresOptions configures pool sizing and startup migration behaviour.
type PostgresOptions struct {
	DSN            string
	MaxConns       int32
	ConnectTimeout time.Duration
	MigrateOnStart bool
}

// NewPostgresStore connects to the database and optionally applies pending
// migrations before returning.
func NewPostgresStore(ctx context.Context, opts PostgresOptions) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if opts.MigrateOnStart {
		if err := applyMigrations(opts.DSN); err != nil {
			pool.Close()
			return nil, fmt.Errorf("applying migrations: %w", err)
		}
	}

	return &PostgresStore{pool: pool}, nil
}

// applyMigrations runs the embedded migrations against the database. The
// golang-migrate pgx/v5 driver registers the pgx5 URL scheme.
func applyMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	url := dsn
	if strings.HasPrefix(url, "postgres://") {
		url = "pgx5://" + strings.TrimPrefix(url, "postgres://")
	} else if strings.HasPrefix(url, "postgresql://") {
		url = "pgx5://" + strings.TrimPrefix(url, "postgresql://")
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) CreateVoucherBatch(ctx context.Context, vouchers []domain.Voucher) error {
	if len(vouchers) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, v := range vouchers {
		_, err := tx.Exec(ctx,
			`INSERT INTO vouchers (id, device_id, code, profile, time_limit, quota_bytes, status, session_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			v.ID, v.DeviceID, v.Code, v.Profile, int64(v.TimeLimit), v.QuotaBytes, v.Status, v.SessionID, v.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("inserting voucher %q: %w", v.Code, ErrDuplicateCode)
			}
			return fmt.Errorf("inserting voucher %q: %w", v.Code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

// CodeExists matches deleted rows too; retired codes stay taken.
func (s *PostgresStore) CodeExists(ctx context.Context, deviceID, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM vouchers WHERE device_id = $1 AND code = $2)`,
		deviceID, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking code existence: %w", err)
	}
	return exists, nil
}

const voucherColumns = `id, device_id, code, profile, time_limit, quota_bytes, status, session_id, created_at`

func scanVoucher(row pgx.Row) (domain.Voucher, error) {
	var v domain.Voucher
	var timeLimit int64
	err := row.Scan(&v.ID, &v.DeviceID, &v.Code, &v.Profile, &timeLimit, &v.QuotaBytes, &v.Status, &v.SessionID, &v.CreatedAt)
	if err != nil {
		return domain.Voucher{}, err
	}
	v.TimeLimit = time.Duration(timeLimit)
	return v, nil
}

func (s *PostgresStore) GetVoucher(ctx context.Context, deviceID, voucherID string) (domain.Voucher, error) {
	v, err := scanVoucher(s.pool.QueryRow(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE device_id = $1 AND id = $2 AND deleted_at IS NULL`,
		deviceID, voucherID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Voucher{}, ErrNotFound
	}
	if err != nil {
		return domain.Voucher{}, fmt.Errorf("fetching voucher: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) GetVoucherByCode(ctx context.Context, deviceID, code string) (domain.Voucher, error) {
	v, err := scanVoucher(s.pool.QueryRow(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE device_id = $1 AND code = $2 AND deleted_at IS NULL`,
		deviceID, code,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Voucher{}, ErrNotFound
	}
	if err != nil {
		return domain.Voucher{}, fmt.Errorf("fetching voucher by code: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) ListVouchers(ctx context.Context, deviceID string) ([]domain.Voucher, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE device_id = $1 AND deleted_at IS NULL ORDER BY created_at, code`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []domain.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning voucher row: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

func (s *PostgresStore) GetVouchersByIDs(ctx context.Context, deviceID string, voucherIDs []string) ([]domain.Voucher, error) {
	if len(voucherIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE device_id = $1 AND id = ANY($2) AND deleted_at IS NULL ORDER BY created_at, code`,
		deviceID, voucherIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching vouchers by id: %w", err)
	}
	defer rows.Close()

	var vouchers []domain.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning voucher row: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

// DeleteVoucher soft-deletes: the row stays behind so the unique index keeps
// the code taken in the device's namespace forever.
func (s *PostgresStore) DeleteVoucher(ctx context.Context, deviceID, voucherID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vouchers SET deleted_at = now() WHERE device_id = $1 AND id = $2 AND deleted_at IS NULL`,
		deviceID, voucherID,
	)
	if err != nil {
		return fmt.Errorf("deleting voucher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateVoucherStatus(ctx context.Context, deviceID, voucherID string, status domain.VoucherStatus, sessionID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vouchers SET status = $3, session_id = $4 WHERE device_id = $1 AND id = $2 AND deleted_at IS NULL`,
		deviceID, voucherID, status, sessionID,
	)
	if err != nil {
		return fmt.Errorf("updating voucher status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, profile domain.Profile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (device_id, name, rate_limit, shared_users, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		profile.DeviceID, profile.Name, profile.RateLimit, profile.SharedUsers, profile.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("profile %q: %w", profile.Name, ErrDuplicateProfile)
		}
		return fmt.Errorf("creating profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, deviceID, name string) (domain.Profile, error) {
	var p domain.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT device_id, name, rate_limit, shared_users, created_at
		 FROM profiles WHERE device_id = $1 AND name = $2`,
		deviceID, name,
	).Scan(&p.DeviceID, &p.Name, &p.RateLimit, &p.SharedUsers, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, ErrNotFound
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("fetching profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context, deviceID string) ([]domain.Profile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT device_id, name, rate_limit, shared_users, created_at
		 FROM profiles WHERE device_id = $1 ORDER BY created_at, name`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.DeviceID, &p.Name, &p.RateLimit, &p.SharedUsers, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning profile row: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *PostgresStore) DeleteProfile(ctx context.Context, deviceID, name string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM profiles WHERE device_id = $1 AND name = $2`,
		deviceID, name,
	)
	if err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountVouchersByProfile(ctx context.Context, deviceID, name string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM vouchers WHERE device_id = $1 AND profile = $2 AND deleted_at IS NULL`,
		deviceID, name,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting vouchers by profile: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, deviceID string) (domain.VoucherTemplate, error) {
	var tpl domain.VoucherTemplate
	err := s.pool.QueryRow(ctx,
		`SELECT device_id, header_text, footer_text, logo_ref, accent_color, version, updated_at
		 FROM voucher_templates WHERE device_id = $1`,
		deviceID,
	).Scan(&tpl.DeviceID, &tpl.HeaderText, &tpl.FooterText, &tpl.LogoRef, &tpl.AccentColor, &tpl.Version, &tpl.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.VoucherTemplate{}, ErrNotFound
	}
	if err != nil {
		return domain.VoucherTemplate{}, fmt.Errorf("fetching template: %w", err)
	}
	return tpl, nil
}

func (s *PostgresStore) SaveTemplate(ctx context.Context, tpl domain.VoucherTemplate) (domain.VoucherTemplate, error) {
	now := time.Now().UTC()

	if tpl.Version == 0 {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO voucher_templates (device_id, header_text, footer_text, logo_ref, accent_color, version, updated_at)
			 VALUES ($1, $2, $3, $4, $5, 1, $6)`,
			tpl.DeviceID, tpl.HeaderText, tpl.FooterText, tpl.LogoRef, tpl.AccentColor, now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				// A concurrent first save got there first.
				return domain.VoucherTemplate{}, ErrVersionConflict
			}
			return domain.VoucherTemplate{}, fmt.Errorf("inserting template: %w", err)
		}
		tpl.Version = 1
		tpl.UpdatedAt = now
		return tpl, nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE voucher_templates
		 SET header_text = $3, footer_text = $4, logo_ref = $5, accent_color = $6,
		     version = version + 1, updated_at = $7
		 WHERE device_id = $1 AND version = $2`,
		tpl.DeviceID, tpl.Version, tpl.HeaderText, tpl.FooterText, tpl.LogoRef, tpl.AccentColor, now,
	)
	if err != nil {
		return domain.VoucherTemplate{}, fmt.Errorf("updating template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.VoucherTemplate{}, ErrVersionConflict
	}
	tpl.Version++
	tpl.UpdatedAt = now
	return tpl, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
