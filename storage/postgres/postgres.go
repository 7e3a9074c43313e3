// Package postgres provides a PostgreSQL implementation of the subscription.Store,
// subscription.UserDirectory and history.Store interfaces.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/mihaimyh/vocalize/pkg/history"
	"github.com/mihaimyh/vocalize/pkg/subscription"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Storage implements subscription.Store using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// AutoMigrate applies the embedded schema migrations in New
	AutoMigrate bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		AutoMigrate:     true,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{pool: pool, config: config}

	if config.AutoMigrate {
		if err := s.Migrate(); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return s, nil
}

// Migrate applies the embedded schema migrations
func (s *Storage) Migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	// migrations run over database/sql on top of the shared pool
	db := stdlib.OpenDBFromPool(s.pool)
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the PostgreSQL connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const subscriptionColumns = `user_id, external_id, order_id, product_id, variant_id, customer_id,
	variant_name, status, price_cents, billing_period, renews_at, ends_at, trial_ends_at,
	created_at, updated_at`

// GetSubscription implements subscription.Store
func (s *Storage) GetSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	var (
		sub                                        subscription.Subscription
		orderID, productID, variantID, customerID *string
		status, period                             string
	)

	err := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`,
		userID).Scan(
		&sub.UserID,
		&sub.ExternalID,
		&orderID,
		&productID,
		&variantID,
		&customerID,
		&sub.VariantName,
		&status,
		&sub.PriceCents,
		&period,
		&sub.RenewsAt,
		&sub.EndsAt,
		&sub.TrialEndsAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	sub.OrderID = deref(orderID)
	sub.ProductID = deref(productID)
	sub.VariantID = deref(variantID)
	sub.CustomerID = deref(customerID)
	sub.Status = subscription.Status(status)
	sub.BillingPeriod = subscription.BillingPeriod(period)
	return &sub, nil
}

// UpsertSubscription implements subscription.Store.
// created_at is only written on insert.
// The row claims sub.ExternalID; a previous holder is detached in the same transaction.
func (s *Storage) UpsertSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil || sub.UserID == "" {
		return fmt.Errorf("%w: user id is required", subscription.ErrInvalidSubscription)
	}

	updatedAt := sub.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = updatedAt
	}
	period := sub.BillingPeriod
	if period == "" {
		period = subscription.PeriodMonth
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if sub.ExternalID != "" {
			// detach any other row still holding this external id
			if _, err := tx.Exec(ctx,
				`UPDATE subscriptions SET external_id = '' WHERE external_id = $1 AND user_id <> $2`,
				sub.ExternalID, sub.UserID,
			); err != nil {
				return err
			}
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO subscriptions (`+subscriptionColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
				ON CONFLICT (user_id) DO UPDATE SET
					external_id = EXCLUDED.external_id,
					order_id = EXCLUDED.order_id,
					product_id = EXCLUDED.product_id,
					variant_id = EXCLUDED.variant_id,
					customer_id = EXCLUDED.customer_id,
					variant_name = EXCLUDED.variant_name,
					status = EXCLUDED.status,
					price_cents = EXCLUDED.price_cents,
					billing_period = EXCLUDED.billing_period,
					renews_at = EXCLUDED.renews_at,
					ends_at = EXCLUDED.ends_at,
					trial_ends_at = EXCLUDED.trial_ends_at,
					updated_at = EXCLUDED.updated_at`,
			sub.UserID, sub.ExternalID,
			nullable(sub.OrderID), nullable(sub.ProductID), nullable(sub.VariantID), nullable(sub.CustomerID),
			sub.VariantName, string(sub.Status), sub.PriceCents, string(period),
			sub.RenewsAt, sub.EndsAt, sub.TrialEndsAt, createdAt, updatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// PatchByExternalID implements subscription.Store
func (s *Storage) PatchByExternalID(ctx context.Context, externalID string, patch subscription.Patch) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions SET
				status = $2,
				ends_at = CASE WHEN $3 THEN $4 ELSE ends_at END,
				updated_at = $5
			WHERE external_id = $1`,
		externalID, string(patch.Status), patch.SetEndsAt, patch.EndsAt, updatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to patch subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// LookupUserByEmail implements subscription.UserDirectory
func (s *Storage) LookupUserByEmail(ctx context.Context, email string) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM profiles WHERE lower(email) = lower($1) LIMIT 1`,
		email).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", subscription.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to lookup user: %w", err)
	}
	return userID, nil
}

// AddUser registers or updates a profile
func (s *Storage) AddUser(ctx context.Context, userID, email string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (id, email) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email`,
		userID, email,
	)
	if err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}
	return nil
}

// SaveItem implements history.Store
func (s *Storage) SaveItem(ctx context.Context, item *history.Item) error {
	if item == nil || item.ID == "" || item.UserID == "" {
		return fmt.Errorf("invalid history item")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO history (id, user_id, title, transcript, result, doc_type, length, style, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.UserID, item.Title, item.Transcript, item.Result,
		string(item.Settings.DocType), string(item.Settings.Length), string(item.Settings.Style),
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save history item: %w", err)
	}
	return nil
}

// ListItems implements history.Store
func (s *Storage) ListItems(ctx context.Context, userID string, limit int) ([]history.Item, error) {
	query := `SELECT id, user_id, title, transcript, result, doc_type, length, style, created_at
			FROM history WHERE user_id = $1 ORDER BY created_at DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Item, error) {
		var (
			item                   history.Item
			docType, length, style string
		)
		err := row.Scan(&item.ID, &item.UserID, &item.Title, &item.Transcript, &item.Result,
			&docType, &length, &style, &item.CreatedAt)
		item.Settings = history.Settings{
			DocType: history.DocType(docType),
			Length:  history.Length(length),
			Style:   history.Style(style),
		}
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}
	return items, nil
}

// DeleteItem implements history.Store
func (s *Storage) DeleteItem(ctx context.Context, userID, itemID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM history WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete history item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return history.ErrItemNotFound
	}
	return nil
}

// TrimItems implements history.Store
func (s *Storage) TrimItems(ctx context.Context, userID string, keep int) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM history WHERE id IN (
				SELECT id FROM history WHERE user_id = $1
				ORDER BY created_at DESC, id DESC OFFSET $2
			)`,
		userID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to trim history: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
