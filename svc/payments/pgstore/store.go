// Package pgstore implements payments.Store on PostgreSQL.
//
// Each Update runs in one transaction that locks the account row with
// SELECT ... FOR UPDATE, so concurrent transitions on one account serialize
// and the last writer wins on the whole record. The schema repeats the
// entitlement invariants as CHECK constraints.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/lifecoach/pkg/entitlement"
	"github.com/dmitrymomot/lifecoach/pkg/pg"
	"github.com/dmitrymomot/lifecoach/svc/payments"
)

// Migrations holds the goose migrations for this store.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"

const accountColumns = `id, email, tier, subscription_ref, subscription_status, grace_until, created_at, updated_at`

// Store is a PostgreSQL payments.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store on pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateAccount inserts an account. Used for seeding and tests; accounts are
// normally created by the signup flow.
func (s *Store) CreateAccount(ctx context.Context, a entitlement.Account) error {
	if a.Tier == "" {
		a.Tier = entitlement.TierNone
	}
	if err := a.CheckInvariants(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Email, string(a.Tier), nullString(a.SubscriptionRef), nullString(string(a.SubscriptionStatus)),
		a.GraceUntil, a.CreatedAt, a.UpdatedAt)
	if pg.IsDuplicateKeyError(err) {
		// Either the id or the subscription reference is taken.
		return errors.Join(payments.ErrAccountExists, err)
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// PutResult upserts the generated result of an account.
func (s *Store) PutResult(ctx context.Context, r entitlement.Result) error {
	if r.LastGeneratedAt.IsZero() {
		r.LastGeneratedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO results (account_id, regeneration_count, last_generated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE
		SET regeneration_count = EXCLUDED.regeneration_count,
		    last_generated_at = EXCLUDED.last_generated_at`,
		r.AccountID, r.RegenerationCount, r.LastGeneratedAt)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

// GetResult returns the stored result, or false if the account has none.
func (s *Store) GetResult(ctx context.Context, id uuid.UUID) (entitlement.Result, bool, error) {
	r, err := scanResult(s.pool.QueryRow(ctx, `
		SELECT account_id, regeneration_count, last_generated_at
		FROM results WHERE account_id = $1`, id))
	if pg.IsNotFoundError(err) {
		return entitlement.Result{}, false, nil
	}
	if err != nil {
		return entitlement.Result{}, false, err
	}
	return r, true, nil
}

// Get implements payments.Store.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (entitlement.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return entitlement.Account{}, payments.ErrAccountNotFound
	}
	if err != nil {
		return entitlement.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// Update implements payments.Store.
func (s *Store) Update(ctx context.Context, id uuid.UUID, fn func(payments.Tx) error) (entitlement.Account, error) {
	return s.update(ctx, fn, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

// UpdateBySubscription implements payments.Store.
func (s *Store) UpdateBySubscription(ctx context.Context, ref string, fn func(payments.Tx) error) (entitlement.Account, error) {
	if ref == "" {
		return entitlement.Account{}, payments.ErrAccountNotFound
	}
	return s.update(ctx, fn, `SELECT `+accountColumns+` FROM accounts WHERE subscription_ref = $1 FOR UPDATE`, ref)
}

func (s *Store) update(ctx context.Context, fn func(payments.Tx) error, lockQuery string, key any) (entitlement.Account, error) {
	var out entitlement.Account

	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		a, err := scanAccount(tx.QueryRow(ctx, lockQuery, key))
		if pg.IsNotFoundError(err) {
			return payments.ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		ptx := &pgTx{tx: tx, account: a}
		r, err := scanResult(tx.QueryRow(ctx, `
			SELECT account_id, regeneration_count, last_generated_at
			FROM results WHERE account_id = $1 FOR UPDATE`, a.ID))
		switch {
		case err == nil:
			ptx.result = &r
			ptx.original = r
		case !pg.IsNotFoundError(err):
			return fmt.Errorf("lock result: %w", err)
		}

		if err := fn(ptx); err != nil {
			return err
		}
		if err := ptx.account.CheckInvariants(); err != nil {
			return err
		}
		if err := ptx.flush(ctx); err != nil {
			if pg.IsCheckViolationError(err) {
				return errors.Join(payments.ErrInvariantViolation, err)
			}
			return err
		}
		out = ptx.account.Clone()
		return nil
	})
	if err != nil {
		return entitlement.Account{}, err
	}
	return out, nil
}

// ListExpired implements payments.Store.
func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM accounts
		WHERE tier = $1 AND subscription_status = $2 AND grace_until < $3
		ORDER BY id`,
		string(entitlement.TierPursuit), string(entitlement.StatusCanceled), now)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	return ids, nil
}

// Summary implements payments.Store.
func (s *Store) Summary(ctx context.Context, now time.Time) (payments.Summary, error) {
	var sum payments.Summary
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE subscription_status = 'active'),
			count(*) FILTER (WHERE subscription_status = 'canceled' AND grace_until < $1),
			count(*) FILTER (WHERE subscription_status = 'canceled' AND (grace_until IS NULL OR grace_until >= $1))
		FROM accounts
		WHERE subscription_ref IS NOT NULL`, now).
		Scan(&sum.Total, &sum.Active, &sum.Expired, &sum.Canceled)
	if err != nil {
		return payments.Summary{}, fmt.Errorf("subscription summary: %w", err)
	}
	sum.Other = sum.Total - sum.Active - sum.Expired - sum.Canceled
	return sum, nil
}

type pgTx struct {
	tx       pgx.Tx
	account  entitlement.Account
	result   *entitlement.Result
	original entitlement.Result
}

func (t *pgTx) Account() *entitlement.Account { return &t.account }

func (t *pgTx) Result() *entitlement.Result { return t.result }

func (t *pgTx) ClaimEvent(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("event key is required")
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO payment_events (key, account_id) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING`, key, t.account.ID)
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// flush writes the whole account row and the result if it changed.
func (t *pgTx) flush(ctx context.Context) error {
	a := t.account
	_, err := t.tx.Exec(ctx, `
		UPDATE accounts
		SET tier = $2, subscription_ref = $3, subscription_status = $4, grace_until = $5, updated_at = $6
		WHERE id = $1`,
		a.ID, string(a.Tier), nullString(a.SubscriptionRef), nullString(string(a.SubscriptionStatus)),
		a.GraceUntil, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}

	if t.result == nil || *t.result == t.original {
		return nil
	}
	_, err = t.tx.Exec(ctx, `
		UPDATE results SET regeneration_count = $2, last_generated_at = $3
		WHERE account_id = $1`,
		a.ID, t.result.RegenerationCount, t.result.LastGeneratedAt)
	if err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (entitlement.Account, error) {
	var (
		a      entitlement.Account
		tier   string
		ref    *string
		status *string
	)
	if err := row.Scan(&a.ID, &a.Email, &tier, &ref, &status, &a.GraceUntil, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return entitlement.Account{}, err
	}
	a.Tier = entitlement.Tier(tier)
	if ref != nil {
		a.SubscriptionRef = *ref
	}
	if status != nil {
		a.SubscriptionStatus = entitlement.SubscriptionStatus(*status)
	}
	if a.GraceUntil != nil {
		g := a.GraceUntil.UTC()
		a.GraceUntil = &g
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func scanResult(row pgx.Row) (entitlement.Result, error) {
	var r entitlement.Result
	if err := row.Scan(&r.AccountID, &r.RegenerationCount, &r.LastGeneratedAt); err != nil {
		return entitlement.Result{}, err
	}
	r.LastGeneratedAt = r.LastGeneratedAt.UTC()
	return r, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ payments.Store = (*Store)(nil)
