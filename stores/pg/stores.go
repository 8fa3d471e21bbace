// Package pg provides a Postgres implementation of linkauth.AccountStore on
// pgx. The schema lives in embedded golang-migrate migrations (see Migrate)
// and matches the table the gorm store creates, so either backend can serve
// the same database.
package pg

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	la "github.com/panyam/linkauth"
)

const accountColumns = `id,
	local_email, local_password_hash,
	facebook_id, facebook_token, facebook_name, facebook_email,
	twitter_id, twitter_token, twitter_name, twitter_username,
	google_id, google_token, google_name, google_email,
	created_at, updated_at`

// AccountStore implements la.AccountStore on a pgx connection pool
type AccountStore struct {
	pool *pgxpool.Pool
}

var _ la.AccountStore = (*AccountStore)(nil)

func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

func (s *AccountStore) GetAccountById(ctx context.Context, id string) (*la.Account, error) {
	return s.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (s *AccountStore) FindAccountByLocalEmail(ctx context.Context, email string) (*la.Account, error) {
	return s.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE local_email = $1`, email)
}

func (s *AccountStore) FindAccountByProvider(ctx context.Context, provider la.Provider, providerId string) (*la.Account, error) {
	var query string
	switch provider {
	case la.ProviderFacebook:
		query = `SELECT ` + accountColumns + ` FROM accounts WHERE facebook_id = $1`
	case la.ProviderTwitter:
		query = `SELECT ` + accountColumns + ` FROM accounts WHERE twitter_id = $1`
	case la.ProviderGoogle:
		query = `SELECT ` + accountColumns + ` FROM accounts WHERE google_id = $1`
	default:
		return nil, la.ErrUnknownProvider
	}
	return s.queryOne(ctx, query, providerId)
}

func (s *AccountStore) InsertAccount(ctx context.Context, account *la.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	r := toRow(account)
	query := `INSERT INTO accounts (` + accountColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
	          RETURNING created_at, updated_at`

	var createdAt, updatedAt time.Time
	err := s.pool.QueryRow(ctx, query,
		account.ID,
		r.localEmail, r.localPasswordHash,
		r.facebookID, r.facebookToken, r.facebookName, r.facebookEmail,
		r.twitterID, r.twitterToken, r.twitterName, r.twitterUsername,
		r.googleID, r.googleToken, r.googleName, r.googleEmail,
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		return translateError(err)
	}
	account.CreatedAt = createdAt
	account.UpdatedAt = updatedAt
	return nil
}

func (s *AccountStore) SaveAccount(ctx context.Context, account *la.Account) error {
	r := toRow(account)
	query := `UPDATE accounts SET
	            local_email = $2, local_password_hash = $3,
	            facebook_id = $4, facebook_token = $5, facebook_name = $6, facebook_email = $7,
	            twitter_id = $8, twitter_token = $9, twitter_name = $10, twitter_username = $11,
	            google_id = $12, google_token = $13, google_name = $14, google_email = $15,
	            updated_at = now()
	          WHERE id = $1 RETURNING updated_at`

	var updatedAt time.Time
	err := s.pool.QueryRow(ctx, query,
		account.ID,
		r.localEmail, r.localPasswordHash,
		r.facebookID, r.facebookToken, r.facebookName, r.facebookEmail,
		r.twitterID, r.twitterToken, r.twitterName, r.twitterUsername,
		r.googleID, r.googleToken, r.googleName, r.googleEmail,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return la.ErrAccountNotFound
		}
		return translateError(err)
	}
	account.UpdatedAt = updatedAt
	return nil
}

func (s *AccountStore) queryOne(ctx context.Context, query string, arg string) (*la.Account, error) {
	if arg == "" {
		return nil, la.ErrAccountNotFound
	}
	var r row
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&r.id,
		&r.localEmail, &r.localPasswordHash,
		&r.facebookID, &r.facebookToken, &r.facebookName, &r.facebookEmail,
		&r.twitterID, &r.twitterToken, &r.twitterName, &r.twitterUsername,
		&r.googleID, &r.googleToken, &r.googleName, &r.googleEmail,
		&r.createdAt, &r.updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, la.ErrAccountNotFound
		}
		return nil, err
	}
	return r.toAccount(), nil
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return la.ErrDuplicateAccount
	}
	return err
}
