package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"shopfront/internal/db"
	"shopfront/internal/domain"
	"shopfront/internal/logging"
)

type postgresRepo struct {
	db     db.DBTX
	logger *zap.Logger
}

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(conn db.DBTX, logger *zap.Logger) Repository {
	return &postgresRepo{db: conn, logger: logging.OrNop(logger).With(zap.String("repo", "user"))}
}

const userColumns = `id::text, email, phone, password_hash, first_name, last_name, patronymic, country, city, street, role, created_at`

func (r *postgresRepo) Create(ctx context.Context, u domain.User) (*domain.User, error) {
	var created *domain.User
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		q := `
INSERT INTO users (email, phone, password_hash, first_name, last_name, patronymic, country, city, street, role)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + userColumns
		var err error
		created, err = scanUser(tx.QueryRow(ctx, q,
			strings.ToLower(u.Email),
			u.Phone,
			u.PasswordHash,
			u.FirstName,
			u.LastName,
			u.Patronymic,
			u.Address.Country,
			u.Address.City,
			u.Address.Street,
			u.Role,
		))
		if err != nil {
			return err
		}

		var basketID string
		if err := tx.QueryRow(ctx, `INSERT INTO baskets (owner_id) VALUES ($1) RETURNING id::text`, created.ID).Scan(&basketID); err != nil {
			return fmt.Errorf("insert main basket: %w", err)
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO basket_members (user_id, basket_id, status) VALUES ($1, $2, 'main')
`, created.ID, basketID); err != nil {
			return fmt.Errorf("insert main membership: %w", err)
		}
		created.Baskets = []domain.Membership{{BasketID: basketID, Status: domain.MembershipMain}}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("create user", zap.Error(err))
		return nil, err
	}
	return created, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if !db.ValidID(id) {
		return nil, domain.ErrNotFound
	}
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.withMemberships(ctx, r.db.QueryRow(ctx, q, id))
}

func (r *postgresRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return r.withMemberships(ctx, r.db.QueryRow(ctx, q, email))
}

func (r *postgresRepo) AddMembership(ctx context.Context, userID string, m domain.Membership) error {
	if !db.ValidID(userID, m.BasketID) {
		return domain.ErrNotFound
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO basket_members (user_id, basket_id, status) VALUES ($1, $2, $3)
`, userID, m.BasketID, m.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *postgresRepo) SetMembershipStatus(ctx context.Context, userID, basketID string, from, to domain.MembershipStatus) error {
	if !db.ValidID(userID, basketID) {
		return domain.ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `
UPDATE basket_members SET status = $4
WHERE user_id = $1 AND basket_id = $2 AND status = $3
`, userID, basketID, from, to)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) RemoveMembership(ctx context.Context, userID, basketID string) error {
	if !db.ValidID(userID, basketID) {
		return domain.ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `
DELETE FROM basket_members
WHERE user_id = $1 AND basket_id = $2 AND status <> 'main'
`, userID, basketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) withMemberships(ctx context.Context, row pgx.Row) (*domain.User, error) {
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
SELECT basket_id::text, status
FROM basket_members
WHERE user_id = $1
ORDER BY created_at, basket_id
`, u.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	u.Baskets = []domain.Membership{}
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.BasketID, &m.Status); err != nil {
			return nil, err
		}
		u.Baskets = append(u.Baskets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return u, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Phone,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Patronymic,
		&u.Address.Country,
		&u.Address.City,
		&u.Address.Street,
		&u.Role,
		&u.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
