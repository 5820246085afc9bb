// Package postgres is the PostgreSQL Backend. The schema lives in
// internal/platform/database/migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"pollbank/internal/accounts/models"
	"pollbank/internal/backend"
	dirmodels "pollbank/internal/directory/models"
	"pollbank/pkg/domain"
	"pollbank/pkg/platform/sentinel"
	txcontext "pollbank/pkg/platform/tx"
)

const uniqueViolation = "23505"

type Backend struct {
	db    *sql.DB
	clock func() time.Time
}

type Option func(*Backend)

func WithClock(clock func() time.Time) Option {
	return func(b *Backend) {
		if clock != nil {
			b.clock = clock
		}
	}
}

func New(db *sql.DB, opts ...Option) *Backend {
	b := &Backend{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %s: %w", op, pgErr.Message, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (b *Backend) CreateBank(ctx context.Context, bank dirmodels.Bank) error {
	now := b.clock().UTC()
	_, err := txcontext.Execer(ctx, b.db).ExecContext(ctx,
		`INSERT INTO banks (id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
		bank.ID, bank.Name, now)
	if err != nil {
		return mapWriteError("create bank "+bank.ID, err)
	}
	return nil
}

func (b *Backend) CreateBranch(ctx context.Context, branch dirmodels.Branch) error {
	now := b.clock().UTC()
	_, err := txcontext.Execer(ctx, b.db).ExecContext(ctx, `
		INSERT INTO branches (id, name, routing_code, bank_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		branch.ID, branch.Name, branch.RoutingCode, branch.BankID, now)
	if err != nil {
		return mapWriteError("create branch "+branch.ID, err)
	}
	return nil
}

// SaveAccount updates an existing record; it never inserts.
func (b *Backend) SaveAccount(ctx context.Context, a models.PersonnelAccount) error {
	res, err := txcontext.Execer(ctx, b.db).ExecContext(ctx, `
		UPDATE accounts SET
			personnel_name = $3,
			gender = $4,
			department_id = $5,
			designation_id = $6,
			mobile = $7,
			epic_id = $8,
			bank_id = $9,
			branch_id = $10,
			routing_code = $11,
			account_number = $12,
			proof_document = $13,
			updated_at = $14
		WHERE category = $1 AND record_id = $2`,
		string(a.Category), a.RecordID,
		a.PersonnelName, a.Gender, a.DepartmentID, a.DesignationID,
		a.Mobile, a.EpicID, a.BankID, a.BranchID,
		a.RoutingCode, a.AccountNumber, a.ProofDocument,
		b.clock().UTC(),
	)
	if err != nil {
		return mapWriteError("save record "+a.Key().String(), err)
	}
	return requireOneRow(res, a.Key())
}

func (b *Backend) SetVerification(ctx context.Context, key models.Key, verified bool) error {
	res, err := txcontext.Execer(ctx, b.db).ExecContext(ctx,
		`UPDATE accounts SET verified = $3, updated_at = $4 WHERE category = $1 AND record_id = $2`,
		string(key.Category), key.RecordID, verified, b.clock().UTC())
	if err != nil {
		return mapWriteError("set verification "+key.String(), err)
	}
	return requireOneRow(res, key)
}

func (b *Backend) UpdatePIN(ctx context.Context, key models.Key, pinHash string) error {
	res, err := txcontext.Execer(ctx, b.db).ExecContext(ctx,
		`UPDATE accounts SET pin_hash = $3, pin_changed = true, updated_at = $4 WHERE category = $1 AND record_id = $2`,
		string(key.Category), key.RecordID, pinHash, b.clock().UTC())
	if err != nil {
		return mapWriteError("update pin "+key.String(), err)
	}
	return requireOneRow(res, key)
}

func (b *Backend) UpdateUser(ctx context.Context, u models.User) error {
	res, err := txcontext.Execer(ctx, b.db).ExecContext(ctx, `
		UPDATE users SET
			password_hash = $2,
			role = $3,
			officer_name = $4,
			designation = $5,
			mobile = $6
		WHERE id = $1`,
		u.ID, u.PasswordHash, u.Role.String(), u.OfficerName, u.Designation, u.Mobile)
	if err != nil {
		return mapWriteError("update user "+u.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s not found: %w", u.ID, sentinel.ErrNotFound)
	}
	return nil
}

func requireOneRow(res sql.Result, key models.Key) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s not found: %w", key, sentinel.ErrNotFound)
	}
	return nil
}

// FetchAll loads every collection concurrently. Any failure fails the fetch;
// a partial snapshot is never returned.
func (b *Backend) FetchAll(ctx context.Context) (*backend.Data, error) {
	data := &backend.Data{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data.Accounts, err = b.fetchAccounts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		data.Banks, err = b.fetchBanks(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		data.Branches, err = b.fetchBranches(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		data.Users, err = b.fetchUsers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

func (b *Backend) fetchAccounts(ctx context.Context) ([]models.PersonnelAccount, error) {
	categories := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		categories[i] = string(c)
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT category, record_id, owning_user_id, assembly_no, assembly_name, tehsil,
			   unit_id, personnel_name, gender, department_id, designation_id, mobile,
			   epic_id, bank_id, branch_id, routing_code, account_number, proof_document,
			   verified, pin_hash, pin_changed, created_at, updated_at
		FROM accounts
		WHERE category = ANY($1)
		ORDER BY category, record_id`, pq.Array(categories))
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []models.PersonnelAccount
	for rows.Next() {
		var (
			a        models.PersonnelAccount
			category string
		)
		if err := rows.Scan(
			&category, &a.RecordID, &a.OwningUserID, &a.AssemblyNo, &a.AssemblyName, &a.Tehsil,
			&a.UnitID, &a.PersonnelName, &a.Gender, &a.DepartmentID, &a.DesignationID, &a.Mobile,
			&a.EpicID, &a.BankID, &a.BranchID, &a.RoutingCode, &a.AccountNumber, &a.ProofDocument,
			&a.Verified, &a.PINHash, &a.PINChanged, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Category = domain.Category(category)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func (b *Backend) fetchBanks(ctx context.Context) ([]dirmodels.Bank, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, name, created_at, updated_at FROM banks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query banks: %w", err)
	}
	defer rows.Close()

	var out []dirmodels.Bank
	for rows.Next() {
		var bank dirmodels.Bank
		if err := rows.Scan(&bank.ID, &bank.Name, &bank.CreatedAt, &bank.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan bank: %w", err)
		}
		out = append(out, bank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate banks: %w", err)
	}
	return out, nil
}

func (b *Backend) fetchBranches(ctx context.Context) ([]dirmodels.Branch, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, name, routing_code, bank_id, created_at, updated_at
		FROM branches ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query branches: %w", err)
	}
	defer rows.Close()

	var out []dirmodels.Branch
	for rows.Next() {
		var br dirmodels.Branch
		if err := rows.Scan(&br.ID, &br.Name, &br.RoutingCode, &br.BankID, &br.CreatedAt, &br.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		out = append(out, br)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}
	return out, nil
}

func (b *Backend) fetchUsers(ctx context.Context) ([]models.User, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, user_name, password_hash, role, officer_name, designation, mobile
		FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var (
			u    models.User
			role string
		)
		if err := rows.Scan(&u.ID, &u.UserName, &u.PasswordHash, &role, &u.OfficerName, &u.Designation, &u.Mobile); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		parsed, err := domain.ParseRole(role)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.ID, err)
		}
		u.Role = parsed
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// Seed upserts records, directory entries and users created out-of-band
// (bulk import). It runs in a single transaction.
func (b *Backend) Seed(ctx context.Context, data backend.Data) error {
	return txcontext.Run(ctx, b.db, func(ctx context.Context) error {
		return b.seed(ctx, data)
	})
}

func (b *Backend) seed(ctx context.Context, data backend.Data) error {
	tx := txcontext.Execer(ctx, b.db)
	now := b.clock().UTC()
	for _, bank := range data.Banks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO banks (id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at`,
			bank.ID, bank.Name, now)
		if err != nil {
			return mapWriteError("seed bank "+bank.ID, err)
		}
	}
	for _, br := range data.Branches {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO branches (id, name, routing_code, bank_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				routing_code = EXCLUDED.routing_code,
				bank_id = EXCLUDED.bank_id,
				updated_at = EXCLUDED.updated_at`,
			br.ID, br.Name, br.RoutingCode, br.BankID, now)
		if err != nil {
			return mapWriteError("seed branch "+br.ID, err)
		}
	}
	for _, u := range data.Users {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, user_name, password_hash, role, officer_name, designation, mobile)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				user_name = EXCLUDED.user_name,
				password_hash = EXCLUDED.password_hash,
				role = EXCLUDED.role,
				officer_name = EXCLUDED.officer_name,
				designation = EXCLUDED.designation,
				mobile = EXCLUDED.mobile`,
			u.ID, u.UserName, u.PasswordHash, string(u.Role), u.OfficerName, u.Designation, u.Mobile)
		if err != nil {
			return mapWriteError("seed user "+u.ID, err)
		}
	}
	for _, a := range data.Accounts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (
				category, record_id, owning_user_id, assembly_no, assembly_name, tehsil,
				unit_id, personnel_name, gender, department_id, designation_id, mobile,
				epic_id, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
			ON CONFLICT (category, record_id) DO UPDATE SET
				owning_user_id = EXCLUDED.owning_user_id,
				assembly_no = EXCLUDED.assembly_no,
				assembly_name = EXCLUDED.assembly_name,
				tehsil = EXCLUDED.tehsil,
				unit_id = EXCLUDED.unit_id,
				personnel_name = EXCLUDED.personnel_name,
				gender = EXCLUDED.gender,
				department_id = EXCLUDED.department_id,
				designation_id = EXCLUDED.designation_id,
				mobile = EXCLUDED.mobile,
				epic_id = EXCLUDED.epic_id,
				updated_at = EXCLUDED.updated_at`,
			string(a.Category), a.RecordID, a.OwningUserID, a.AssemblyNo, a.AssemblyName, a.Tehsil,
			a.UnitID, a.PersonnelName, a.Gender, a.DepartmentID, a.DesignationID, a.Mobile,
			a.EpicID, now)
		if err != nil {
			return mapWriteError("seed record "+a.Key().String(), err)
		}
	}
	return nil
}
