package store

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbolis/quick-forms/errs"
	"github.com/mbolis/quick-forms/model"
)

type Accounts struct {
	db *sqlx.DB

	// HashCost is the bcrypt cost used for new password hashes.
	HashCost int
}

type NewAccount struct {
	Username string
	Email    string
	Password string
	Role     model.Role
	Staff    bool
}

// AccountChanges holds the fields to update; nil means unchanged.
type AccountChanges struct {
	Email    *string
	Password *string
	Role     *model.Role
	Active   *bool
	Staff    *bool
}

type accountRow struct {
	ID           int64      `db:"id"`
	Username     string     `db:"username"`
	Email        string     `db:"email"`
	PasswordHash []byte     `db:"password_hash"`
	Role         string     `db:"role"`
	IsActive     bool       `db:"is_active"`
	IsStaff      bool       `db:"is_staff"`
	CreatedAt    time.Time  `db:"created_at"`
	LastLoginAt  *time.Time `db:"last_login_at"`
}

func (r accountRow) toModel() model.Account {
	role, _ := model.ParseRole(r.Role)
	return model.Account{
		ID:          r.ID,
		Username:    r.Username,
		Email:       r.Email,
		Role:        role,
		Active:      r.IsActive,
		Staff:       r.IsStaff,
		CreatedAt:   r.CreatedAt,
		LastLoginAt: r.LastLoginAt,
	}
}

const accountColumns = `id, username, email, password_hash, role, is_active, is_staff, created_at, last_login_at`

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// Register creates a new active account. Role defaults to faculty, and
// admins are always staff.
func (s *Accounts) Register(ctx context.Context, in NewAccount) (model.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	var p errs.Problems
	if in.Username == "" {
		p.Add("username is required")
	}
	if in.Email == "" {
		p.Add("email is required")
	} else if !validEmail(in.Email) {
		p.Add("email is not valid")
	}
	if in.Password == "" {
		p.Add("password is required")
	}
	if in.Role == model.RoleUnknown {
		in.Role = model.DefaultRole
	} else if !in.Role.Valid() {
		p.Add("role is not valid")
	}
	if err := p.Err(); err != nil {
		return model.Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.HashCost)
	if err != nil {
		return model.Account{}, errors.Wrap(err, "hash password")
	}

	row := accountRow{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role.String(),
		IsActive:     true,
		IsStaff:      in.Staff || in.Role == model.RoleAdmin,
		CreatedAt:    now(),
	}

	err = s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO account (username, email, password_hash, role, is_active, is_staff, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		row.Username, row.Email, row.PasswordHash, row.Role, row.IsActive, row.IsStaff, row.CreatedAt,
	).Scan(&row.ID)
	if err != nil {
		if cerr, ok := asConflict(err); ok {
			return model.Account{}, cerr
		}
		return model.Account{}, errors.Wrap(err, "insert account")
	}

	return row.toModel(), nil
}

// Authenticate checks a password against the active account whose username
// or email is identifier.
func (s *Accounts) Authenticate(ctx context.Context, identifier, password string) (model.Account, error) {
	invalid := errs.Unauthorizedf("invalid credentials")

	row, err := s.rowByIdentifier(ctx, identifier)
	if err != nil {
		if errs.KindOf(err) == errs.NotFound {
			return model.Account{}, invalid
		}
		return model.Account{}, err
	}
	if !row.IsActive {
		return model.Account{}, invalid
	}

	err = bcrypt.CompareHashAndPassword(row.PasswordHash, []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return model.Account{}, invalid
		}
		return model.Account{}, errors.Wrap(err, "compare password")
	}

	loginAt := now()
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`UPDATE account SET last_login_at = ? WHERE id = ?`), loginAt, row.ID)
	if err != nil {
		return model.Account{}, errors.Wrap(err, "update last login")
	}
	row.LastLoginAt = &loginAt

	return row.toModel(), nil
}

func (s *Accounts) Get(ctx context.Context, id int64) (model.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+accountColumns+` FROM account WHERE id = ?`), id)
	if err != nil {
		if isNoRows(err) {
			return model.Account{}, errs.NotFoundf("account %d not found", id)
		}
		return model.Account{}, errors.Wrap(err, "get account")
	}
	return row.toModel(), nil
}

// GetByUsername looks an account up by its username, which never changes.
func (s *Accounts) GetByUsername(ctx context.Context, username string) (model.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+accountColumns+` FROM account WHERE username = ?`), username)
	if err != nil {
		if isNoRows(err) {
			return model.Account{}, errs.NotFoundf("account %q not found", username)
		}
		return model.Account{}, errors.Wrap(err, "get account by username")
	}
	return row.toModel(), nil
}

// GetByIdentifier looks an account up by username, falling back to email.
func (s *Accounts) GetByIdentifier(ctx context.Context, identifier string) (model.Account, error) {
	row, err := s.rowByIdentifier(ctx, identifier)
	if err != nil {
		return model.Account{}, err
	}
	return row.toModel(), nil
}

func (s *Accounts) rowByIdentifier(ctx context.Context, identifier string) (accountRow, error) {
	var row accountRow
	if identifier == "" {
		return row, errs.NotFoundf("account not found")
	}

	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT `+accountColumns+`
		FROM account
		WHERE username = ? OR email = ?
		ORDER BY CASE WHEN username = ? THEN 0 ELSE 1 END
		LIMIT 1`),
		identifier, identifier, identifier,
	)
	if err != nil {
		if isNoRows(err) {
			return row, errs.NotFoundf("account %q not found", identifier)
		}
		return row, errors.Wrap(err, "get account by identifier")
	}
	return row, nil
}

func (s *Accounts) List(ctx context.Context) ([]model.Account, error) {
	var rows []accountRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+accountColumns+` FROM account ORDER BY username`)
	if err != nil {
		return nil, errors.Wrap(err, "list accounts")
	}

	accounts := make([]model.Account, len(rows))
	for i, r := range rows {
		accounts[i] = r.toModel()
	}
	return accounts, nil
}

// Update applies changes to an existing account. Accounts are never
// deleted; setting Active to false is how they are retired.
func (s *Accounts) Update(ctx context.Context, id int64, changes AccountChanges) (account model.Account, err error) {
	err = withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var row accountRow
		err := tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+accountColumns+` FROM account WHERE id = ?`), id)
		if err != nil {
			if isNoRows(err) {
				return errs.NotFoundf("account %d not found", id)
			}
			return errors.Wrap(err, "get account")
		}

		var p errs.Problems
		if changes.Email != nil {
			email := strings.TrimSpace(*changes.Email)
			if !validEmail(email) {
				p.Add("email is not valid")
			}
			row.Email = email
		}
		if changes.Password != nil {
			if *changes.Password == "" {
				p.Add("password must not be empty")
			} else {
				hash, err := bcrypt.GenerateFromPassword([]byte(*changes.Password), s.HashCost)
				if err != nil {
					return errors.Wrap(err, "hash password")
				}
				row.PasswordHash = hash
			}
		}
		if changes.Role != nil {
			if !changes.Role.Valid() {
				p.Add("role is not valid")
			}
			row.Role = changes.Role.String()
		}
		if changes.Active != nil {
			row.IsActive = *changes.Active
		}
		if changes.Staff != nil {
			row.IsStaff = *changes.Staff
		}
		if err := p.Err(); err != nil {
			return err
		}
		if row.Role == model.RoleAdmin.String() {
			row.IsStaff = true
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`
			UPDATE account
			SET email = ?, password_hash = ?, role = ?, is_active = ?, is_staff = ?
			WHERE id = ?`),
			row.Email, row.PasswordHash, row.Role, row.IsActive, row.IsStaff, row.ID,
		)
		if err != nil {
			if cerr, ok := asConflict(err); ok {
				return cerr
			}
			return errors.Wrap(err, "update account")
		}

		account = row.toModel()
		return nil
	})
	return account, err
}
