package store

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/mbolis/quick-forms/errs"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/policy"
)

type Forms struct {
	db *sqlx.DB
}

type NewForm struct {
	Title       string
	Description string
	Questions   []model.Document
}

type formRow struct {
	ID          int64     `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Questions   string    `db:"questions"`
	CreatedBy   int64     `db:"created_by"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r formRow) toModel() (model.Form, error) {
	questions, err := model.DecodeDocuments(r.Questions)
	if err != nil {
		return model.Form{}, errors.Wrapf(err, "decode questions of form %d", r.ID)
	}
	return model.Form{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Questions:   questions,
		OwnerID:     r.CreatedBy,
		CreatedAt:   r.CreatedAt,
	}, nil
}

const formColumns = `id, title, description, questions, created_by, created_at`

func validateForm(in NewForm) error {
	var p errs.Problems
	if strings.TrimSpace(in.Title) == "" {
		p.Add("title is required")
	}
	if len(in.Questions) == 0 {
		p.Add("questions are required")
	}
	for i, q := range in.Questions {
		if q.Kind() != model.KindMapping {
			p.Add("question %d is malformed", i+1)
		}
	}
	return p.Err()
}

// Create stores a new form owned by ownerID. The owner must still exist and
// hold a role allowed to own forms when the row is written.
func (s *Forms) Create(ctx context.Context, in NewForm, ownerID int64) (form model.Form, err error) {
	in.Title = strings.TrimSpace(in.Title)
	if err = validateForm(in); err != nil {
		return
	}

	questions, err := model.EncodeDocuments(in.Questions)
	if err != nil {
		return form, errors.Wrap(err, "encode questions")
	}

	row := formRow{
		Title:       in.Title,
		Description: in.Description,
		Questions:   questions,
		CreatedBy:   ownerID,
		CreatedAt:   now(),
	}

	err = withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var owner struct {
			Role     string `db:"role"`
			IsActive bool   `db:"is_active"`
		}
		err := tx.GetContext(ctx, &owner, tx.Rebind(`SELECT role, is_active FROM account WHERE id = ?`), ownerID)
		if err != nil {
			if isNoRows(err) {
				return errs.NotFoundf("account %d not found", ownerID)
			}
			return errors.Wrap(err, "get owner")
		}
		role, _ := model.ParseRole(owner.Role)
		if !owner.IsActive || (role != model.RoleFaculty && role != model.RoleAdmin) {
			return errs.Forbiddenf("account %d may not own forms", ownerID)
		}

		err = tx.QueryRowxContext(ctx, tx.Rebind(`
			INSERT INTO form (title, description, questions, created_by, created_at)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id`),
			row.Title, row.Description, row.Questions, row.CreatedBy, row.CreatedAt,
		).Scan(&row.ID)
		return errors.Wrap(err, "insert form")
	})
	if err != nil {
		return
	}

	return row.toModel()
}

func (s *Forms) Get(ctx context.Context, id int64) (model.Form, error) {
	var row formRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+formColumns+` FROM form WHERE id = ?`), id)
	if err != nil {
		if isNoRows(err) {
			return model.Form{}, errs.NotFoundf("Form not found")
		}
		return model.Form{}, errors.Wrap(err, "get form")
	}
	return row.toModel()
}

// ListForUser returns the forms actor may see, newest first: every form for
// admins, their own for faculty.
func (s *Forms) ListForUser(ctx context.Context, actor *policy.Actor) ([]model.Form, error) {
	everything, ownerID, ok := policy.ListScope(actor)
	if !ok {
		return nil, errs.Forbiddenf("not allowed to list forms")
	}

	var rows []formRow
	var err error
	if everything {
		err = s.db.SelectContext(ctx, &rows, `SELECT `+formColumns+` FROM form ORDER BY created_at DESC, id DESC`)
	} else {
		err = s.db.SelectContext(ctx, &rows, s.db.Rebind(`
			SELECT `+formColumns+`
			FROM form
			WHERE created_by = ?
			ORDER BY created_at DESC, id DESC`),
			ownerID,
		)
	}
	if err != nil {
		return nil, errors.Wrap(err, "list forms")
	}

	forms := make([]model.Form, len(rows))
	for i, r := range rows {
		if forms[i], err = r.toModel(); err != nil {
			return nil, err
		}
	}
	return forms, nil
}

// Delete removes a form together with its responses.
func (s *Forms) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM form WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "delete form")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete form.verify")
	}
	if n < 1 {
		return errs.NotFoundf("Form not found")
	}
	return nil
}
