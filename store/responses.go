package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/mbolis/quick-forms/errs"
	"github.com/mbolis/quick-forms/model"
)

type Responses struct {
	db *sqlx.DB
}

type responseRow struct {
	ID             int64     `db:"id"`
	FormID         int64     `db:"form_id"`
	RespondentID   *int64    `db:"respondent_id"`
	RespondentName string    `db:"respondent_name"`
	Answers        string    `db:"answers"`
	SubmittedAt    time.Time `db:"submitted_at"`
}

func (r responseRow) toModel() (model.Response, error) {
	answers, err := model.DecodeDocuments(r.Answers)
	if err != nil {
		return model.Response{}, errors.Wrapf(err, "decode answers of response %d", r.ID)
	}
	return model.Response{
		ID:             r.ID,
		FormID:         r.FormID,
		RespondentID:   r.RespondentID,
		RespondentName: r.RespondentName,
		Answers:        answers,
		SubmittedAt:    r.SubmittedAt,
	}, nil
}

// Create records a submission. respondent is nil for anonymous callers.
// A missing form is reported before anything about the answers.
func (s *Responses) Create(ctx context.Context, formID int64, respondent *int64, answers []model.Document) (response model.Response, err error) {
	row := responseRow{
		FormID:       formID,
		RespondentID: respondent,
		SubmittedAt:  now(),
	}

	err = withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var exists int
		err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT 1 FROM form WHERE id = ?`), formID)
		if err != nil {
			if isNoRows(err) {
				return errs.NotFoundf("Form not found")
			}
			return errors.Wrap(err, "get form")
		}

		var p errs.Problems
		if len(answers) == 0 {
			p.Add("Please provide answers")
		}
		for i, a := range answers {
			if !a.Valid() {
				p.Add("answer %d is malformed", i+1)
			}
		}
		if err := p.Err(); err != nil {
			return err
		}

		row.Answers, err = model.EncodeDocuments(answers)
		if err != nil {
			return errors.Wrap(err, "encode answers")
		}

		err = tx.QueryRowxContext(ctx, tx.Rebind(`
			INSERT INTO response (form_id, respondent_id, answers, submitted_at)
			VALUES (?, ?, ?, ?)
			RETURNING id`),
			row.FormID, row.RespondentID, row.Answers, row.SubmittedAt,
		).Scan(&row.ID)
		return errors.Wrap(err, "insert response")
	})
	if err != nil {
		return
	}

	if respondent != nil {
		err = s.db.GetContext(ctx, &row.RespondentName, s.db.Rebind(`SELECT username FROM account WHERE id = ?`), *respondent)
		if err != nil {
			return response, errors.Wrap(err, "get respondent")
		}
	}
	return row.toModel()
}

// ListByForm returns the responses to a form in submission order.
func (s *Responses) ListByForm(ctx context.Context, formID int64) ([]model.Response, error) {
	var rows []responseRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT
			r.id, r.form_id, r.respondent_id,
			COALESCE(a.username, '') AS respondent_name,
			r.answers, r.submitted_at
		FROM response r
		LEFT OUTER JOIN account a ON (a.id = r.respondent_id)
		WHERE r.form_id = ?
		ORDER BY r.id`),
		formID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list responses")
	}

	responses := make([]model.Response, len(rows))
	for i, r := range rows {
		var err error
		if responses[i], err = r.toModel(); err != nil {
			return nil, err
		}
	}
	return responses, nil
}
