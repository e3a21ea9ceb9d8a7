package routes

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/metrics"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/policy"
)

type formShape struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Questions   []model.Document `json:"questions"`
}

type submitRequest struct {
	Answers []model.Document `json:"answers"`
}

// PublicGetForm returns what a respondent needs to fill a form in, and
// nothing about who owns it or what others answered.
func PublicGetForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := formID(w, r)
		if !ok {
			return
		}

		form, err := app.Forms.Get(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, r, "db.get_form", err)
			return
		}

		if !policy.CanViewForm(policy.ActorFrom(r.Context()), &form) {
			httpx.LogStatusMsg(w, r, http.StatusForbidden, log.DebugLevel, "get_form.policy", "Unauthorized")
			return
		}

		render.JSON(w, r, formShape{
			ID:          form.ID,
			Title:       form.Title,
			Description: form.Description,
			Questions:   form.Questions,
		})
	}
}

// PublicSubmitResponse records answers from anyone. Authenticated callers
// are remembered as the respondent.
func PublicSubmitResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := formID(w, r)
		if !ok {
			return
		}

		form, err := app.Forms.Get(r.Context(), id)
		if err != nil {
			httpx.WriteError(w, r, "db.get_form", err)
			return
		}

		var req submitRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body", "Invalid request body")
			return
		}

		actor := policy.ActorFrom(r.Context())
		if !policy.CanSubmitResponse(actor, &form) {
			httpx.LogStatusMsg(w, r, http.StatusForbidden, log.DebugLevel, "submit_response.policy", "Unauthorized")
			return
		}

		var respondent *int64
		if actor != nil {
			respondent = &actor.AccountID
		}

		response, err := app.Responses.Create(r.Context(), form.ID, respondent, req.Answers)
		if err != nil {
			httpx.WriteError(w, r, "db.insert_response", err)
			return
		}
		app.Record(metrics.ResponseSubmitted)

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"message":     "Response submitted successfully",
			"response_id": response.ID,
		})
	}
}
