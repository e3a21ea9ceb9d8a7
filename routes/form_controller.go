package routes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/metrics"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/policy"
	"github.com/mbolis/quick-forms/store"
)

type createFormRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Questions   []model.Document `json:"questions"`
}

type responseEntry struct {
	RespondentName *string          `json:"respondent_name"`
	Answers        []model.Document `json:"answers"`
	SubmittedAt    time.Time        `json:"submitted_at"`
}

func formID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id", "Invalid form id")
		return 0, false
	}
	return id, true
}

func CreateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createFormRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body", "Invalid request body")
			return
		}

		actor := policy.ActorFrom(r.Context())
		if !policy.CanCreateForm(actor) {
			httpx.LogStatusMsg(w, r, http.StatusForbidden, log.DebugLevel, "create_form.policy", "Only faculty or admin accounts may create forms")
			return
		}

		form, err := app.Forms.Create(r.Context(), store.NewForm{
			Title:       req.Title,
			Description: req.Description,
			Questions:   req.Questions,
		}, actor.AccountID)
		if err != nil {
			httpx.WriteError(w, r, "db.insert_form", err)
			return
		}
		app.Record(metrics.FormCreated)

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"message": "Form created successfully",
			"form_id": form.ID,
		})
	}
}

func ListForms(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forms, err := app.Forms.ListForUser(r.Context(), policy.ActorFrom(r.Context()))
		if err != nil {
			httpx.WriteError(w, r, "db.get_forms", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"forms": forms,
		})
	}
}

// GetFormResponses lists what was submitted to a form, for its owner,
// staff and admins only.
func GetFormResponses(app app.App) http.HandlerFunc {
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

		if !policy.CanViewResponses(policy.ActorFrom(r.Context()), &form) {
			httpx.LogStatusMsg(w, r, http.StatusForbidden, log.DebugLevel, "get_responses.policy", "Unauthorized")
			return
		}

		responses, err := app.Responses.ListByForm(r.Context(), form.ID)
		if err != nil {
			httpx.WriteError(w, r, "db.get_responses", err)
			return
		}

		entries := make([]responseEntry, len(responses))
		for i, resp := range responses {
			entries[i] = responseEntry{
				Answers:     resp.Answers,
				SubmittedAt: resp.SubmittedAt,
			}
			if resp.RespondentID != nil {
				name := resp.RespondentName
				entries[i].RespondentName = &name
			}
		}

		render.JSON(w, r, entries)
	}
}

func DeleteForm(app app.App) http.HandlerFunc {
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

		if !policy.CanDeleteForm(policy.ActorFrom(r.Context()), &form) {
			httpx.LogStatusMsg(w, r, http.StatusForbidden, log.DebugLevel, "delete_form.policy", "Unauthorized")
			return
		}

		if err := app.Forms.Delete(r.Context(), form.ID); err != nil {
			httpx.WriteError(w, r, "db.delete_form", err)
			return
		}
		app.Record(metrics.FormDeleted)

		w.WriteHeader(http.StatusNoContent)
	}
}
