package routes

import (
	"net/http"
	"strconv"

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

type createAccountRequest struct {
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
	Staff    bool       `json:"staff"`
}

type updateSelfRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

type updateAccountRequest struct {
	Email    *string     `json:"email"`
	Password *string     `json:"password"`
	Role     *model.Role `json:"role"`
	Active   *bool       `json:"active"`
	Staff    *bool       `json:"staff"`
}

func GetMe(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := app.Accounts.Get(r.Context(), policy.ActorFrom(r.Context()).AccountID)
		if err != nil {
			httpx.WriteError(w, r, "db.get_account", err)
			return
		}
		render.JSON(w, r, account)
	}
}

// UpdateMe is the self-service edit: email and password only.
func UpdateMe(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateSelfRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body", "Invalid request body")
			return
		}

		account, err := app.Accounts.Update(r.Context(), policy.ActorFrom(r.Context()).AccountID, store.AccountChanges{
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			httpx.WriteError(w, r, "db.update_account", err)
			return
		}
		render.JSON(w, r, account)
	}
}

func ListAccounts(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := app.Accounts.List(r.Context())
		if err != nil {
			httpx.WriteError(w, r, "db.get_accounts", err)
			return
		}
		render.JSON(w, r, map[string]any{
			"accounts": accounts,
		})
	}
}

// CreateAccount is the elevated creation path: the caller picks role and staff.
func CreateAccount(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAccountRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body", "Invalid request body")
			return
		}

		account, err := app.Accounts.Register(r.Context(), store.NewAccount{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
			Role:     req.Role,
			Staff:    req.Staff,
		})
		if err != nil {
			httpx.WriteError(w, r, "db.insert_account", err)
			return
		}
		app.Record(metrics.AccountRegistered)
		log.Infof("account %d (%s) created by %s", account.ID, account.Username, policy.ActorFrom(r.Context()).Username)

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, account)
	}
}

func UpdateAccount(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id", "Invalid account id")
			return
		}

		var req updateAccountRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body", "Invalid request body")
			return
		}

		account, err := app.Accounts.Update(r.Context(), id, store.AccountChanges{
			Email:    req.Email,
			Password: req.Password,
			Role:     req.Role,
			Active:   req.Active,
			Staff:    req.Staff,
		})
		if err != nil {
			httpx.WriteError(w, r, "db.update_account", err)
			return
		}
		log.Infof("account %d updated by %s", account.ID, policy.ActorFrom(r.Context()).Username)

		render.JSON(w, r, account)
	}
}
