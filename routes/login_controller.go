package routes

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/render"

	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/errs"
	"github.com/mbolis/quick-forms/httpx"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/metrics"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/store"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse mirrors the bearer server's JSON answer.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	Message string `json:"message"`
	tokenResponse
}

// Register creates a faculty account. Elevated roles are only granted
// through the admin API or the create-admin command.
func Register(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body", "Invalid request body")
			return
		}

		account, err := app.Accounts.Register(r.Context(), store.NewAccount{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
			Role:     model.DefaultRole,
		})
		if err != nil {
			httpx.WriteError(w, r, "db.register", err)
			return
		}
		app.Record(metrics.AccountRegistered)
		log.Infof("registered account %d (%s)", account.ID, account.Username)

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"message": "User registered successfully",
		})
	}
}

func Login(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body", "Invalid request body")
			return
		}
		if req.Username == "" || req.Password == "" {
			app.Record(metrics.LoginFailed)
			httpx.LogStatusMsg(w, r, http.StatusUnauthorized, log.DebugLevel, "login.missing_credentials", "Invalid credentials")
			return
		}

		// tokens are issued for the username, whichever identifier was typed
		account, err := app.Accounts.GetByIdentifier(r.Context(), req.Username)
		if err != nil {
			if errs.KindOf(err) != errs.NotFound {
				httpx.WriteError(w, r, "db.get_account", err)
				return
			}
			app.Record(metrics.LoginFailed)
			httpx.LogStatusMsg(w, r, http.StatusUnauthorized, log.DebugLevel, "login.credentials", "Invalid credentials")
			return
		}

		session, ok := grantTokens(app, r, url.Values{
			"grant_type": {"password"},
			"username":   {account.Username},
			"password":   {req.Password},
		})
		if !ok {
			app.Record(metrics.LoginFailed)
			httpx.LogStatusMsg(w, r, http.StatusUnauthorized, log.DebugLevel, "login.credentials", "Invalid credentials")
			return
		}
		app.Record(metrics.LoginSucceeded)

		render.JSON(w, r, sessionResponse{Message: "Login successful", tokenResponse: session})
	}
}

func Refresh(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil || req.RefreshToken == "" {
			httpx.LogStatusMsg(w, r, http.StatusUnauthorized, log.DebugLevel, "refresh.token", "Invalid refresh token")
			return
		}

		session, ok := grantTokens(app, r, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {req.RefreshToken},
		})
		if !ok {
			httpx.LogStatusMsg(w, r, http.StatusUnauthorized, log.DebugLevel, "refresh.grant", "Invalid refresh token")
			return
		}

		render.JSON(w, r, sessionResponse{Message: "Token refreshed", tokenResponse: session})
	}
}

// grantTokens replays body as an OAuth token request against the bearer
// server and returns the tokens it issued.
func grantTokens(app app.App, r *http.Request, body url.Values) (tokenResponse, bool) {
	var session tokenResponse

	encoded := body.Encode()
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, "/", strings.NewReader(encoded))
	if err != nil {
		log.Errorf("token.new_request: %s", err)
		return session, false
	}
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	req.Header.Set("content-length", strconv.Itoa(len(encoded)))
	req.RemoteAddr = r.RemoteAddr

	resp := httpx.NewResponseBuffer()
	app.UserCredentials(resp, req)
	if resp.Status() != http.StatusOK {
		log.Debugf("token.grant: bearer server answered %d", resp.Status())
		return session, false
	}

	if err := resp.DecodeJSON(&session); err != nil || session.AccessToken == "" {
		log.Errorf("token.parse_response: %v", err)
		return session, false
	}
	return session, true
}
