package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/config"
	"github.com/mbolis/quick-forms/database"
	"github.com/mbolis/quick-forms/log"
	"github.com/mbolis/quick-forms/model"
	"github.com/mbolis/quick-forms/store"
)

const testSecret = "test-secret-for-route-tests"

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type testEnv struct {
	t       *testing.T
	store   *store.Store
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(config.Config{
		DBDriver: database.SQLite,
		DBUrl:    filepath.Join(t.TempDir(), "qforms.sqlite"),
	})
	require.NoError(t, err)

	st := store.New(db)
	st.Accounts.HashCost = bcrypt.MinCost
	t.Cleanup(func() { st.Close() })

	cfg := config.Config{
		TokenSecret:    testSecret,
		TokenTTL:       time.Minute,
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	return &testEnv{
		t:       t,
		store:   st,
		handler: Wire(app.New(st, cfg)),
	}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) register(username string, role model.Role) model.Account {
	e.t.Helper()
	a, err := e.store.Accounts.Register(context.Background(), store.NewAccount{
		Username: username,
		Email:    username + "@x.com",
		Password: "pw",
		Role:     role,
	})
	require.NoError(e.t, err)
	return a
}

func (e *testEnv) login(username, password string) string {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/login", "", map[string]string{"username": username, "password": password})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Message     string `json:"message"`
		AccessToken string `json:"access_token"`
	}
	decode(e.t, w, &body)
	require.NotEmpty(e.t, body.AccessToken)
	return body.AccessToken
}

func (e *testEnv) createForm(token string, body any) int64 {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/forms", token, body)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		FormID int64 `json:"form_id"`
	}
	decode(e.t, w, &created)
	require.NotZero(e.t, created.FormID)
	return created.FormID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	return body.Error
}

var survey = map[string]any{
	"title":     "Survey",
	"questions": []any{map[string]any{"type": "text"}},
}

func TestEndToEnd(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/api/register", "", map[string]string{"username": "alice", "email": "a@x.com", "password": "pw"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"User registered successfully"}`, w.Body.String())

	alice := e.login("alice", "pw")
	formID := e.createForm(alice, survey)

	w = e.do(http.MethodPost, formPath(formID)+"/responses", "", map[string]any{"answers": []any{"hi"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodGet, formPath(formID), alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var entries []struct {
		RespondentName *string           `json:"respondent_name"`
		Answers        []json.RawMessage `json:"answers"`
	}
	decode(t, w, &entries)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].RespondentName)
	require.Len(t, entries[0].Answers, 1)
	assert.JSONEq(t, `"hi"`, string(entries[0].Answers[0]))

	e.register("bob", model.RoleFaculty)
	bob := e.login("bob", "pw")
	w = e.do(http.MethodGet, formPath(formID), bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotEmpty(t, errorOf(t, w))
}

func formPath(id int64) string {
	return "/api/forms/" + jsonNumber(id)
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestRegisterErrors(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/api/register", "", map[string]string{"username": "alice", "email": "a@x.com", "password": "pw"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodPost, "/api/register", "", map[string]string{"username": "alice", "email": "b@x.com", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Username already exists", errorOf(t, w))

	w = e.do(http.MethodPost, "/api/register", "", map[string]string{"username": "carol"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email is required; password is required", errorOf(t, w))

	w = e.do(http.MethodPost, "/api/register", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterIgnoresTrailingSlash(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/api/register/", "", map[string]string{"username": "alice", "email": "a@x.com", "password": "pw"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestLoginFailures(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", model.RoleFaculty)

	w := e.do(http.MethodPost, "/api/login", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", errorOf(t, w))

	w = e.do(http.MethodPost, "/api/login", "", map[string]string{"username": "nobody", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/login", "", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginByEmail(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", model.RoleFaculty)

	token := e.login("alice@x.com", "pw")
	w := e.do(http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var me model.Account
	decode(t, w, &me)
	assert.Equal(t, "alice", me.Username)
}

func TestRefresh(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", model.RoleFaculty)

	w := e.do(http.MethodPost, "/api/login", "", map[string]string{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	var session struct {
		RefreshToken string `json:"refresh_token"`
	}
	decode(t, w, &session)
	require.NotEmpty(t, session.RefreshToken)

	w = e.do(http.MethodPost, "/api/refresh", "", map[string]string{"refresh_token": session.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// refresh tokens are single use
	w = e.do(http.MethodPost, "/api/refresh", "", map[string]string{"refresh_token": session.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBadTokenRejected(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodGet, "/api/forms", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", errorOf(t, w))
}

func TestDeactivatedAccountRejected(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register("alice", model.RoleFaculty)
	token := e.login("alice", "pw")

	inactive := false
	_, err := e.store.Accounts.Update(context.Background(), alice.ID, store.AccountChanges{Active: &inactive})
	require.NoError(t, err)

	w := e.do(http.MethodGet, "/api/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateForm(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", model.RoleFaculty)
	alice := e.login("alice", "pw")

	w := e.do(http.MethodPost, "/api/forms", "", survey)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/forms", alice, map[string]any{"title": "", "questions": []any{map[string]any{"type": "text"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/forms", alice, map[string]any{"title": "Survey", "questions": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/forms", alice, map[string]any{"title": "Survey", "questions": []any{"text"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "question 1 is malformed", errorOf(t, w))

	w = e.do(http.MethodPost, "/api/forms", alice, survey)
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]any
	decode(t, w, &created)
	assert.Equal(t, "Form created successfully", created["message"])
	assert.NotNil(t, created["form_id"])
}

func TestPublicFormShape(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", model.RoleFaculty)
	formID := e.createForm(e.login("alice", "pw"), map[string]any{
		"title":       "Survey",
		"description": "About you",
		"questions":   []any{map[string]any{"type": "text", "prompt": "Name?"}},
	})

	w := e.do(http.MethodGet, formPath(formID)+"/shape", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"id": `+jsonNumber(formID)+`,
		"title": "Survey",
		"description": "About you",
		"questions": [{"type": "text", "prompt": "Name?"}]
	}`, w.Body.String())

	w = e.do(http.MethodGet, "/api/forms/999/shape", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitResponse(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", model.RoleFaculty)
	e.register("bob", model.RoleFaculty)
	alice := e.login("alice", "pw")
	formID := e.createForm(alice, survey)

	w := e.do(http.MethodPost, "/api/forms/999/responses", "", map[string]any{"answers": []any{"hi"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Form not found", errorOf(t, w))

	w = e.do(http.MethodPost, "/api/forms/999/responses", "", map[string]any{})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPost, formPath(formID)+"/responses", "", map[string]any{"answers": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please provide answers", errorOf(t, w))

	w = e.do(http.MethodPost, formPath(formID)+"/responses", e.login("bob", "pw"), map[string]any{"answers": []any{map[string]any{"q": 1, "a": "yes"}}})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodGet, formPath(formID), alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []struct {
		RespondentName *string `json:"respondent_name"`
	}
	decode(t, w, &entries)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].RespondentName)
	assert.Equal(t, "bob", *entries[0].RespondentName)
}

func TestAdminViewsAnyResponses(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", model.RoleFaculty)
	e.register("root", model.RoleAdmin)
	formID := e.createForm(e.login("alice", "pw"), survey)

	w := e.do(http.MethodGet, formPath(formID), e.login("root", "pw"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = e.do(http.MethodGet, formPath(formID), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodGet, "/api/forms/999", e.login("root", "pw"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListForms(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", model.RoleFaculty)
	e.register("bob", model.RoleFaculty)
	e.register("root", model.RoleAdmin)
	alice := e.login("alice", "pw")
	e.createForm(alice, survey)
	e.createForm(e.login("bob", "pw"), survey)

	var list struct {
		Forms []model.Form `json:"forms"`
	}
	w := e.do(http.MethodGet, "/api/forms", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	assert.Len(t, list.Forms, 1)

	w = e.do(http.MethodGet, "/api/forms", e.login("root", "pw"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	assert.Len(t, list.Forms, 2)
}

func TestDeleteForm(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", model.RoleFaculty)
	e.register("bob", model.RoleFaculty)
	alice := e.login("alice", "pw")
	formID := e.createForm(alice, survey)

	w := e.do(http.MethodDelete, formPath(formID), e.login("bob", "pw"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodDelete, formPath(formID), alice, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(http.MethodGet, formPath(formID), alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccountsAdminOnly(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register("alice", model.RoleFaculty)
	e.register("root", model.RoleAdmin)
	root := e.login("root", "pw")

	w := e.do(http.MethodGet, "/api/accounts", e.login("alice", "pw"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodGet, "/api/accounts", root, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Accounts []model.Account `json:"accounts"`
	}
	decode(t, w, &list)
	assert.Len(t, list.Accounts, 2)

	w = e.do(http.MethodPost, "/api/accounts", root, map[string]any{"username": "dean", "email": "dean@x.com", "password": "pw", "role": "admin"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var dean model.Account
	decode(t, w, &dean)
	assert.Equal(t, model.RoleAdmin, dean.Role)
	assert.True(t, dean.Staff)

	w = e.do(http.MethodPost, "/api/accounts", root, map[string]any{"username": "x", "email": "x@x.com", "password": "pw", "role": "student"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPatch, "/api/accounts/"+jsonNumber(alice.ID), root, map[string]any{"staff": true})
	require.Equal(t, http.StatusOK, w.Code)
	var updated model.Account
	decode(t, w, &updated)
	assert.True(t, updated.Staff)
}

func TestUpdateMe(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", model.RoleFaculty)
	token := e.login("alice", "pw")

	w := e.do(http.MethodPatch, "/api/me", token, map[string]any{"password": "new-pw", "role": "admin"})
	require.Equal(t, http.StatusOK, w.Code)
	var me model.Account
	decode(t, w, &me)
	assert.Equal(t, model.RoleFaculty, me.Role, "role is not self-service")

	e.login("alice", "new-pw")
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodGet, "/api/register", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "Method not allowed", errorOf(t, w))

	w = e.do(http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.do(http.MethodPost, "/api/register", "", map[string]string{"username": "alice", "email": "a@x.com", "password": "pw"})

	w := e.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `qforms_events_total{event="account_registered"} 1`)
}

func TestTokenFollowsAccountNotEmail(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", model.RoleFaculty)
	bob := e.register("bob", model.RoleFaculty)
	e.register("root", model.RoleAdmin)

	alice := e.login("alice@x.com", "pw")

	w := e.do(http.MethodPatch, "/api/me", alice, map[string]any{"email": "alice2@x.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(http.MethodPatch, "/api/accounts/"+jsonNumber(bob.ID), e.login("root", "pw"), map[string]any{"email": "alice@x.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(http.MethodGet, "/api/me", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me model.Account
	decode(t, w, &me)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, "alice2@x.com", me.Email)
}

func TestStaleBearerOnPublicRoutes(t *testing.T) {
	e := newTestEnv(t)
	const stale = "undefined"

	w := e.do(http.MethodPost, "/api/register", stale, map[string]string{"username": "alice", "email": "a@x.com", "password": "pw"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/api/login", stale, map[string]string{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	formID := e.createForm(e.login("alice", "pw"), survey)

	w = e.do(http.MethodGet, formPath(formID)+"/shape", stale, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, formPath(formID)+"/responses", stale, map[string]any{"answers": []any{"hi"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodGet, "/api/forms", stale, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", errorOf(t, w))
}

func TestResponsesPathServesList(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", model.RoleFaculty)
	alice := e.login("alice", "pw")
	formID := e.createForm(alice, survey)

	w := e.do(http.MethodPost, formPath(formID)+"/responses", "", map[string]any{"answers": []any{"hi"}})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodGet, formPath(formID)+"/responses/", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var entries []map[string]any
	decode(t, w, &entries)
	assert.Len(t, entries, 1)

	w = e.do(http.MethodGet, formPath(formID)+"/responses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
