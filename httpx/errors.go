package httpx

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/mbolis/quick-forms/errs"
	"github.com/mbolis/quick-forms/log"
)

type ErrorBody struct {
	Error string `json:"error"`
}

// StatusOf maps an error kind to the status code reported to the client.
// Conflicts are reported as plain bad requests.
func StatusOf(kind errs.Kind) int {
	switch kind {
	case errs.Validation, errs.Conflict:
		return http.StatusBadRequest
	case errs.Unauthorized:
		return http.StatusUnauthorized
	case errs.Forbidden:
		return http.StatusForbidden
	case errs.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Will write {"error": msg} with the given status
func WriteStatus(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorBody{Error: msg})
}

// Will log err under code, and send the status matching its kind.
// Internal errors are logged at ERROR level and their message is not disclosed.
func WriteError(w http.ResponseWriter, r *http.Request, code string, err error) {
	kind := errs.KindOf(err)
	if kind == errs.Internal {
		LogInternalError(w, r, code, err)
		return
	}
	log.Debugf("%s: %s (%s)", code, err, kind)
	WriteStatus(w, r, StatusOf(kind), err.Error())
}

// Will log an error, and send an HTTP response with status 500 and default text
func LogInternalError(w http.ResponseWriter, r *http.Request, code string, err error) {
	log.Errorf("%s: %s", code, err)
	WriteStatus(w, r, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// Will log an error code and message at the given level,
// and send an HTTP response with the given status and message
func LogStatusMsg(w http.ResponseWriter, r *http.Request, status int, level log.Level, code string, msg string) {
	log.Log(level, code+":", msg)
	WriteStatus(w, r, status, msg)
}
