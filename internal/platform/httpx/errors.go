package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for transport-level failures.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrorMapping binds a domain sentinel to the problem it renders as.
type ErrorMapping struct {
	Err    error
	Status int
	Title  string
}

var baseMappings = []ErrorMapping{
	{Err: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: ErrDuplicate, Status: http.StatusConflict, Title: "Duplicate"},
	{Err: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Err: ErrUnauthorized, Status: http.StatusUnauthorized, Title: "Unauthorized"},
}

// RespondError maps err to an RFC7807 response. Caller mappings are checked
// before the transport sentinels; anything unmatched becomes a 500 with no
// detail leaked.
func RespondError(w http.ResponseWriter, err error, mappings ...ErrorMapping) {
	for _, set := range [][]ErrorMapping{mappings, baseMappings} {
		for _, m := range set {
			if errors.Is(err, m.Err) {
				Problem(w, m.Status, m.Title, err.Error())
				return
			}
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
