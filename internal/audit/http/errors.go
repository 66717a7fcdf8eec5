package audithttp

import "errors"

var (
	errInvalidTime   = errors.New("from/to must be RFC3339 or YYYY-MM-DD")
	errInvalidRange  = errors.New("to must not precede from")
	errInvalidNumber = errors.New("page and page_size must be integers")
)
