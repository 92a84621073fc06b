package app

import (
	"fmt"
	"net/http"
)

// DomainError is an error the HTTP layer can serialise verbatim: engine
// sentinels are translated into one by mapError, handlers raise their own
// for request-shape problems. Code is a stable machine-readable token
// such as SEQUENCE_TAKEN or NOT_NAVIGABLE.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// invalidBody flags a request payload the handler could decode but not
// accept.
func invalidBody(message string) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_BODY", message, nil)
}
