package projects

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError is an expected business outcome: the caller lacked access, the
// target does not exist, or the request conflicts with current state. Storage
// failures are wrapped plainly and never carry a DomainError.
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

func forbiddenError(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func conflictError(message string) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", message, nil)
}

// IsDomain reports whether err is a business outcome rather than a storage
// failure.
func IsDomain(err error) bool {
	var domain *DomainError
	return errors.As(err, &domain)
}
