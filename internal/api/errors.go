package api

import "fmt"

// APIError is a non-2xx response decoded from the server's error body.
// Code and ErrorCode are empty when the body was not a charityd error.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
}

func (e *APIError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Code != "" && e.Message != "":
		return e.Code + ": " + e.Message
	case e.Message != "":
		return e.Message
	case e.Status > 0:
		return fmt.Sprintf("api error: %d", e.Status)
	default:
		return "api error"
	}
}

// HasCode reports whether the server tagged the error with code.
func (e *APIError) HasCode(code string) bool {
	return e != nil && e.Code == code
}

// FromServer reports whether the body carried a charityd error payload.
func (e *APIError) FromServer() bool {
	return e != nil && e.Code != ""
}
