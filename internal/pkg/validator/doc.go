// Package validator checks request and event structs against their validate
// tags.
//
// Failures come back as a map from snake_case field name to an English
// message, ready to be written in an error response.
package validator

// Validator validates a struct and returns a field keyed error on failure.
type Validator interface {
	Validate(data any) error
}
