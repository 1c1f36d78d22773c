// Package uid generates identifiers for events, objects and tokens.
package uid

// StringID generates string identifiers.
type StringID interface {
	Generate() string
}

// NumberID generates sortable numeric identifiers.
type NumberID interface {
	Generate() int64
}
