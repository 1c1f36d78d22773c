package instrument

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Masked replaces every value whose key is listed in a Masker.
const Masked = "***"

// Masker redacts values by key name, case-insensitively. It understands slog
// attributes, decoded JSON documents and HTTP headers.
type Masker struct {
	keys map[string]struct{}
}

// NewMasker builds a Masker for fields. Blank entries are ignored.
func NewMasker(fields ...string) *Masker {
	keys := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			keys[f] = struct{}{}
		}
	}
	return &Masker{keys: keys}
}

// Empty reports whether nothing would be masked.
func (m *Masker) Empty() bool {
	return m == nil || len(m.keys) == 0
}

// Has reports whether values under key are masked.
func (m *Masker) Has(key string) bool {
	if m.Empty() {
		return false
	}
	_, ok := m.keys[strings.ToLower(key)]
	return ok
}

// Headers returns a copy of h with masked values replaced.
func (m *Masker) Headers(h http.Header) http.Header {
	if m.Empty() {
		return h
	}

	out := h.Clone()
	for k := range out {
		if m.Has(k) {
			out[k] = []string{Masked}
		}
	}
	return out
}

// Value masks a decoded JSON value. Scalars are returned as is.
func (m *Masker) Value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if m.Has(k) {
				out[k] = Masked
				continue
			}
			out[k] = m.Value(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if m.Has(k) {
				out[k] = Masked
				continue
			}
			out[k] = item
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = m.Value(item)
		}
		return out
	default:
		return v
	}
}

// JSON masks a JSON document. ok is false when payload is not JSON.
func (m *Masker) JSON(payload []byte) (out []byte, ok bool) {
	var doc any
	if len(payload) == 0 || json.Unmarshal(payload, &doc) != nil {
		return nil, false
	}

	out, err := json.Marshal(m.Value(doc))
	if err != nil {
		return nil, false
	}
	return out, true
}

// Attr masks a log attribute, descending into groups, maps and strings that
// hold a JSON object or array.
func (m *Masker) Attr(attr slog.Attr) slog.Attr {
	if m.Has(attr.Key) {
		return slog.String(attr.Key, Masked)
	}

	switch attr.Value.Kind() {
	case slog.KindGroup:
		group := attr.Value.Group()
		masked := make([]slog.Attr, len(group))
		for i, ga := range group {
			masked[i] = m.Attr(ga)
		}
		attr.Value = slog.GroupValue(masked...)
	case slog.KindString:
		s := attr.Value.String()
		if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
			if out, ok := m.JSON([]byte(s)); ok {
				attr.Value = slog.StringValue(string(out))
			}
		}
	case slog.KindAny:
		switch val := attr.Value.Any().(type) {
		case map[string]any, map[string]string, []any:
			attr.Value = slog.AnyValue(m.Value(val))
		case []byte:
			if out, ok := m.JSON(val); ok {
				attr.Value = slog.StringValue(string(out))
			}
		}
	}

	return attr
}
