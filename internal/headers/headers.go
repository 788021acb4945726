// Package headers implements the case-insensitive, order-preserving,
// multi-value header store shared by requests and responses.
package headers

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/http/httpguts"
)

type field struct {
	key   string // lowercased lookup key
	name  string // original casing, as it goes on the wire
	value string
}

// Headers keeps fields in insertion order. Lookups and mutations are
// case-insensitive; values keep their original bytes. Same-name fields
// stay separate entries and are never joined (Set-Cookie and
// WWW-Authenticate depend on that).
type Headers struct {
	fields []field
}

// New builds a store from alternating name/value pairs.
func New(pairs ...string) *Headers {
	h := &Headers{}
	for i := 0; i+1 < len(pairs); i += 2 {
		name, value := pairs[i], pairs[i+1]
		h.fields = append(h.fields, field{key: strings.ToLower(name), name: name, value: value})
	}
	return h
}

func validate(name, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return errors.Errorf("invalid header field name %q", name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return errors.Errorf("invalid header field value for %q", name)
	}
	return nil
}

// Add appends a field, rejecting names and values outside the HTTP
// field grammar (CR/LF injection in particular).
func (h *Headers) Add(name, value string) error {
	if err := validate(name, value); err != nil {
		return err
	}
	h.fields = append(h.fields, field{key: strings.ToLower(name), name: name, value: value})
	return nil
}

// Set replaces all fields with the given name. The replacement keeps
// the position of the first existing occurrence, or appends.
func (h *Headers) Set(name, value string) error {
	if err := validate(name, value); err != nil {
		return err
	}
	key := strings.ToLower(name)
	out := h.fields[:0]
	done := false
	for _, f := range h.fields {
		if f.key != key {
			out = append(out, f)
		} else if !done {
			out = append(out, field{key: key, name: name, value: value})
			done = true
		}
	}
	if !done {
		out = append(out, field{key: key, name: name, value: value})
	}
	h.fields = out
	return nil
}

// Del removes every field with the given name.
func (h *Headers) Del(name string) {
	key := strings.ToLower(name)
	out := h.fields[:0]
	for _, f := range h.fields {
		if f.key != key {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Get returns the first value for name, and whether one exists.
func (h *Headers) Get(name string) (string, bool) {
	key := strings.ToLower(name)
	for _, f := range h.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return "", false
}

// Value returns the first value for name or "".
func (h *Headers) Value(name string) string {
	v, _ := h.Get(name)
	return v
}

// Values returns every value for name in insertion order.
func (h *Headers) Values(name string) []string {
	key := strings.ToLower(name)
	var out []string
	for _, f := range h.fields {
		if f.key == key {
			out = append(out, f.value)
		}
	}
	return out
}

// Has reports whether at least one field with name exists.
func (h *Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Len is the total number of fields.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.fields)
}

// Range calls fn for each field in insertion order until fn returns
// false. Names are reported with their original casing.
func (h *Headers) Range(fn func(name, value string) bool) {
	if h == nil {
		return
	}
	for _, f := range h.fields {
		if !fn(f.name, f.value) {
			return
		}
	}
}

// Clone deep-copies the store. A nil receiver clones to an empty store.
func (h *Headers) Clone() *Headers {
	out := &Headers{}
	if h != nil {
		out.fields = append([]field(nil), h.fields...)
	}
	return out
}

// Merge adds every field of src that has no entry in h yet. Used to
// apply client-level default headers underneath request headers.
func (h *Headers) Merge(src *Headers) {
	if src == nil {
		return
	}
	for _, f := range src.fields {
		if !h.Has(f.key) {
			h.fields = append(h.fields, f)
		}
	}
}
