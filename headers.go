// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"net/http"
	"slices"
	"sort"
	"strings"
)

// HeaderField is a single header name and value.
type HeaderField struct {
	Name  string
	Value string
}

// Headers is an ordered multi-map of header fields.
//
// Insertion order is preserved and names are looked up case-insensitively.
// The zero value is an empty set of headers ready to use.
type Headers struct {
	fields []HeaderField
}

// NewHeaders returns [Headers] containing the given fields in order.
func NewHeaders(fields ...HeaderField) Headers {
	return Headers{fields: slices.Clone(fields)}
}

// Add appends a field, keeping any existing field with the same name.
func (h *Headers) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Set replaces all the fields named name with a single field.
//
// The new field takes the position of the first replaced field or
// is appended when no field named name exists.
func (h *Headers) Set(name, value string) {
	idx := h.index(name)
	if idx < 0 {
		h.Add(name, value)
		return
	}
	h.fields[idx].Value = value
	h.fields = slices.Concat(h.fields[:idx+1], deleteNamed(h.fields[idx+1:], name))
}

// Remove deletes every field named name.
func (h *Headers) Remove(name string) {
	h.fields = deleteNamed(h.fields, name)
}

func deleteNamed(fields []HeaderField, name string) []HeaderField {
	return slices.DeleteFunc(slices.Clone(fields), func(f HeaderField) bool {
		return strings.EqualFold(f.Name, name)
	})
}

// Get returns the value of the first field named name.
func (h Headers) Get(name string) (string, bool) {
	idx := h.index(name)
	if idx < 0 {
		return "", false
	}
	return h.fields[idx].Value, true
}

// Value returns the value of the first field named name or "".
func (h Headers) Value(name string) string {
	value, _ := h.Get(name)
	return value
}

// Values returns the values of all the fields named name, in order.
func (h Headers) Values(name string) []string {
	var values []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

// Has reports whether at least one field is named name.
func (h Headers) Has(name string) bool {
	return h.index(name) >= 0
}

// Len returns the number of fields.
func (h Headers) Len() int {
	return len(h.fields)
}

// Fields returns a copy of the fields in order.
func (h Headers) Fields() []HeaderField {
	return slices.Clone(h.fields)
}

// Clone returns a deep copy.
func (h Headers) Clone() Headers {
	return Headers{fields: slices.Clone(h.fields)}
}

func (h Headers) index(name string) int {
	return slices.IndexFunc(h.fields, func(f HeaderField) bool {
		return strings.EqualFold(f.Name, name)
	})
}

// HTTPHeader converts to an [http.Header].
func (h Headers) HTTPHeader() http.Header {
	out := make(http.Header, len(h.fields))
	for _, f := range h.fields {
		out.Add(f.Name, f.Value)
	}
	return out
}

// HeadersFromHTTP converts an [http.Header], sorting names for determinism.
func HeadersFromHTTP(hh http.Header) Headers {
	names := make([]string, 0, len(hh))
	for name := range hh {
		names = append(names, name)
	}
	sort.Strings(names)
	var out Headers
	for _, name := range names {
		for _, value := range hh[name] {
			out.Add(name, value)
		}
	}
	return out
}
