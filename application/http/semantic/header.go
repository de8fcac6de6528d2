package semantic

import (
	"bytes"
	"strings"

	"sockhttp/application/http"
	"sockhttp/application/util/rule"
)

// Headers is a case-insensitive field store holding one value per name.
// Names are kept lowercased in insertion order and emitted in canonical form.
type Headers struct {
	keys   []string
	values map[string]string
}

// NewHeaders copies initial into a fresh Headers.
// Map iteration order is random, so callers needing a stable order should use [HeadersFrom].
func NewHeaders(initial map[string]string) Headers {
	h := Headers{values: make(map[string]string, len(initial))}
	for k, v := range initial {
		h.Set(k, v)
	}
	return h
}

// HeadersFrom creates headers from raw fields in the order they appear.
// When a name repeats, the last value wins.
func HeadersFrom(fields []http.Field) Headers {
	h := Headers{values: make(map[string]string, len(fields))}
	for _, field := range fields {
		h.Set(string(field.Name), string(field.Value))
	}
	return h
}

func (h *Headers) init() {
	if h.values == nil {
		h.values = make(map[string]string)
	}
}

// Set overwrites the value of key. A new key is appended to the end.
func (h *Headers) Set(key, value string) {
	h.init()

	key = strings.ToLower(key)
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

func (h Headers) Get(key string) (value string, ok bool) {
	value, ok = h.values[strings.ToLower(key)]
	return
}

// Value returns def if key is absent.
func (h Headers) Value(key, def string) string {
	if v, ok := h.Get(key); ok {
		return v
	}
	return def
}

func (h Headers) Has(key string) bool {
	_, ok := h.values[strings.ToLower(key)]
	return ok
}

func (h *Headers) Del(key string) {
	key = strings.ToLower(key)
	if _, ok := h.values[key]; !ok {
		return
	}

	delete(h.values, key)
	for idx, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:idx:idx], h.keys[idx+1:]...)
			break
		}
	}
}

// Update merges other into h. Values of other win.
func (h *Headers) Update(other Headers) {
	for _, k := range other.keys {
		h.Set(k, other.values[k])
	}
}

// UpdateFields merges key-value pairs into h in order.
func (h *Headers) UpdateFields(pairs ...[2]string) {
	for _, pair := range pairs {
		h.Set(pair[0], pair[1])
	}
}

func (h Headers) Len() int { return len(h.keys) }

// Fields returns name-value pairs in insertion order, names in canonical form.
func (h Headers) Fields() [][2]string {
	fields := make([][2]string, 0, len(h.keys))
	for _, k := range h.keys {
		fields = append(fields, [2]string{rule.CanonicalFieldName(k), h.values[k]})
	}
	return fields
}

func (h Headers) ToRawFields() []http.Field {
	fields := make([]http.Field, 0, len(h.keys))
	for _, f := range h.Fields() {
		fields = append(fields, http.Field{Name: []byte(f[0]), Value: []byte(f[1])})
	}
	return fields
}

// Text joins the fields with CRLF. There's no trailing CRLF.
func (h Headers) Text() []byte {
	lines := make([][]byte, 0, len(h.keys))
	for _, field := range h.ToRawFields() {
		lines = append(lines, field.Text())
	}
	return bytes.Join(lines, rule.CRLF)
}

func (h Headers) String() string { return string(h.Text()) }

func (h Headers) Clone() Headers {
	clone := Headers{
		keys:   make([]string, len(h.keys)),
		values: make(map[string]string, len(h.values)),
	}
	copy(clone.keys, h.keys)
	for k, v := range h.values {
		clone.values[k] = v
	}
	return clone
}
