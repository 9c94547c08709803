package batch

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// Header is an ordered multimap of header names to values.
// Names compare case-insensitively, keep the spelling they were first added
// with and are returned in insertion order. The zero value is ready to use.
// Mutators copy the entries before changing them, so a copied Header never
// observes changes made through another copy.
type Header struct {
	entries []headerEntry
}

type headerEntry struct {
	name   string
	values []string
}

// NewHeader returns a Header populated from alternating name, value pairs
func NewHeader(pairs ...string) Header {
	var h Header
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Add(pairs[i], pairs[i+1])
	}
	return h
}

// FromHTTP copies an http.Header. Since http.Header is unordered the names
// are added in sorted order.
func FromHTTP(src http.Header) Header {
	var h Header
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range src[name] {
			h.Add(name, value)
		}
	}
	return h
}

func (h *Header) index(name string) int {
	for i := range h.entries {
		if strings.EqualFold(h.entries[i].name, name) {
			return i
		}
	}
	return -1
}

// own replaces the entries shared with copies of h by a private deep copy
func (h *Header) own() {
	h.entries = h.Clone().entries
}

// Add appends value to the values stored under name
func (h *Header) Add(name, value string) {
	h.own()
	if i := h.index(name); i >= 0 {
		h.entries[i].values = append(h.entries[i].values, value)
		return
	}
	h.entries = append(h.entries, headerEntry{name: name, values: []string{value}})
}

// Set replaces every value stored under name with value
func (h *Header) Set(name, value string) {
	h.own()
	if i := h.index(name); i >= 0 {
		h.entries[i].values = []string{value}
		return
	}
	h.entries = append(h.entries, headerEntry{name: name, values: []string{value}})
}

// Get returns the first value stored under name or "" if there is none
func (h Header) Get(name string) string {
	if i := h.index(name); i >= 0 && len(h.entries[i].values) > 0 {
		return h.entries[i].values[0]
	}
	return ""
}

// Values returns a copy of all values stored under name, or nil
func (h Header) Values(name string) []string {
	i := h.index(name)
	if i < 0 {
		return nil
	}
	return append([]string(nil), h.entries[i].values...)
}

// Has reports whether name is present
func (h Header) Has(name string) bool {
	return h.index(name) >= 0
}

// Del removes name and all of its values
func (h *Header) Del(name string) {
	if i := h.index(name); i >= 0 {
		h.own()
		h.entries = append(h.entries[:i], h.entries[i+1:]...)
	}
}

// Names returns the header names in insertion order
func (h Header) Names() []string {
	names := make([]string, 0, len(h.entries))
	for _, e := range h.entries {
		names = append(names, e.name)
	}
	return names
}

// Len returns the number of distinct header names
func (h Header) Len() int {
	return len(h.entries)
}

// Clone returns a deep copy of h
func (h Header) Clone() Header {
	clone := Header{entries: make([]headerEntry, 0, len(h.entries))}
	for _, e := range h.entries {
		clone.entries = append(clone.entries, headerEntry{name: e.name, values: append([]string(nil), e.values...)})
	}
	return clone
}

// HTTP converts h into an http.Header, canonicalizing the names
func (h Header) HTTP() http.Header {
	out := make(http.Header, len(h.entries))
	for _, e := range h.entries {
		for _, v := range e.values {
			out.Add(e.name, v)
		}
	}
	return out
}

// Map returns the values keyed by the stored spelling of each name
func (h Header) Map() map[string][]string {
	out := make(map[string][]string, len(h.entries))
	for _, e := range h.entries {
		out[e.name] = append([]string(nil), e.values...)
	}
	return out
}

// WriteTo writes every header as a "Name: value" line terminated by CRLF.
// A name with several values is written once per value.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, e := range h.entries {
		for _, v := range e.values {
			n, err := fmt.Fprintf(w, "%s: %s\r\n", e.name, v)
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// parseHeaderLine splits a "Name: value" line. Lines without a colon are
// rejected.
func parseHeaderLine(line string) (name, value string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}
