// Package querystate mirrors a small set of named UI parameters with the
// query string of the page URL.
//
// A Store is built per request. Writes update the URL in place; the caller
// hands Store.URL to the browser as an HX-Replace-Url header so the address
// bar changes without adding a history entry.
package querystate

import (
	"net/http"
	"net/url"
	"strconv"
)

// Subscriber is called with the effective old and new value of a parameter.
type Subscriber func(old, new string)

// Store is not safe for concurrent use.
type Store struct {
	path   string
	values url.Values
	params map[string]Param
	subs   map[string][]Subscriber
}

func New(u *url.URL, params ...Param) *Store {
	s := &Store{
		path:   u.Path,
		values: url.Values{},
		params: make(map[string]Param, len(params)),
		subs:   map[string][]Subscriber{},
	}
	for k, v := range u.Query() {
		if len(v) > 0 && v[0] != "" {
			s.values.Set(k, v[0])
		}
	}
	for _, p := range params {
		s.params[p.Name] = p
	}
	return s
}

// FromRequest builds a Store over the dashboard parameters.
func FromRequest(r *http.Request) *Store {
	return New(r.URL, Dashboard...)
}

// Read returns the raw value of name and whether it is present.
func (s *Store) Read(name string) (string, bool) {
	v := s.values.Get(name)
	return v, v != ""
}

// Get returns the value of name, falling back to the declared default when
// the parameter is absent or not an accepted value.
func (s *Store) Get(name string) string {
	p, declared := s.params[name]
	v, ok := s.Read(name)
	if !ok {
		return p.Default
	}
	if declared && !p.accepts(v) {
		return p.Default
	}
	return v
}

// Int returns Get(name) as an int, or def when it does not parse or is < 1.
func (s *Store) Int(name string, def int) int {
	n, err := strconv.Atoi(s.Get(name))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func (s *Store) Write(name, value string) {
	s.Batch(func(tx *Tx) { tx.Set(name, value) })
}

// Delete removes name so that subsequent reads return its default.
func (s *Store) Delete(name string) {
	s.Batch(func(tx *Tx) { tx.Delete(name) })
}

// Batch applies every write in fn as one URL update. Subscribers are
// notified once per changed parameter after all writes have been applied.
func (s *Store) Batch(fn func(tx *Tx)) {
	tx := &Tx{writes: map[string]*string{}}
	fn(tx)

	before := make(map[string]string, len(tx.order))
	for _, name := range tx.order {
		before[name] = s.Get(name)
	}
	for _, name := range tx.order {
		if v := tx.writes[name]; v == nil || *v == "" {
			s.values.Del(name)
		} else {
			s.values.Set(name, *v)
		}
	}
	for _, name := range tx.order {
		after := s.Get(name)
		if after == before[name] {
			continue
		}
		for _, sub := range s.subs[name] {
			sub(before[name], after)
		}
	}
}

// Subscribe registers fn for changes to name. The returned func removes it.
func (s *Store) Subscribe(name string, fn Subscriber) func() {
	s.subs[name] = append(s.subs[name], fn)
	idx := len(s.subs[name]) - 1
	return func() {
		subs := s.subs[name]
		if idx < len(subs) {
			subs[idx] = func(string, string) {}
		}
	}
}

// Query returns the canonical encoded query string.
func (s *Store) Query() string {
	return s.values.Encode()
}

// URL returns the path with the canonical query string.
func (s *Store) URL() string {
	q := s.Query()
	if q == "" {
		return s.path
	}
	return s.path + "?" + q
}

// With returns the URL for path with the current parameters overlaid by
// pairs (name, value, name, value...). An empty value removes the parameter.
func (s *Store) With(path string, pairs ...string) string {
	v := url.Values{}
	for k := range s.values {
		v.Set(k, s.values.Get(k))
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			v.Del(pairs[i])
			continue
		}
		v.Set(pairs[i], pairs[i+1])
	}
	if q := v.Encode(); q != "" {
		return path + "?" + q
	}
	return path
}

// Tx collects the writes of a Batch.
type Tx struct {
	writes map[string]*string
	order  []string
}

func (tx *Tx) Set(name, value string) {
	if _, seen := tx.writes[name]; !seen {
		tx.order = append(tx.order, name)
	}
	tx.writes[name] = &value
}

func (tx *Tx) Delete(name string) {
	if _, seen := tx.writes[name]; !seen {
		tx.order = append(tx.order, name)
	}
	tx.writes[name] = nil
}
