// Package params describes the transformation parameters understood by the
// /image/resize robot and turns query string values into typed step values.
package params

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Param describes a single transformation parameter.
type Param struct {
	Name string

	// Default is applied when the parameter is absent from the request. A nil
	// Default means the parameter is omitted unless present; false, 0 and ""
	// are real defaults.
	Default any

	// Type is a descriptive hint such as "1-5000", "boolean" or
	// "jpg|png|gif|tiff". It is never enforced.
	Type string

	Doc string
}

// Catalog is an immutable, ordered set of parameters.
type Catalog struct {
	params []Param
	index  map[string]int
}

// NewCatalog builds a catalog from params, keeping their order. Names must be
// unique.
func NewCatalog(params ...Param) (*Catalog, error) {
	c := &Catalog{
		params: make([]Param, 0, len(params)),
		index:  make(map[string]int, len(params)),
	}
	for _, s := range params {
		if s.Name == "" {
			return nil, fmt.Errorf("parameter at position %d has no name", len(c.params))
		}
		if _, dup := c.index[s.Name]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", s.Name)
		}
		c.index[s.Name] = len(c.params)
		c.params = append(c.params, s)
	}
	return c, nil
}

// MustCatalog is like NewCatalog but panics on error.
func MustCatalog(params ...Param) *Catalog {
	c, err := NewCatalog(params...)
	if err != nil {
		panic(err)
	}
	return c
}

// All returns a copy of every parameter in catalog order.
func (c *Catalog) All() []Param {
	out := make([]Param, len(c.params))
	copy(out, c.params)
	return out
}

// Lookup returns the parameter registered under name.
func (c *Catalog) Lookup(name string) (Param, bool) {
	i, ok := c.index[name]
	if !ok {
		return Param{}, false
	}
	return c.params[i], true
}

// Names returns the parameter names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.params))
	for i, s := range c.params {
		names[i] = s.Name
	}
	return names
}

func (c *Catalog) Len() int {
	return len(c.params)
}

// Entry is the introspection view of a single parameter. A parameter
// declared with only a name has a bare entry, written as {}.
type Entry struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
	Info  string `json:"info"`
}

func (e Entry) bare() bool {
	return e.Type == "" && e.Value == nil && e.Info == ""
}

// Description is the introspection view of a catalog. It marshals to a JSON
// object keyed by parameter name, in catalog order.
type Description struct {
	names   []string
	entries map[string]Entry
}

// Describe returns the introspection view of the catalog.
func (c *Catalog) Describe() Description {
	d := Description{
		names:   c.Names(),
		entries: make(map[string]Entry, len(c.params)),
	}
	for _, s := range c.params {
		d.entries[s.Name] = Entry{Type: s.Type, Value: s.Default, Info: s.Doc}
	}
	return d
}

// Keys returns the described parameter names in order.
func (d Description) Keys() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Get returns the entry for name.
func (d Description) Get(name string) (Entry, bool) {
	e, ok := d.entries[name]
	return e, ok
}

// MarshalJSON writes the entries as an object whose keys keep catalog order.
func (d Description) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range d.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		e := d.entries[name]
		if e.bare() {
			buf.WriteString("{}")
			continue
		}
		val, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
