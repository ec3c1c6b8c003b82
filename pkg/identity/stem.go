package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	KindVertex = "vertex"
	KindEdge   = "edge"

	// StubSuffix is appended to the object type of a stem whose object is
	// missing identifying properties.
	StubSuffix = "::stub"
)

var ErrMalformedStem = errors.New("malformed identifier stem")

// Pair is one identifying field of a stem.
type Pair struct {
	Field string
	Value any
}

// Stem addresses a family of graph objects by kind, object type and an
// ordered set of identifying values. Its canonical form is
//
//	#<kind>#<object type>#<json object>#
//
// and two stems are equal iff their canonical forms are.
type Stem struct {
	Kind       string
	ObjectType string
	Pairs      []Pair
}

func NewVertexStem(objectType string, pairs ...Pair) Stem {
	return Stem{Kind: KindVertex, ObjectType: objectType, Pairs: pairs}
}

// EdgeStem is the reserved stem every edge carries.
func EdgeStem(label string) Stem {
	return Stem{Kind: KindEdge, ObjectType: label}
}

func (s Stem) String() string {
	var b strings.Builder
	b.WriteByte('#')
	b.WriteString(s.Kind)
	b.WriteByte('#')
	b.WriteString(s.ObjectType)
	b.WriteByte('#')
	b.WriteString(s.pairsJSON())
	b.WriteByte('#')
	return b.String()
}

// pairsJSON keeps insertion order and uses the ", " / ": " separators stems
// were historically written with.
func (s Stem) pairsJSON() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, p := range s.Pairs {
		if i > 0 {
			b.WriteString(", ")
		}
		key, _ := EncodeValue(p.Field)
		b.Write(key)
		b.WriteString(": ")
		value, err := EncodeValue(p.Value)
		if err != nil {
			value = json.RawMessage("null")
		}
		b.Write(value)
	}
	b.WriteByte('}')
	return b.String()
}

func (s Stem) Equal(other Stem) bool {
	return s.String() == other.String()
}

func (s Stem) IsStub() bool {
	return strings.Contains(s.ObjectType, StubSuffix)
}

func (s Stem) IsEdge() bool {
	return s.Kind == KindEdge
}

// BaseType is the object type without the stub suffix.
func (s Stem) BaseType() string {
	return strings.TrimSuffix(s.ObjectType, StubSuffix)
}

// AsStub returns a copy of s whose object type carries the stub suffix.
func (s Stem) AsStub() Stem {
	if s.IsStub() {
		return s
	}
	out := s
	out.ObjectType = s.ObjectType + StubSuffix
	return out
}

// Get looks up kind, object type or an identifying field.
func (s Stem) Get(field string) (any, bool) {
	switch field {
	case "graph_type":
		return s.Kind, true
	case "object_type":
		return s.ObjectType, true
	}
	for _, p := range s.Pairs {
		if p.Field == field {
			return p.Value, true
		}
	}
	return nil, false
}

func (s Stem) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stem) UnmarshalText(text []byte) error {
	parsed, err := ParseStem(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStem reads the canonical form. The json segment may be omitted, as in
// the reserved edge stem "#edge#<label>#".
func ParseStem(raw string) (Stem, error) {
	malformed := func(reason string) (Stem, error) {
		return Stem{}, fmt.Errorf("%w: %q: %s", ErrMalformedStem, raw, reason)
	}

	if len(raw) < 4 || raw[0] != '#' || raw[len(raw)-1] != '#' {
		return malformed("must start and end with '#'")
	}
	rest := raw[1:]

	kind, rest, ok := strings.Cut(rest, "#")
	if !ok || (kind != KindVertex && kind != KindEdge) {
		return malformed("unknown graph kind")
	}
	objectType, rest, ok := strings.Cut(rest, "#")
	if !ok || objectType == "" {
		return malformed("missing object type")
	}

	stem := Stem{Kind: kind, ObjectType: objectType}
	if rest == "" {
		return stem, nil
	}
	body := strings.TrimSuffix(rest, "#")
	if body == rest {
		return malformed("missing closing '#'")
	}

	pairs, err := parsePairs(body)
	if err != nil {
		return malformed(err.Error())
	}
	stem.Pairs = pairs
	return stem, nil
}

func parsePairs(body string) ([]Pair, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("identifying fields must be a json object")
	}

	var pairs []Pair
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		field, ok := tok.(string)
		if !ok {
			return nil, errors.New("identifying field name must be a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		value, err := DecodeValue(raw)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Field: field, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after identifying fields")
	}
	return pairs, nil
}

// StubSource is implemented by objects whose stem may not have resolved.
type StubSource interface {
	ResolvedStem() (Stem, bool)
	StemFields() []string
	ObjectTypeName() string
	Property(name string) (any, bool)
	PropertiesComplete() bool
}

// StemForStub returns the resolved stem of v when there is one. Otherwise it
// builds a vertex stem from v's identifying fields, with null in place of
// absent values, and marks it as a stub when v's properties are incomplete.
func StemForStub(v StubSource) Stem {
	if stem, ok := v.ResolvedStem(); ok {
		return stem
	}

	objectType := v.ObjectTypeName()
	if objectType == "" {
		objectType = "UNKNOWN"
	}

	fields := v.StemFields()
	pairs := make([]Pair, 0, len(fields))
	for _, field := range fields {
		value, ok := v.Property(field)
		if !ok || IsMissing(value) {
			value = nil
		}
		pairs = append(pairs, Pair{Field: field, Value: value})
	}

	stem := NewVertexStem(objectType, pairs...)
	if !v.PropertiesComplete() {
		stem = stem.AsStub()
	}
	return stem
}
