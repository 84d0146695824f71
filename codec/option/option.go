/*
DESCRIPTION
  option.go defines the shared codec-tuning vocabulary (NAOption-style)
  used by every Decoder/Encoder in this module instead of a config file.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package option provides the small typed-value vocabulary codec front-ends
// use for runtime tuning (get_supported_options/set_options/
// query_option_value), in place of a config-file format.
package option

// Kind tags the dynamic type carried by a Value.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindString
)

// Value is a small closed sum type, enough for the tuning knobs named in
// the spec (e.g. H.264's skip_deblock:bool, frame_skip:string-enum).
type Value struct {
	Kind Kind
	B    bool
	I    int64
	S    string
}

func Bool(b bool) Value   { return Value{Kind: KindBool, B: b} }
func Int(i int64) Value   { return Value{Kind: KindInt, I: i} }
func String(s string) Value { return Value{Kind: KindString, S: s} }

// Descriptor advertises one option a codec supports.
type Descriptor struct {
	Name    string
	Kind    Kind
	Default Value
}

// Option is a named value a caller passes to SetOptions.
type Option struct {
	Name  string
	Value Value
}

// Set is a small helper collecting a codec's current option values, keyed
// by name, with typed accessors used by codec implementations.
type Set struct {
	values map[string]Value
}

// NewSet builds a Set seeded with each descriptor's default.
func NewSet(descs []Descriptor) *Set {
	s := &Set{values: make(map[string]Value, len(descs))}
	for _, d := range descs {
		s.values[d.Name] = d.Default
	}
	return s
}

// Apply overwrites values for options named in opts; unknown names are
// ignored (matching the spec's "codec-specific tuning" contract — a caller
// passing an option a particular codec doesn't recognise is not an error).
func (s *Set) Apply(opts []Option) {
	for _, o := range opts {
		if _, ok := s.values[o.Name]; ok {
			s.values[o.Name] = o.Value
		}
	}
}

// Bool returns the named option's boolean value, or false if unset/wrong kind.
func (s *Set) Bool(name string) bool {
	v, ok := s.values[name]
	if !ok || v.Kind != KindBool {
		return false
	}
	return v.B
}

// Int returns the named option's integer value, or 0 if unset/wrong kind.
func (s *Set) Int(name string) int64 {
	v, ok := s.values[name]
	if !ok || v.Kind != KindInt {
		return 0
	}
	return v.I
}

// String returns the named option's string value, or "" if unset/wrong kind.
func (s *Set) String(name string) string {
	v, ok := s.values[name]
	if !ok || v.Kind != KindString {
		return ""
	}
	return v.S
}

// Query returns the named option's current value and whether it exists.
func (s *Set) Query(name string) (Value, bool) {
	v, ok := s.values[name]
	return v, ok
}
