// Package paramtype parses route-pattern segments and converts raw path
// segments into typed values.
//
// Grammar: segment ::= literal | '{' name (':' spec)? '}' | '*' name;
// spec ::= int|integer|i64|float|f64|number|bool|boolean|<anything else -> string>,
// case-insensitive.
package paramtype

import (
	"strconv"
	"strings"
)

// Type is the closed set of path-parameter types.
type Type int

const (
	// String is the default type and the universal fallback.
	String Type = iota
	Int
	Float
	Bool
)

func (t Type) String() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	default:
		return "string"
	}
}

// Value is a tagged sum over Type carrying the converted value. Raw is
// always populated, even when conversion fails and Type falls back to
// String.
type Value struct {
	Type Type
	Raw  string
	I    int64
	F    float64
	B    bool
}

// StringValue returns a Value that carries raw as String(raw).
func StringValue(raw string) Value {
	return Value{Type: String, Raw: raw}
}

// ParseSegment inspects a single pattern segment. For `{name:spec}` or
// `{name}` it returns the parameter name and its type with isParam true. For
// `*name` it returns the wildcard name with isParam true and Type String
// (wildcards always capture raw remaining path as a string). For a plain
// literal it returns isParam false.
func ParseSegment(segment string) (name string, typ Type, isParam bool) {
	if strings.HasPrefix(segment, "*") {
		return segment[1:], String, true
	}

	if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
		inner := segment[1 : len(segment)-1]
		if idx := strings.IndexByte(inner, ':'); idx >= 0 {
			return inner[:idx], typeFromSpec(inner[idx+1:]), true
		}
		return inner, String, true
	}

	return "", String, false
}

// typeFromSpec maps a type specifier to a Type. An unrecognized specifier
// always maps to String, never an error.
func typeFromSpec(spec string) Type {
	switch strings.ToLower(spec) {
	case "int", "integer", "i64":
		return Int
	case "float", "f64", "number":
		return Float
	case "bool", "boolean":
		return Bool
	default:
		return String
	}
}

// Convert parses raw according to typ. On failure it returns a zero Value
// and an error; ConvertTolerant is the variant that falls back to
// StringValue(raw) instead, preserving the raw value.
func Convert(raw string, typ Type) (Value, error) {
	switch typ {
	case Int:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: Int, Raw: raw, I: n}, nil
	case Float:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: Float, Raw: raw, F: f}, nil
	case Bool:
		b, ok := parseBool(raw)
		if !ok {
			return Value{}, strconv.ErrSyntax
		}
		return Value{Type: Bool, Raw: raw, B: b}, nil
	default:
		return StringValue(raw), nil
	}
}

// ConvertTolerant converts raw according to typ, falling back to
// StringValue(raw) on any conversion failure. This is the router's match-time
// behavior: conversion never fails the match.
func ConvertTolerant(raw string, typ Type) Value {
	v, err := Convert(raw, typ)
	if err != nil {
		return StringValue(raw)
	}
	return v
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(raw) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}
