// Package parsing implements the wire-to-typed-value coercion an
// Execute request's inputs go through before a Job is created: parsing
// the `value@key=val@key=val` literal micro-format, resolving Format
// and Domain, running the value parser, canonicalizing to the
// descriptor's default domain, and range-checking the result.
package parsing

import (
	"strconv"
	"strings"

	"github.com/opengeo/wpys-go/internal/domain"
	"github.com/opengeo/wpys-go/internal/errs"
)

// RawInput is the wire-level input before parsing: an identifier, the
// raw data string (carrying the `@key=val` suffix parameters), and an
// optional declared mime type.
type RawInput struct {
	Identifier string
	Data       string
	MimeType   string // empty if not declared on the wire
}

// splitLiteral splits "value@key=val@key=val" into the bare value and
// its parameter map.
func splitLiteral(data string) (string, map[string]string) {
	parts := strings.Split(data, "@")
	value := parts[0]
	args := make(map[string]string, len(parts)-1)
	for _, item := range parts[1:] {
		k, v, _ := strings.Cut(item, "=")
		args[k] = v
	}
	return value, args
}

// ParseLiteral coerces a wire-level value for a Literal InputDescriptor
// and returns the canonicalized value the process body receives.
func ParseLiteral(desc domain.InputDescriptor, in RawInput) (any, error) {
	if desc.Kind != domain.KindLiteral {
		return nil, errs.New(errs.KindValidation, "input "+desc.Identifier+" is not a literal input")
	}

	rawValue, args := splitLiteral(in.Data)

	// Resolve Format.
	format := desc.DefaultFormat()
	if in.MimeType != "" {
		f, ok := desc.FormatByMimeType(in.MimeType)
		if !ok {
			return nil, errs.New(errs.KindValidation, "unknown format "+in.MimeType+" for input "+desc.Identifier)
		}
		format = f
	}

	// Resolve Domain.
	selectedDomain := desc.DefaultDomain()
	if uom, ok := args["uom"]; ok {
		d, ok := desc.DomainByUOM(uom)
		if !ok {
			return nil, errs.New(errs.KindValidation, "unknown unit "+uom+" for input "+desc.Identifier)
		}
		selectedDomain = d
	}

	// Parse the value: format-level parser wins, then the
	// descriptor-level one, then raw string passthrough.
	valueParser := format.ValueParser
	if valueParser == nil {
		valueParser = desc.ValueParser
	}
	var value any = rawValue
	if valueParser != nil {
		v, err := valueParser(rawValue)
		if err != nil {
			return nil, errs.Wrap(errs.KindValidation, "invalid value for input "+desc.Identifier, err)
		}
		value = v
	}

	// Canonicalize to the default domain.
	defaultDomain := desc.DefaultDomain()
	if !sameDomain(selectedDomain, defaultDomain) {
		if selectedDomain.ToDefaultDomain == nil {
			return nil, errs.New(errs.KindValidation, "non-canonical domain for input "+desc.Identifier)
		}
		v, err := selectedDomain.ToDefaultDomain(value)
		if err != nil {
			return nil, errs.Wrap(errs.KindValidation, "domain conversion failed for input "+desc.Identifier, err)
		}
		value = v
	}

	// Range check against the default domain.
	if defaultDomain.HasRange {
		f, ok := asFloat(value)
		if !ok {
			return nil, errs.New(errs.KindValidation, "input "+desc.Identifier+" is not numeric; cannot range-check")
		}
		if !defaultDomain.InRange(f) {
			return nil, errs.New(errs.KindValidation, "value out of range for input "+desc.Identifier)
		}
	}

	return value, nil
}

// sameDomain compares domains by identity of their defining fields
// (UOM + data type), since Domain values are plain structs with no
// pointer identity to compare.
func sameDomain(a, b domain.Domain) bool {
	return a.UOM == b.UOM && a.DataType == b.DataType
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// Built-in value parsers for the common XSD literal types.

func ParseString(raw string) (any, error) { return raw, nil }

func ParseInt(raw string) (any, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func ParseFloat(raw string) (any, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func ParseBool(raw string) (any, error) {
	switch strings.ToLower(raw) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return nil, errs.New(errs.KindValidation, "invalid boolean value '"+raw+"'")
	}
}
