package geobases

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andreiashu/geobases/internal/geo"
)

var (
	// ErrNotFound is returned when a key is not in the base.
	ErrNotFound = errors.New("key not found")
	// ErrFieldNotFound is returned when a field is not in a record's schema.
	ErrFieldNotFound = errors.New("field not found")
	// ErrBadGeocode is returned for query points that cannot be parsed or
	// are out of range.
	ErrBadGeocode = geo.ErrBadPoint
	// ErrUnknownBase is returned by Open for names missing from the sources.
	ErrUnknownBase = errors.New("unknown base")
	// ErrNoGeoSupport is returned by spatial queries on a base whose schema
	// lacks the geo fields.
	ErrNoGeoSupport = errors.New("base has no geocode support")
)

// NotFoundError reports a missing key.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("key %q not found", e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// FieldNotFoundError reports a field missing from a record. Key is empty
// when the field is missing from the whole schema.
type FieldNotFoundError struct {
	Key    string
	Field  string
	Fields []string
}

func (e *FieldNotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("field %q not found, available fields: %s", e.Field, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("field %q not found for %q, available fields: %s", e.Field, e.Key, strings.Join(e.Fields, ", "))
}

func (e *FieldNotFoundError) Is(target error) bool { return target == ErrFieldNotFound }

// BadGeocodeError reports an unusable query point.
type BadGeocodeError struct {
	Input string
	Err   error
}

func (e *BadGeocodeError) Error() string {
	if e.Err != nil && !errors.Is(e.Err, ErrBadGeocode) {
		return fmt.Sprintf("bad geocode %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("bad geocode %q", e.Input)
}

func (e *BadGeocodeError) Is(target error) bool { return target == ErrBadGeocode }

func (e *BadGeocodeError) Unwrap() error { return e.Err }

// UnknownBaseError reports a base name missing from the sources.
type UnknownBaseError struct {
	Name      string
	Available []string
}

func (e *UnknownBaseError) Error() string {
	return fmt.Sprintf("unknown base %q, available bases: %s", e.Name, strings.Join(e.Available, ", "))
}

func (e *UnknownBaseError) Is(target error) bool { return target == ErrUnknownBase }
