// Package validation turns user-supplied run parameters into checked domain
// values. It never evaluates input; ROI text goes through a strict decoder that
// accepts only a JSON array of [lat, lon] number pairs.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/verdantlabs/landchange/internal/models"
)

const minDistinctVertices = 3

// GeometryErrorKind classifies ROI rejections.
type GeometryErrorKind string

const (
	KindMalformed    GeometryErrorKind = "malformed"
	KindNonNumeric   GeometryErrorKind = "non_numeric"
	KindOutOfRange   GeometryErrorKind = "out_of_range"
	KindTooFewPoints GeometryErrorKind = "too_few_points"
)

// GeometryError explains why ROI text was rejected.
type GeometryError struct {
	Kind   GeometryErrorKind
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("invalid geometry (%s): %s", e.Kind, e.Reason)
}

func (e *GeometryError) Unwrap() error { return models.ErrInvalidGeometry }

// YearError explains why a year was rejected.
type YearError struct {
	Field  string
	Year   int
	Min    int
	Max    int
	Reason string
}

func (e *YearError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported year: %s", e.Reason)
	}
	return fmt.Sprintf("unsupported year: %s %d is outside the supported range %d-%d", e.Field, e.Year, e.Min, e.Max)
}

func (e *YearError) Unwrap() error { return models.ErrUnsupportedYear }

// Validator checks run parameters against the archive coverage policy.
type Validator struct {
	minYear      int
	maxYear      int
	requireOrder bool
	now          func() time.Time
}

// Option customises a Validator.
type Option func(*Validator)

// WithClock overrides the clock used to resolve an open-ended year range.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithOrderedYears rejects runs whose end year precedes the start year.
func WithOrderedYears(required bool) Option {
	return func(v *Validator) { v.requireOrder = required }
}

// New builds a Validator for years in [minYear, maxYear]. A zero maxYear means
// the current UTC year.
func New(minYear, maxYear int, opts ...Option) *Validator {
	v := &Validator{minYear: minYear, maxYear: maxYear, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// YearRange returns the supported year range at the time of the call.
func (v *Validator) YearRange() (int, int) {
	max := v.maxYear
	if max == 0 {
		max = v.now().UTC().Year()
	}
	return v.minYear, max
}

// Validate parses the ROI text and checks both years.
func (v *Validator) Validate(roiText string, startYear, endYear int) (models.ROI, error) {
	roi, err := ParseROI(roiText)
	if err != nil {
		return models.ROI{}, err
	}
	if err := v.ValidateYear("start year", startYear); err != nil {
		return models.ROI{}, err
	}
	if err := v.ValidateYear("end year", endYear); err != nil {
		return models.ROI{}, err
	}
	if v.requireOrder && endYear < startYear {
		return models.ROI{}, &YearError{
			Field:  "end year",
			Year:   endYear,
			Reason: fmt.Sprintf("end year %d precedes start year %d", endYear, startYear),
		}
	}
	return roi, nil
}

// ValidateYear checks a single year against the coverage range.
func (v *Validator) ValidateYear(field string, year int) error {
	first, last := v.YearRange()
	if year < first || year > last {
		return &YearError{Field: field, Year: year, Min: first, Max: last}
	}
	return nil
}

// ParseROI decodes a list of [lat, lon] pairs into an ROI. Vertices are kept
// as given, including an optional closing vertex.
func ParseROI(text string) (models.ROI, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.ROI{}, &GeometryError{Kind: KindMalformed, Reason: "coordinate list is empty"}
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return models.ROI{}, &GeometryError{Kind: KindMalformed, Reason: describeSyntaxError(err)}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return models.ROI{}, &GeometryError{Kind: KindMalformed, Reason: "unexpected data after the coordinate list"}
	}

	points, ok := raw.([]any)
	if !ok {
		return models.ROI{}, &GeometryError{Kind: KindMalformed, Reason: "expected a list of [lat, lon] pairs"}
	}

	vertices := make([]models.LatLon, 0, len(points))
	for i, item := range points {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return models.ROI{}, &GeometryError{Kind: KindMalformed, Reason: fmt.Sprintf("point %d is not a [lat, lon] pair", i+1)}
		}
		lat, err := toFloat(pair[0])
		if err != nil {
			return models.ROI{}, &GeometryError{Kind: KindNonNumeric, Reason: fmt.Sprintf("point %d latitude %s", i+1, err)}
		}
		lon, err := toFloat(pair[1])
		if err != nil {
			return models.ROI{}, &GeometryError{Kind: KindNonNumeric, Reason: fmt.Sprintf("point %d longitude %s", i+1, err)}
		}
		if lat < -90 || lat > 90 {
			return models.ROI{}, &GeometryError{Kind: KindOutOfRange, Reason: fmt.Sprintf("point %d latitude %g is outside [-90, 90]", i+1, lat)}
		}
		if lon < -180 || lon > 180 {
			return models.ROI{}, &GeometryError{Kind: KindOutOfRange, Reason: fmt.Sprintf("point %d longitude %g is outside [-180, 180]", i+1, lon)}
		}
		vertices = append(vertices, models.LatLon{Lat: lat, Lon: lon})
	}

	if distinct := countDistinct(vertices); distinct < minDistinctVertices {
		return models.ROI{}, &GeometryError{
			Kind:   KindTooFewPoints,
			Reason: fmt.Sprintf("polygon needs at least %d distinct points, got %d", minDistinctVertices, distinct),
		}
	}

	return models.NewROI(vertices), nil
}

func toFloat(v any) (float64, error) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("is not a number (%s)", describeJSON(v))
	}
	f, err := num.Float64()
	if err != nil {
		return 0, fmt.Errorf("%q is not representable as a number", num.String())
	}
	return f, nil
}

func countDistinct(vertices []models.LatLon) int {
	seen := make(map[models.LatLon]struct{}, len(vertices))
	for _, v := range vertices {
		seen[v] = struct{}{}
	}
	return len(seen)
}

func describeJSON(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("string %q", t)
	case bool:
		return "boolean"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func describeSyntaxError(err error) string {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Sprintf("not a coordinate list: %v at offset %d", syntaxErr, syntaxErr.Offset)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return "coordinate list is incomplete"
	}
	return fmt.Sprintf("not a coordinate list: %v", err)
}

// FormatROI renders an ROI back into the accepted text form.
func FormatROI(roi models.ROI) string {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range roi.Vertices() {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "[%g, %g]", v.Lat, v.Lon)
	}
	buf.WriteByte(']')
	return buf.String()
}
