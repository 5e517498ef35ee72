package grading

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// FallbackLetterGrade is returned when a configured scale has no band
// containing the percentage (gaps are legal); failing safe to "F" beats
// failing loud in a report column.
const FallbackLetterGrade = "F"

// ScaleBand is one label -> [min, max] percentage band (inclusive both
// ends) of a grading scale.
type ScaleBand struct {
	Label string       `json:"label"`
	Min   float64      `json:"min"`
	Max   float64      `json:"max"`
	GPA   null.Float64 `json:"gpa,omitempty"`
}

// ScaleConfig is the ordered band list of a grading scale. On the wire
// and in the database it is a JSON object of label -> {min, max, gpa?};
// the insertion order of that object is significant (first matching band
// wins) and survives both directions.
type ScaleConfig []ScaleBand

func (sc ScaleConfig) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, band := range sc {
		if i > 0 {
			buf.WriteByte(',')
		}
		label, err := json.Marshal(band.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(label)
		buf.WriteByte(':')
		val := struct {
			Min float64  `json:"min"`
			Max float64  `json:"max"`
			GPA *float64 `json:"gpa,omitempty"`
		}{Min: band.Min, Max: band.Max, GPA: band.GPA.Ptr()}
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (sc *ScaleConfig) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "decoding scale config")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("scale config must be a JSON object")
	}

	var bands ScaleConfig
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "decoding scale config label")
		}
		label, ok := keyTok.(string)
		if !ok {
			return errors.New("scale config label must be a string")
		}

		var val struct {
			Min float64  `json:"min"`
			Max float64  `json:"max"`
			GPA *float64 `json:"gpa"`
		}
		if err := dec.Decode(&val); err != nil {
			return errors.Wrapf(err, "decoding scale config band %q", label)
		}

		band := ScaleBand{Label: label, Min: val.Min, Max: val.Max}
		if val.GPA != nil {
			band.GPA = null.Float64From(*val.GPA)
		}
		bands = append(bands, band)
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return errors.Wrap(err, "decoding scale config")
	}

	*sc = bands
	return nil
}

// Value implements driver.Valuer for the jsonb scale_config column.
func (sc ScaleConfig) Value() (driver.Value, error) {
	return json.Marshal(sc)
}

// Scan implements sql.Scanner for the jsonb scale_config column.
func (sc *ScaleConfig) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*sc = nil
		return nil
	case []byte:
		return json.Unmarshal(v, sc)
	case string:
		return json.Unmarshal([]byte(v), sc)
	default:
		return errors.Errorf("cannot scan %T into ScaleConfig", src)
	}
}

// LetterGrade maps a percentage to a letter grade.
//
// With no scale the fixed default applies: >=90 A, >=80 B, >=70 C,
// >=60 D, else F (inclusive lower bounds). With a scale, bands are tried
// in their stored order and the first one containing pct wins; no match
// falls back to "F".
func LetterGrade(pct float64, scale *GradingScale) string {
	if scale == nil {
		return DefaultLetterGrade(pct)
	}
	for _, band := range scale.Config {
		if pct >= band.Min && pct <= band.Max {
			return band.Label
		}
	}
	return FallbackLetterGrade
}

// DefaultLetterGrade is the fixed fallback scale applied when a school
// has no configured scale.
func DefaultLetterGrade(pct float64) string {
	switch {
	case pct >= 90:
		return "A"
	case pct >= 80:
		return "B"
	case pct >= 70:
		return "C"
	case pct >= 60:
		return "D"
	default:
		return "F"
	}
}
