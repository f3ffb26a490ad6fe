package validation

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// Amount is a form number that accepts either a JSON number or a numeric
// string. Blank input decodes as 0; anything unparseable decodes as -1 so
// range checks reject it.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" {
		*a = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		*a = -1
		return nil
	}
	*a = Amount(f)
	return nil
}

func (a Amount) Float() float64 { return float64(a) }
