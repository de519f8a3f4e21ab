package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// Float is a number field that also accepts a numeric string. Set is false
// when the field is absent, null or an empty string.
type Float struct {
	Value float64
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(data []byte) error {
	v, ok, err := parseNumber(data)
	if err != nil {
		return err
	}
	*f = Float{Value: v, Set: ok}
	return nil
}

// Ptr returns the value, or nil when unset.
func (f Float) Ptr() *float64 {
	if !f.Set {
		return nil
	}
	v := f.Value
	return &v
}

// Int is an integer field that also accepts an integral float such as 2.0
// and a numeric string such as "2". Fractional values are rejected.
type Int struct {
	Value int
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *Int) UnmarshalJSON(data []byte) error {
	v, ok, err := parseNumber(data)
	if err != nil {
		return err
	}
	if !ok {
		*i = Int{}
		return nil
	}
	if v != math.Trunc(v) || math.Abs(v) > maxExactInt {
		return fmt.Errorf("%s is not an integer", data)
	}
	*i = Int{Value: int(v), Set: true}
	return nil
}

// Ptr returns the value, or nil when unset.
func (i Int) Ptr() *int {
	if !i.Set {
		return nil
	}
	v := i.Value
	return &v
}

func parseNumber(data []byte) (float64, bool, error) {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return 0, false, nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return 0, false, err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return 0, false, nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%s is not a number", data)
	}
	return v, true, nil
}
