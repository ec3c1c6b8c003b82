package regulator

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/OFFIS-RIT/leech/pkg/schema"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
)

// DateTimeLayout is the form DateTime properties are stored in.
const DateTimeLayout = "2006-01-02T15:04:05-0700"

// standardizeValue coerces a raw value to the property's declared type.
// Empty values become nil.
func standardizeValue(p schema.PropertyEntry, v any) (any, error) {
	if isEmpty(v) {
		return nil, nil
	}
	switch p.DataType {
	case schema.TypeNumber:
		return toDecimal(v)
	case schema.TypeString:
		return toString(v), nil
	case schema.TypeDateTime:
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return t.Format(DateTimeLayout), nil
	}
	return nil, fmt.Errorf("%w: %q for property %s", ErrUnsupportedDataType, p.DataType, p.Name)
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case json.Number:
		return parseDecimal(val.String())
	case string:
		return parseDecimal(val)
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int32:
		return decimal.NewFromInt32(val), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case uint32:
		return decimal.NewFromInt(int64(val)), nil
	case uint64:
		return decimal.NewFromString(strconv.FormatUint(val, 10))
	case float32:
		return decimal.NewFromFloat32(val), nil
	case float64:
		return decimal.NewFromFloat(val), nil
	case bool:
		if val {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	case time.Time:
		return epoch(val), nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: cannot read %T as a number", ErrInvalidPropertyValue, v)
}

// parseDecimal also accepts a timestamp, which is converted to epoch seconds.
func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if d, err := decimal.NewFromString(s); err == nil {
		return d, nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not a number", ErrInvalidPropertyValue, s)
	}
	return epoch(t), nil
}

func epoch(t time.Time) decimal.Decimal {
	return decimal.New(t.UnixNano(), -9)
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case decimal.Decimal:
		return val.String()
	case time.Time:
		return val.Format(DateTimeLayout)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}

// toTime reads a timestamp. Strings without a zone are taken as UTC and
// numbers as epoch seconds.
func toTime(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case string:
		t, err := dateparse.ParseIn(strings.TrimSpace(val), time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q is not a date: %v", ErrInvalidPropertyValue, val, err)
		}
		return t, nil
	}

	d, err := toDecimal(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cannot read %T as a date", ErrInvalidPropertyValue, v)
	}
	seconds := d.IntPart()
	nanos := d.Sub(decimal.NewFromInt(seconds)).Shift(9).IntPart()
	return time.Unix(seconds, nanos).UTC(), nil
}
