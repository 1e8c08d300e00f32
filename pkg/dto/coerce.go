package dto

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// DateTimeLayout is the layout used when a date is rendered as a string.
const DateTimeLayout = "2006-01-02 15:04:05"

// now is replaced in tests.
var now = time.Now

// Coerce converts v to the Go representation of t:
//
//	TypeInt     int64
//	TypeFloat   float64 (always finite)
//	TypeString  string
//	TypeBool    bool
//	TypeObject  map[string]any
//	TypeArray   []any
//	TypeDate    time.Time
//	TypeUntyped v unchanged
//
// Conversion is best effort and never fails, except for TypeDate where an
// unparseable value yields an error wrapping ErrInvalidDate.
func Coerce(t Type, v any) (any, error) {
	switch t {
	case TypeInt:
		return toInt(v), nil
	case TypeFloat:
		return finite(toFloat(v)), nil
	case TypeString:
		return toString(v), nil
	case TypeBool:
		return toBool(v), nil
	case TypeObject:
		return toObject(v), nil
	case TypeArray:
		return toArray(v), nil
	case TypeDate:
		d, err := toDate(v)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return v, nil
	}
}

func toInt(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case json.Number:
		return parseIntPrefix(string(x))
	case []byte:
		return parseIntPrefix(string(x))
	case time.Time:
		return x.Unix()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return parseIntPrefix(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(u)
	case reflect.Float32, reflect.Float64:
		return floatToInt(rv.Float())
	case reflect.Map, reflect.Slice, reflect.Array:
		if rv.Len() > 0 {
			return 1
		}
		return 0
	}

	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0
	}
	return n
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case json.Number:
		return parseFloatPrefix(string(x))
	case []byte:
		return parseFloatPrefix(string(x))
	case time.Time:
		return float64(x.Unix())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return parseFloatPrefix(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Map, reflect.Slice, reflect.Array:
		if rv.Len() > 0 {
			return 1
		}
		return 0
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	return f
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "1"
		}
		return ""
	case float32:
		return formatFloat(float64(x), 32)
	case float64:
		return formatFloat(x, 64)
	case time.Time:
		return x.Format(DateTimeLayout)
	case Model:
		return jsonText(x.ToMap())
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return jsonText(v)
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

func toBool(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case json.Number:
		return parseFloatPrefix(string(x)) != 0
	case []byte:
		return len(x) > 0 && string(x) != "0"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		s := rv.String()
		return s != "" && s != "0"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func toObject(v any) map[string]any {
	switch x := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return cloneMap(x)
	case Model:
		return cloneMap(x.ToMap())
	case []byte:
		return map[string]any{"scalar": string(x)}
	case time.Time:
		return map[string]any{"scalar": x}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if m, err := cast.ToStringMapE(v); err == nil {
			return m
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make(map[string]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[strconv.Itoa(i)] = rv.Index(i).Interface()
		}
		return out
	case reflect.Struct:
		var out map[string]any
		data, err := json.Marshal(v)
		if err == nil && json.Unmarshal(data, &out) == nil && out != nil {
			return out
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return map[string]any{}
		}
		return toObject(rv.Elem().Interface())
	}
	return map[string]any{"scalar": v}
}

func toArray(v any) []any {
	switch x := v.(type) {
	case nil:
		return []any{}
	case []any:
		if x == nil {
			return []any{}
		}
		return slices.Clone(x)
	case []byte:
		return []any{string(x)}
	case *Record:
		return x.Values()
	case Model:
		return valuesByKey(reflect.ValueOf(x.ToMap()))
	case time.Time:
		return []any{x}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		return valuesByKey(rv)
	case reflect.Struct:
		return valuesByKey(reflect.ValueOf(toObject(v)))
	case reflect.Pointer:
		if rv.IsNil() {
			return []any{}
		}
		return toArray(rv.Elem().Interface())
	}
	return []any{v}
}

func toDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		if x != nil {
			return *x, nil
		}
	case string:
		return parseDate(x)
	case []byte:
		return parseDate(string(x))
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return unixDate(f)
		}
		return parseDate(string(x))
	case float32, float64:
		// JSON numbers decode as float64; read them as Unix seconds.
		return unixDate(toFloat(x))
	default:
		if t, err := cast.ToTimeE(v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, v)
}

func unixDate(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, f)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// parseDate accepts the layouts understood by cast.StringToDate plus the
// relative keywords now, today, tomorrow and yesterday. An empty string
// means now.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "now":
		return now(), nil
	case "today":
		return midnight(now(), 0), nil
	case "tomorrow":
		return midnight(now(), 1), nil
	case "yesterday":
		return midnight(now(), -1), nil
	}
	t, err := cast.StringToDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

func midnight(t time.Time, days int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, t.Location())
}

// numericPrefix returns the longest leading decimal number in s, ignoring
// leading whitespace, and whether it has a fraction or exponent part.
func numericPrefix(s string) (string, bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	digits := i - start
	fractional := false
	if i < len(s) && s[i] == '.' {
		j := i + 1
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if j > i+1 {
			digits += j - i - 1
			i = j
			fractional = true
		}
	}
	if digits == 0 {
		return "", false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > j {
			i = k
			fractional = true
		}
	}
	return s[:i], fractional
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func parseIntPrefix(s string) int64 {
	prefix, fractional := numericPrefix(s)
	if prefix == "" {
		return 0
	}
	if fractional {
		return floatToInt(parseFloatPrefix(prefix))
	}
	n, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		if strings.HasPrefix(prefix, "-") {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return n
}

func parseFloatPrefix(s string) float64 {
	prefix, _ := numericPrefix(s)
	if prefix == "" {
		return 0
	}
	// On overflow ParseFloat returns ±Inf with the error; keep the value.
	f, _ := strconv.ParseFloat(prefix, 64)
	return f
}

// finite clamps overflow to the largest float of the same sign and maps NaN
// to 0, so float fields always encode as JSON numbers.
func finite(f float64) float64 {
	switch {
	case math.IsNaN(f):
		return 0
	case math.IsInf(f, 1):
		return math.MaxFloat64
	case math.IsInf(f, -1):
		return -math.MaxFloat64
	}
	return f
}

func floatToInt(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "NAN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case math.Abs(f) >= 1e15:
		return strconv.FormatFloat(f, 'E', -1, bitSize)
	}
	return strconv.FormatFloat(f, 'f', -1, bitSize)
}

func jsonText(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// valuesByKey returns the values of a map ordered by key. Integer keys sort
// numerically, everything else by its textual form.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return maps.Clone(m)
}

func valuesByKey(rv reflect.Value) []any {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		switch a.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return a.Int() < b.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return a.Uint() < b.Uint()
		case reflect.Float32, reflect.Float64:
			return a.Float() < b.Float()
		}
		return fmt.Sprint(a.Interface()) < fmt.Sprint(b.Interface())
	})
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = rv.MapIndex(k).Interface()
	}
	return out
}
