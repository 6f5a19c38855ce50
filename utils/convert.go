package utils

import (
	"fmt"
	"strconv"

	json "github.com/bytedance/sonic"
)

// AnyToString renders a launch argument value the way it is passed on a
// command line. Maps and slices become JSON.
func AnyToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case fmt.Stringer:
		return s.String()
	case map[string]any, []any, []string, []int:
		return JsonString(s)
	default:
		return fmt.Sprint(s)
	}
}

// JsonString marshals obj, returning "" if it cannot be encoded.
func JsonString(obj any) string {
	b, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return string(b)
}

func JsonIndent(obj any) string {
	b, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}
