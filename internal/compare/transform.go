package compare

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sells-group/market-validator/internal/model"
)

var localizedReplacer = strings.NewReplacer(
	",", "",
	" ", "",
	"\u00a0", "",
	"₩", "",
	"$", "",
	"€", "",
	"¥", "",
	"£", "",
	"원", "",
	"KRW", "",
	"USD", "",
)

var transforms = map[model.Transform]func(string) float64{
	model.TransformLocalizedNumber: func(s string) float64 {
		return parseFloat(localizedReplacer.Replace(s))
	},
	model.TransformPercent: func(s string) float64 {
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, "%")
		return parseFloat(strings.ReplaceAll(s, ",", ""))
	},
	model.TransformPlainFloat: parseFloat,
}

// KnownTransform reports whether t is one of the supported transforms.
func KnownTransform(t model.Transform) bool {
	_, ok := transforms[t]
	return ok
}

// Apply converts a raw fetched value into a number. Numeric inputs pass through
// unchanged; strings go through the named transform. Anything unparsable is 0.
func Apply(t model.Transform, raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		fn, ok := transforms[t]
		if !ok {
			fn = parseFloat
		}
		return fn(v)
	default:
		return 0
	}
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
