package config

// Generation defaults and bounds.
const (
	DefaultModelName          = "gemini-2.5-flash"
	DefaultTemperature float32 = 0.7
	DefaultMaxTokens   int32   = 1000

	MinTemperature float32 = 0.0
	MaxTemperature float32 = 1.0
	MinMaxTokens   int32   = 100
	MaxMaxTokens   int32   = 4000
)

// Model describes a selectable remote model and what it can accept.
type Model struct {
	Name   string `json:"name"`
	Vision bool   `json:"vision"`
}

// Models is the catalog offered to the user, in display order.
var Models = []Model{
	{Name: "gemini-pro", Vision: false},
	{Name: "gemini-pro-vision", Vision: true},
	{Name: "gemini-2.5-flash", Vision: true},
}

// LookupModel finds a catalog entry by name.
func LookupModel(name string) (Model, bool) {
	for _, m := range Models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

// ClampTemperature bounds t to [MinTemperature, MaxTemperature].
func ClampTemperature(t float32) float32 {
	switch {
	case t < MinTemperature:
		return MinTemperature
	case t > MaxTemperature:
		return MaxTemperature
	}
	return t
}

// ClampMaxTokens bounds n to [MinMaxTokens, MaxMaxTokens]. It compares in
// n's own type, so wide values clamp before the narrowing conversion.
func ClampMaxTokens[T ~int | ~int32 | ~int64](n T) int32 {
	switch {
	case n < T(MinMaxTokens):
		return MinMaxTokens
	case n > T(MaxMaxTokens):
		return MaxMaxTokens
	}
	return int32(n)
}
