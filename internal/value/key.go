package value

import (
	"math"
	"reflect"
)

// Key returns the map key used to bucket v in a count view.
//
// Comparable values key by equality and are returned unchanged. Values that
// cannot be compared (slices, maps, structs holding them) key by their
// canonical JSON text, so two such values with identical canonical text
// share a bucket even when their Go types differ. NaN keys by its sentinel
// text because it never compares equal to itself.
func Key(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return CanonicalString(v)
	}
	if f, ok := v.(float32); ok && math.IsNaN(float64(f)) {
		return CanonicalString(v)
	}
	if rv.Comparable() {
		return v
	}
	return CanonicalString(v)
}
