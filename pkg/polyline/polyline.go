// Package polyline provides encoding and decoding utilities for Google's polyline algorithm.
// The polyline algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// DefaultPrecision is the standard Google/ORS/Mapbox "polyline" precision (5 decimal places).
// Mapbox "polyline6" uses 6.
const DefaultPrecision = 5

// ErrMalformed indicates the encoded string ends in the middle of a value.
var ErrMalformed = errors.New("malformed polyline")

// Decode decodes a polyline-encoded string into an orb.LineString of (lon, lat) points.
// Precision values <= 0 use DefaultPrecision.
func Decode(encoded string, precision int) (orb.LineString, error) {
	if encoded == "" {
		return nil, nil
	}
	factor := math.Pow10(normalize(precision))

	var ls orb.LineString
	index := 0
	lat := 0
	lon := 0

	for index < len(encoded) {
		latDelta, newIndex, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = newIndex
		lat += latDelta

		lonDelta, newIndex, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = newIndex
		lon += lonDelta

		ls = append(ls, orb.Point{float64(lon) / factor, float64(lat) / factor})
	}

	return ls, nil
}

// decodeValue decodes a single value from the polyline at the given index.
// Returns the decoded delta value and the new index position.
func decodeValue(encoded string, index int) (int, int, error) {
	shift := 0
	result := 0

	for {
		if index >= len(encoded) {
			return 0, index, fmt.Errorf("%w: truncated value at offset %d", ErrMalformed, index)
		}
		b := int(encoded[index]) - 63
		if b < 0 || b > 0x3f {
			return 0, index, fmt.Errorf("%w: invalid character %q at offset %d", ErrMalformed, encoded[index], index)
		}
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	// Apply two's complement for negative values
	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode encodes a line string into a polyline-encoded string.
// Precision values <= 0 use DefaultPrecision.
func Encode(ls orb.LineString, precision int) string {
	if len(ls) == 0 {
		return ""
	}
	factor := math.Pow10(normalize(precision))

	encoded := make([]byte, 0, len(ls)*4)
	prevLat := 0
	prevLon := 0

	for _, p := range ls {
		lat := int(math.Round(p.Lat() * factor))
		lon := int(math.Round(p.Lon() * factor))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lon-prevLon)

		prevLat = lat
		prevLon = lon
	}

	return string(encoded)
}

// encodeValue encodes a single integer value using the polyline algorithm.
func encodeValue(buf []byte, value int) []byte {
	// Invert if negative
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	// Encode in 5-bit chunks
	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	buf = append(buf, byte(value)+63)

	return buf
}

func normalize(precision int) int {
	if precision <= 0 {
		return DefaultPrecision
	}
	return precision
}
