package discovery

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Signature returns a structural fingerprint of a route polyline built from its
// first point, the point at index n/2, its last point (each at 4 decimal places,
// about 11 m) and its point count:
//
//	"{firstLon},{firstLat}|{midLon},{midLat}|{lastLon},{lastLat}|{n}"
//
// It is a heuristic dedup key, not geometric equality. Two different routes that
// share those three points and the vertex count collide, and two practically
// identical routes that differ by a single vertex do not. An empty line yields "".
func Signature(ls orb.LineString) string {
	n := len(ls)
	if n == 0 {
		return ""
	}

	first, mid, last := ls[0], ls[n/2], ls[n-1]
	return fmt.Sprintf("%.4f,%.4f|%.4f,%.4f|%.4f,%.4f|%d",
		first.Lon(), first.Lat(),
		mid.Lon(), mid.Lat(),
		last.Lon(), last.Lat(),
		n,
	)
}
