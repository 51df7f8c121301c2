package geo

import (
	"github.com/uber/h3-go/v4"
)

// H3 resolution levels. See: https://h3geo.org/docs/core-library/restable
const (
	// H3ResolutionMatching is used for the driver broadcast prefilter
	// (~175m edge, ~0.11 km²).
	H3ResolutionMatching = 9

	// H3KRingMatching is the k-ring radius for the broadcast prefilter.
	// At resolution 9, k=4 covers roughly a 1.4 km radius.
	H3KRingMatching = 4
)

// LatLngToCell converts latitude/longitude to an H3 cell index at the given
// resolution. Returns the zero cell on invalid input.
func LatLngToCell(lat, lng float64, resolution int) h3.Cell {
	latLng := h3.NewLatLng(lat, lng)
	cell, err := h3.LatLngToCell(latLng, resolution)
	if err != nil {
		return 0
	}
	return cell
}

// GetKRingCellStrings returns the k-ring cells around a coordinate as hex
// strings for Redis key usage.
func GetKRingCellStrings(lat, lng float64, resolution, k int) []string {
	origin := LatLngToCell(lat, lng, resolution)
	cells, err := origin.GridDisk(k)
	if err != nil {
		cells = []h3.Cell{origin}
	}
	result := make([]string, len(cells))
	for i, cell := range cells {
		result[i] = cell.String()
	}
	return result
}

// GetMatchingCell returns the H3 cell index (as string) used to shard trip
// broadcasts by pickup location.
func GetMatchingCell(lat, lng float64) string {
	return LatLngToCell(lat, lng, H3ResolutionMatching).String()
}
