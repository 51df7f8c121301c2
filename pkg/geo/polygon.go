package geo

// PointInPolygon reports whether p lies inside the polygon using the ray
// casting rule. Vertices may be open or closed (first == last); points on an
// edge count as inside.
func PointInPolygon(p Point, polygon []Point) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}
	// Drop the closing vertex if the ring is explicitly closed.
	if polygon[0] == polygon[n-1] {
		polygon = polygon[:n-1]
		n--
		if n < 3 {
			return false
		}
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		yi, xi := polygon[i].Latitude, polygon[i].Longitude
		yj, xj := polygon[j].Latitude, polygon[j].Longitude

		intersects := (yi > p.Latitude) != (yj > p.Latitude) &&
			p.Longitude < (xj-xi)*(p.Latitude-yi)/(yj-yi)+xi
		if intersects {
			inside = !inside
		}
		j = i
	}
	return inside
}

// Downsample reduces a route trace to at most maxPoints by uniform stride,
// always keeping the first and last point. Traces at or under the cap are
// returned unchanged.
func Downsample(points []Point, maxPoints int) []Point {
	if maxPoints <= 0 || len(points) <= maxPoints {
		return points
	}
	if maxPoints == 1 {
		return []Point{points[0]}
	}

	result := make([]Point, 0, maxPoints)
	step := float64(len(points)-1) / float64(maxPoints-1)
	for i := 0; i < maxPoints-1; i++ {
		result = append(result, points[int(float64(i)*step)])
	}
	result = append(result, points[len(points)-1])
	return result
}
