// Package triangulate splits polygonal mesh faces into triangles.
//
// Faces use the Speckle encoding: a cardinality marker followed by that
// many vertex indices. Markers below 3 are the legacy encoding where 0 means
// a triangle and 1 a quad.
package triangulate

import (
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// epsilon is the tolerance of the point-in-triangle side tests.
const epsilon = 2.220446049250313e-16

// Cardinality decodes a face marker into a vertex count.
func Cardinality(marker int) int {
	if marker < 3 {
		return marker + 3
	}
	return marker
}

// Faces triangulates every face in the list and returns the flat index
// list.
func Faces(faces []int, vertices []float64) ([]uint32, error) {
	indices := make([]uint32, 0, len(faces))
	for k := 0; k < len(faces); {
		n := Cardinality(faces[k])
		if n < 3 {
			return nil, fmt.Errorf("face at %d has invalid marker %d", k, faces[k])
		}
		if k+n >= len(faces) {
			return nil, fmt.Errorf("face at %d declares %d vertices but only %d values remain", k, n, len(faces)-k-1)
		}
		tris, err := Face(k, faces, vertices)
		if err != nil {
			return nil, err
		}
		indices = append(indices, tris...)
		k += n + 1
	}
	return indices, nil
}

// Face triangulates the face whose marker sits at faces[faceIndex] and
// returns n-2 triangles as vertex indices.
func Face(faceIndex int, faces []int, vertices []float64) ([]uint32, error) {
	if faceIndex < 0 || faceIndex >= len(faces) {
		return nil, fmt.Errorf("face index %d out of range", faceIndex)
	}
	n := Cardinality(faces[faceIndex])
	if n < 3 {
		return nil, fmt.Errorf("face at %d has invalid marker %d", faceIndex, faces[faceIndex])
	}
	if faceIndex+n >= len(faces) {
		return nil, fmt.Errorf("face at %d is truncated", faceIndex)
	}
	loop := faces[faceIndex+1 : faceIndex+1+n]
	vertexCount := len(vertices) / 3
	for _, idx := range loop {
		if idx < 0 || idx >= vertexCount {
			return nil, fmt.Errorf("face at %d references vertex %d of %d", faceIndex, idx, vertexCount)
		}
	}

	if n == 3 {
		return []uint32{uint32(loop[0]), uint32(loop[1]), uint32(loop[2])}, nil
	}

	pts := make([]v3.Vec, n)
	for i, idx := range loop {
		pts[i] = v3.Vec{X: vertices[idx*3], Y: vertices[idx*3+1], Z: vertices[idx*3+2]}
	}
	out := make([]uint32, 0, (n-2)*3)
	for _, c := range EarClip(pts) {
		out = append(out, uint32(loop[c[0]]), uint32(loop[c[1]]), uint32(loop[c[2]]))
	}
	return out, nil
}

// NewellNormal returns the unit normal of a closed loop computed with
// Newell's method, oriented so the loop winds counter-clockwise around it.
// The zero vector is returned for degenerate loops.
func NewellNormal(pts []v3.Vec) v3.Vec {
	var nrm v3.Vec
	for i := range pts {
		a := pts[i]
		b := pts[(i+1)%len(pts)]
		nrm.X += (a.Y - b.Y) * (a.Z + b.Z)
		nrm.Y += (a.Z - b.Z) * (a.X + b.X)
		nrm.Z += (a.X - b.X) * (a.Y + b.Y)
	}
	l := nrm.Length()
	if l == 0 || math.IsNaN(l) {
		return v3.Vec{}
	}
	return nrm.MulScalar(1 / l)
}

// EarClip triangulates a polygon given as an ordered loop and returns
// triangles as positions into pts. A loop of n >= 3 points always yields
// n-2 triangles; when no ear can be found on degenerate input the current
// vertex is clipped regardless.
func EarClip(pts []v3.Vec) [][3]int {
	n := len(pts)
	if n < 3 {
		return nil
	}
	tris := make([][3]int, 0, n-2)
	normal := NewellNormal(pts)

	prev := make([]int, n)
	next := make([]int, n)
	for i := 0; i < n; i++ {
		prev[i] = i - 1
		next[i] = i + 1
	}
	prev[0] = n - 1
	next[n-1] = 0

	cur := 0
	misses := 0
	for n > 3 {
		p, c, x := prev[cur], cur, next[cur]
		if misses > n || isEar(pts, prev, next, p, c, x, normal) {
			tris = append(tris, [3]int{p, c, x})
			next[p] = x
			prev[x] = p
			n--
			misses = 0
			cur = p
			continue
		}
		misses++
		cur = next[cur]
	}
	return append(tris, [3]int{prev[cur], cur, next[cur]})
}

func isEar(pts []v3.Vec, prev, next []int, p, c, x int, normal v3.Vec) bool {
	a, b, d := pts[p], pts[c], pts[x]
	if !ccw(a, b, d, normal) {
		return false
	}
	for k := next[x]; k != p; k = next[k] {
		q := pts[k]
		if samePoint(q, a) || samePoint(q, b) || samePoint(q, d) {
			continue
		}
		if inTriangle(q, a, b, d, normal) {
			return false
		}
	}
	return true
}

// ccw reports whether a, b, c wind counter-clockwise around normal.
func ccw(a, b, c, normal v3.Vec) bool {
	return b.Sub(a).Cross(c.Sub(b)).Dot(normal) > 0
}

func side(p, a, b, normal v3.Vec) float64 {
	return b.Sub(a).Cross(p.Sub(a)).Dot(normal)
}

func inTriangle(p, a, b, c, normal v3.Vec) bool {
	return side(p, a, b, normal) >= -epsilon &&
		side(p, b, c, normal) >= -epsilon &&
		side(p, c, a, normal) >= -epsilon
}

func samePoint(a, b v3.Vec) bool {
	d := a.Sub(b)
	return d.Dot(d) <= epsilon
}
