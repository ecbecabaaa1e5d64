// Package formation holds formation meshes: the planar cells a well can be placed in.
package formation

import (
	"errors"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/utils"
)

// ErrNotFound is returned when a formation is unknown to a Source
var ErrNotFound = errors.New("formation not found")

// Formation is a 2D mesh of polygonal cells.
// Vertices are in the formation's planar projection; depth is dropped on load.
type Formation struct {
	Name     string
	Vertices []models.Location
	// Faces lists each cell's vertex indices (0-based) in boundary order
	Faces [][]int
	// Depths is the optional per-cell depth used for coloring
	Depths []float64

	boxes []box
}

type box struct {
	minX, minY, maxX, maxY float64
}

func (b box) contains(loc models.Location) bool {
	return loc.X >= b.minX && loc.X <= b.maxX && loc.Y >= b.minY && loc.Y <= b.maxY
}

// New builds a formation and checks every face index
func New(name string, vertices []models.Location, faces [][]int) (*Formation, error) {
	if name == "" {
		return nil, errors.New("formation name is required")
	}
	if len(faces) == 0 {
		return nil, fmt.Errorf("formation %s has no cells", name)
	}
	f := &Formation{Name: name, Vertices: vertices, Faces: faces, boxes: make([]box, len(faces))}
	for i, face := range faces {
		if len(face) < 3 {
			return nil, fmt.Errorf("formation %s: cell %d has %d vertices, need at least 3", name, i, len(face))
		}
		b := box{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
		for _, vi := range face {
			if vi < 0 || vi >= len(vertices) {
				return nil, fmt.Errorf("formation %s: cell %d references vertex %d of %d", name, i, vi, len(vertices))
			}
			v := vertices[vi]
			b.minX, b.maxX = math.Min(b.minX, v.X), math.Max(b.maxX, v.X)
			b.minY, b.maxY = math.Min(b.minY, v.Y), math.Max(b.maxY, v.Y)
		}
		f.boxes[i] = b
	}
	return f, nil
}

// CellCount returns the number of cells
func (f *Formation) CellCount() int {
	return len(f.Faces)
}

// Centroids returns the vertex mean of every cell, in cell order
func (f *Formation) Centroids() []models.Location {
	out := make([]models.Location, len(f.Faces))
	for i, face := range f.Faces {
		var sx, sy float64
		for _, vi := range face {
			sx += f.Vertices[vi].X
			sy += f.Vertices[vi].Y
		}
		n := float64(len(face))
		out[i] = models.Location{X: sx / n, Y: sy / n}
	}
	return out
}

// Contains reports whether loc lies inside any cell
func (f *Formation) Contains(loc models.Location) bool {
	for i, b := range f.boxes {
		if !b.contains(loc) {
			continue
		}
		if pointInPolygon(loc, f.Vertices, f.Faces[i]) {
			return true
		}
	}
	return false
}

// Bounds returns the bounding box of the whole mesh
func (f *Formation) Bounds() (min, max models.Location) {
	min = models.Location{X: math.Inf(1), Y: math.Inf(1)}
	max = models.Location{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, b := range f.boxes {
		min.X, min.Y = math.Min(min.X, b.minX), math.Min(min.Y, b.minY)
		max.X, max.Y = math.Max(max.X, b.maxX), math.Max(max.Y, b.maxY)
	}
	return min, max
}

// pointInPolygon is the even-odd ray casting test. Points on an edge count as inside.
func pointInPolygon(p models.Location, vertices []models.Location, face []int) bool {
	inside := false
	n := len(face)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := vertices[face[i]], vertices[face[j]]
		if onSegment(p, a, b) {
			return true
		}
		if (a.Y > p.Y) != (b.Y > p.Y) {
			xCross := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if p.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(p, a, b models.Location) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if math.Abs(cross) > 1e-9*math.Max(1, math.Abs(b.X-a.X)+math.Abs(b.Y-a.Y)) {
		return false
	}
	return p.X >= math.Min(a.X, b.X) && p.X <= math.Max(a.X, b.X) &&
		p.Y >= math.Min(a.Y, b.Y) && p.Y <= math.Max(a.Y, b.Y)
}

// SampleCentroids draws k distinct cell centroids without replacement
func SampleCentroids(f *Formation, k int, rng *utils.RandSource) []models.Location {
	centroids := f.Centroids()
	idx := rng.Sample(len(centroids), k)
	out := make([]models.Location, len(idx))
	for i, ci := range idx {
		out[i] = centroids[ci]
	}
	return out
}
