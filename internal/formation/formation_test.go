package formation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/utils"
)

// twoSquares is a 2x1 mesh of 10 m squares: [0,10]x[0,10] and [10,20]x[0,10]
func twoSquares(t *testing.T) *Formation {
	t.Helper()
	vertices := []models.Location{
		{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 20, Y: 0},
		{X: 0, Y: 10}, {X: 10, Y: 10}, {X: 20, Y: 10},
	}
	faces := [][]int{{0, 1, 4, 3}, {1, 2, 5, 4}}
	f, err := New("Test", vertices, faces)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return f
}

func TestCentroids(t *testing.T) {
	f := twoSquares(t)
	got := f.Centroids()
	want := []models.Location{{X: 5, Y: 5}, {X: 15, Y: 5}}
	if len(got) != len(want) {
		t.Fatalf("expected %d centroids, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("centroid %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestContains(t *testing.T) {
	f := twoSquares(t)

	tests := []struct {
		loc  models.Location
		want bool
	}{
		{models.Location{X: 5, Y: 5}, true},
		{models.Location{X: 19.9, Y: 0.1}, true},
		{models.Location{X: 10, Y: 5}, true},
		{models.Location{X: 0, Y: 0}, true},
		{models.Location{X: 21, Y: 5}, false},
		{models.Location{X: 5, Y: -0.01}, false},
		{models.Location{X: -2000, Y: 5}, false},
	}
	for _, tt := range tests {
		if got := f.Contains(tt.loc); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.loc, got, tt.want)
		}
	}

	min, max := f.Bounds()
	if min != (models.Location{}) || max != (models.Location{X: 20, Y: 10}) {
		t.Errorf("unexpected bounds %v %v", min, max)
	}
}

func TestNewRejectsBadFaces(t *testing.T) {
	vertices := []models.Location{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}
	if _, err := New("bad", vertices, [][]int{{0, 1, 7}}); err == nil {
		t.Fatalf("expected out-of-range vertex error")
	}
	if _, err := New("bad", vertices, [][]int{{0, 1}}); err == nil {
		t.Fatalf("expected degenerate cell error")
	}
	if _, err := New("bad", vertices, nil); err == nil {
		t.Fatalf("expected empty mesh error")
	}
}

func TestSampleCentroidsWithoutReplacement(t *testing.T) {
	vertices := make([]models.Location, 0)
	faces := make([][]int, 0)
	for i := 0; i < 12; i++ {
		x := float64(i) * 10
		base := len(vertices)
		vertices = append(vertices, models.Location{X: x, Y: 0}, models.Location{X: x + 10, Y: 0}, models.Location{X: x, Y: 10})
		faces = append(faces, []int{base, base + 1, base + 2})
	}
	f, err := New("strip", vertices, faces)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rng := utils.NewRandSource(4)
	got := SampleCentroids(f, 5, rng)
	if len(got) != 5 {
		t.Fatalf("expected 5 centroids, got %d", len(got))
	}
	seen := make(map[models.Location]bool)
	for _, c := range got {
		if seen[c] {
			t.Fatalf("centroid %v sampled twice", c)
		}
		seen[c] = true
		if !f.Contains(c) {
			t.Fatalf("centroid %v outside formation", c)
		}
	}

	if all := SampleCentroids(f, 50, rng); len(all) != 12 {
		t.Fatalf("expected sampling to clamp at 12 cells, got %d", len(all))
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stofm", "vertices.csv"),
		"0.0e+00,0.0e+00,1.2e+03\n1.0e+01,0.0e+00,1.2e+03\n1.0e+01,1.0e+01,1.1e+03\n0.0e+00,1.0e+01,1.1e+03\n2.0e+01,5.0e+00,1.0e+03\n")
	writeFile(t, filepath.Join(dir, "stofm", "faces.csv"),
		"1,2,3,4\n2,5,3,nan\n")
	writeFile(t, filepath.Join(dir, "stofm", "colours.csv"), "1200\n1100\n")

	f, err := LoadCSV(dir, "Stofm")
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	if f.Name != "Stofm" {
		t.Fatalf("expected name Stofm, got %q", f.Name)
	}
	if f.CellCount() != 2 {
		t.Fatalf("expected 2 cells, got %d", f.CellCount())
	}
	if len(f.Faces[1]) != 3 || f.Faces[1][1] != 4 {
		t.Fatalf("expected padded face to be trimmed and 0-based, got %v", f.Faces[1])
	}
	if len(f.Depths) != 2 || f.Depths[1] != 1100 {
		t.Fatalf("unexpected depths %v", f.Depths)
	}
	if !f.Contains(models.Location{X: 12, Y: 5}) {
		t.Fatalf("expected triangle cell to contain (12, 5)")
	}
}

func TestLoadCSVErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadCSV(dir, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	writeFile(t, filepath.Join(dir, "broken", "vertices.csv"), "0,0,0\nx,1,0\n")
	writeFile(t, filepath.Join(dir, "broken", "faces.csv"), "1,2,3\n")
	if _, err := LoadCSV(dir, "broken"); err == nil {
		t.Fatalf("expected parse error")
	}
}

type countingSource struct {
	calls int
	f     *Formation
}

func (s *countingSource) Load(_ context.Context, name string) (*Formation, error) {
	s.calls++
	if name != s.f.Name {
		return nil, ErrNotFound
	}
	return s.f, nil
}

func TestRegistryMemoizes(t *testing.T) {
	src := &countingSource{f: twoSquares(t)}
	reg := NewRegistry(src)

	for i := 0; i < 3; i++ {
		if _, err := reg.Get(context.Background(), "Test"); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected 1 load, got %d", src.calls)
	}
	if _, err := reg.Get(context.Background(), "Other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
