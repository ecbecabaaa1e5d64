package formation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// LoadCSV reads <dir>/<name>/vertices.csv (x,y,z per row) and faces.csv
// (1-based vertex indices per row, padded with 0 or NaN). colours.csv with
// one depth per cell is optional. A lowercase directory name is tried when
// the exact one does not exist.
func LoadCSV(dir, name string) (*Formation, error) {
	base := filepath.Join(dir, name)
	if _, err := os.Stat(base); errors.Is(err, fs.ErrNotExist) {
		base = filepath.Join(dir, strings.ToLower(name))
	}
	if _, err := os.Stat(base); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}

	vertexRows, err := readFloatCSV(filepath.Join(base, "vertices.csv"))
	if err != nil {
		return nil, err
	}
	vertices := make([]models.Location, len(vertexRows))
	for i, row := range vertexRows {
		if len(row) < 2 {
			return nil, fmt.Errorf("vertices.csv row %d has %d columns, need at least 2", i+1, len(row))
		}
		vertices[i] = models.Location{X: row[0], Y: row[1]}
	}

	faceRows, err := readFloatCSV(filepath.Join(base, "faces.csv"))
	if err != nil {
		return nil, err
	}
	faces := make([][]int, len(faceRows))
	for i, row := range faceRows {
		face := make([]int, 0, len(row))
		for _, v := range row {
			if math.IsNaN(v) || v <= 0 {
				continue
			}
			face = append(face, int(v)-1)
		}
		faces[i] = face
	}

	f, err := New(name, vertices, faces)
	if err != nil {
		return nil, err
	}

	depthRows, err := readFloatCSV(filepath.Join(base, "colours.csv"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if len(depthRows) == len(faces) {
			f.Depths = make([]float64, len(depthRows))
			for i, row := range depthRows {
				if len(row) > 0 {
					f.Depths[i] = row[0]
				}
			}
		}
	}
	return f, nil
}

func readFloatCSV(path string) ([][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]float64
	for line := 1; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		row := make([]float64, len(record))
		for i, field := range record {
			field = strings.TrimSpace(field)
			if field == "" || strings.EqualFold(field, "nan") {
				row[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d column %d: %w", path, line, i+1, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
