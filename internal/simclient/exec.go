package simclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strings"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// kilograms per megatonne
const kgPerMt = 1e9

// exitInvalidLocation is the exit status the simulator uses for out-of-domain wells
const exitInvalidLocation = 3

// ExecClient runs an external simulator process per invocation.
// The request is written to stdin as JSON and the result read from stdout.
type ExecClient struct {
	Command string
	Args    []string
	Dir     string
}

// NewExecClient creates an ExecClient for command
func NewExecClient(command string, args ...string) *ExecClient {
	return &ExecClient{Command: command, Args: args}
}

type execRequest struct {
	Location   models.Location             `json:"location"`
	Parameters models.SimulationParameters `json:"parameters"`
}

type execResponse struct {
	Masses [][]float64 `json:"masses"` // kg, one row per trapping category
	Time   []float64   `json:"time"`   // seconds
}

// Invoke runs the simulator for loc
func (c *ExecClient) Invoke(ctx context.Context, loc models.Location, params models.SimulationParameters) (*models.SimulationResult, error) {
	payload, err := json.Marshal(execRequest{Location: loc, Parameters: params})
	if err != nil {
		return nil, fmt.Errorf("failed to encode simulator request: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == exitInvalidLocation {
			return nil, InvalidLocation(loc, firstLine(stderr.String(), "rejected by simulator"))
		}
		return nil, EngineFailure(loc, fmt.Errorf("simulator exited: %w: %s", err, firstLine(stderr.String(), "")))
	}

	return decodeResponse(loc, stdout.Bytes())
}

func decodeResponse(loc models.Location, data []byte) (*models.SimulationResult, error) {
	var resp execResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, EngineFailure(loc, fmt.Errorf("bad simulator output: %w", err))
	}
	if len(resp.Masses) != models.CategoryCount {
		return nil, EngineFailure(loc, fmt.Errorf("simulator returned %d mass rows, expected %d", len(resp.Masses), models.CategoryCount))
	}

	res := &models.SimulationResult{Location: loc, Time: resp.Time}
	for c, row := range resp.Masses {
		mt := make([]float64, len(row))
		for i, kg := range row {
			mt[i] = math.Round(kg / kgPerMt)
		}
		res.Masses[c] = mt
	}
	if err := res.Validate(); err != nil {
		return nil, EngineFailure(loc, err)
	}
	return res, nil
}

func firstLine(s, fallback string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if line == "" {
		return fallback
	}
	return line
}
