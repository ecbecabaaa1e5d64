package search

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/utils"
)

// Gradient holds one flattened gradient per trainable parameter
type Gradient [][]float64

// Decision is a sampled action together with what training needs from it
type Decision struct {
	Action Action
	Probs  []float64
	// Grad is the gradient of -log p(Action | obs)
	Grad Gradient
}

// Policy maps an observation to a distribution over moves and samples from it
type Policy interface {
	Act(obs []float64, rng *utils.RandSource) (Decision, error)
	// Update applies one optimizer step along the weighted mean of grads.
	// Gradients of -log p are minimized, so positive weights make the
	// corresponding actions more likely.
	Update(grads []Gradient, weights []float64) error
}

// PolicyFactory builds a policy once the observation size is known
type PolicyFactory func(inputDim int) (Policy, error)

// logEpsilon keeps log(p) finite when a probability underflows
const logEpsilon = 1e-7

// PolicyModel is a tanh MLP with a softmax head over the four moves, trained with Adam.
type PolicyModel struct {
	mu sync.Mutex

	inputDim int
	hidden   []int

	g          *gorgonia.ExprGraph
	obs        *gorgonia.Node
	mask       *gorgonia.Node
	probs      *gorgonia.Node
	learnables gorgonia.Nodes
	vm         gorgonia.VM
	solver     gorgonia.Solver
}

// NewPolicyModel builds the network inputDim -> hidden... -> 4
func NewPolicyModel(inputDim int, hidden []int, learningRate float64) (*PolicyModel, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("input dimension must be positive, got %d", inputDim)
	}
	if learningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", learningRate)
	}

	g := gorgonia.NewGraph()
	obs := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(1, inputDim), gorgonia.WithName("obs"))
	mask := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(1, ActionCount), gorgonia.WithName("action_mask"))

	var learnables gorgonia.Nodes
	layer := obs
	in := inputDim
	widths := append(append([]int(nil), hidden...), ActionCount)
	for i, out := range widths {
		w := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(in, out),
			gorgonia.WithName(fmt.Sprintf("w%d", i)), gorgonia.WithInit(gorgonia.GlorotU(1.0)))
		b := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(1, out),
			gorgonia.WithName(fmt.Sprintf("b%d", i)), gorgonia.WithInit(gorgonia.Zeroes()))
		learnables = append(learnables, w, b)

		pre, err := gorgonia.Mul(layer, w)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if pre, err = gorgonia.Add(pre, b); err != nil {
			return nil, fmt.Errorf("layer %d bias: %w", i, err)
		}
		if i == len(widths)-1 {
			layer = pre
			break
		}
		if layer, err = gorgonia.Tanh(pre); err != nil {
			return nil, fmt.Errorf("layer %d activation: %w", i, err)
		}
		in = out
	}

	probs, err := gorgonia.SoftMax(layer)
	if err != nil {
		return nil, fmt.Errorf("softmax: %w", err)
	}

	// cost = -sum(mask * log(probs + eps)) = -log p(action)
	logp := gorgonia.Must(gorgonia.Log(gorgonia.Must(gorgonia.Add(probs, gorgonia.NewConstant(logEpsilon)))))
	picked := gorgonia.Must(gorgonia.HadamardProd(logp, mask))
	cost := gorgonia.Must(gorgonia.Neg(gorgonia.Must(gorgonia.Sum(picked))))

	if _, err := gorgonia.Grad(cost, learnables...); err != nil {
		return nil, fmt.Errorf("gradient graph: %w", err)
	}

	return &PolicyModel{
		inputDim:   inputDim,
		hidden:     append([]int(nil), hidden...),
		g:          g,
		obs:        obs,
		mask:       mask,
		probs:      probs,
		learnables: learnables,
		vm:         gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(learnables...)),
		solver:     gorgonia.NewAdamSolver(gorgonia.WithLearnRate(learningRate)),
	}, nil
}

// Probabilities runs the network forward only
func (m *PolicyModel) Probabilities(obs []float64) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forward(obs, -1)
}

// Act samples a move from the policy and returns the gradient of its negative log-probability
func (m *PolicyModel) Act(obs []float64, rng *utils.RandSource) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	probs, err := m.forward(obs, -1)
	if err != nil {
		return Decision{}, err
	}
	action := Action(rng.Categorical(probs))

	if _, err := m.forward(obs, action); err != nil {
		return Decision{}, err
	}
	grad := make(Gradient, len(m.learnables))
	for i, w := range m.learnables {
		gv, err := w.Grad()
		if err != nil {
			return Decision{}, fmt.Errorf("gradient of %s: %w", w.Name(), err)
		}
		grad[i] = append([]float64(nil), gv.Data().([]float64)...)
	}
	if err := m.zeroGrads(); err != nil {
		return Decision{}, err
	}
	return Decision{Action: action, Probs: probs, Grad: grad}, nil
}

// forward runs the tape once with the given action selected in the mask
// (-1 selects none) and returns a copy of the move probabilities.
func (m *PolicyModel) forward(obs []float64, action Action) ([]float64, error) {
	if len(obs) != m.inputDim {
		return nil, fmt.Errorf("observation has %d values, model expects %d", len(obs), m.inputDim)
	}
	onehot := make([]float64, ActionCount)
	if action >= 0 {
		onehot[action] = 1
	}

	x := tensor.New(tensor.WithShape(1, m.inputDim), tensor.WithBacking(append([]float64(nil), obs...)))
	if err := gorgonia.Let(m.obs, x); err != nil {
		return nil, fmt.Errorf("bind observation: %w", err)
	}
	if err := gorgonia.Let(m.mask, tensor.New(tensor.WithShape(1, ActionCount), tensor.WithBacking(onehot))); err != nil {
		return nil, fmt.Errorf("bind action mask: %w", err)
	}

	defer m.vm.Reset()
	if err := m.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("policy forward pass: %w", err)
	}
	probs := append([]float64(nil), m.probs.Value().Data().([]float64)...)
	if action < 0 {
		// the backward pass still ran; with an empty mask it added zeros
		if err := m.zeroGrads(); err != nil {
			return nil, err
		}
	}
	return probs, nil
}

// zeroGrads clears the accumulated gradients of the learnables
func (m *PolicyModel) zeroGrads() error {
	for _, w := range m.learnables {
		gv, err := w.Grad()
		if err != nil {
			return fmt.Errorf("gradient of %s: %w", w.Name(), err)
		}
		if d, ok := gv.(*tensor.Dense); ok {
			d.Zero()
		}
	}
	return nil
}

// meanGrad presents a precomputed gradient of a learnable to the solver
type meanGrad struct {
	node *gorgonia.Node
	grad *tensor.Dense
}

func (v meanGrad) Value() gorgonia.Value { return v.node.Value() }

func (v meanGrad) Grad() (gorgonia.Value, error) { return v.grad, nil }

// Update applies one Adam step along mean(weights[i] * grads[i])
func (m *PolicyModel) Update(grads []Gradient, weights []float64) error {
	if len(grads) == 0 {
		return ErrDegenerateBatch
	}
	if len(grads) != len(weights) {
		return fmt.Errorf("got %d gradients and %d weights", len(grads), len(weights))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := float64(len(grads))
	model := make([]gorgonia.ValueGrad, len(m.learnables))
	for i, w := range m.learnables {
		size := w.Shape().TotalSize()
		mean := make([]float64, size)
		for s, g := range grads {
			if len(g) != len(m.learnables) || len(g[i]) != size {
				return fmt.Errorf("gradient %d does not match parameter %s", s, w.Name())
			}
			for j, v := range g[i] {
				mean[j] += weights[s] * v / n
			}
		}
		model[i] = meanGrad{
			node: w,
			grad: tensor.New(tensor.WithShape(w.Shape().Clone()...), tensor.WithBacking(mean)),
		}
	}
	if err := m.solver.Step(model); err != nil {
		return fmt.Errorf("optimizer step: %w", err)
	}
	return nil
}

// Save writes the parameters to path with encoding/gob
func (m *PolicyModel) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer f.Close()
	if err := m.encode(f); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	return nil
}

func (m *PolicyModel) encode(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	enc := gob.NewEncoder(w)
	if err := enc.Encode(len(m.learnables)); err != nil {
		return err
	}
	for _, n := range m.learnables {
		if err := enc.Encode(n.Value()); err != nil {
			return err
		}
	}
	return nil
}

// Load restores parameters written by Save. The network shape must match.
func (m *PolicyModel) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	dec := gob.NewDecoder(f)
	var count int
	if err := dec.Decode(&count); err != nil {
		return fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	if count != len(m.learnables) {
		return fmt.Errorf("checkpoint has %d parameters, model has %d", count, len(m.learnables))
	}
	decoded := make([]*tensor.Dense, count)
	for i, n := range m.learnables {
		if err := dec.Decode(&decoded[i]); err != nil {
			return fmt.Errorf("read checkpoint %s: %w", path, err)
		}
		if decoded[i] == nil || !decoded[i].Shape().Eq(n.Shape()) {
			return fmt.Errorf("checkpoint parameter %s has the wrong shape", n.Name())
		}
	}
	for i, n := range m.learnables {
		copy(n.Value().Data().([]float64), decoded[i].Data().([]float64))
	}
	return nil
}

// NewPolicyFactory returns a factory of PolicyModels. When checkpoint names
// an existing file the weights are restored from it; a shape mismatch is an error.
func NewPolicyFactory(hidden []int, learningRate float64, checkpoint string) PolicyFactory {
	return func(inputDim int) (Policy, error) {
		m, err := NewPolicyModel(inputDim, hidden, learningRate)
		if err != nil {
			return nil, err
		}
		if checkpoint == "" {
			return m, nil
		}
		if _, err := os.Stat(checkpoint); errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		if err := m.Load(checkpoint); err != nil {
			return nil, err
		}
		return m, nil
	}
}
