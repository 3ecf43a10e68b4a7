// Package graphspec loads computation graphs described in YAML and builds
// them on an autodiff.Graph.
//
// A file names its source variables, the functions connecting them and the
// variables to run backward from:
//
//	name: diamond
//	sources:
//	  - name: x
//	    shape: [1, 1, 1]
//	functions:
//	  - {name: A, inputs: [x], outputs: [h1]}
//	  - {name: B, inputs: [h1], outputs: [h2]}
//	  - {name: C, inputs: [h1], outputs: [h3]}
//	  - {name: D, inputs: [h2], outputs: [h4]}
//	  - {name: E, inputs: [h3, h4], outputs: [h5]}
//	backward: [h5]
//
// Functions without an op are pass-through callbacks that only record when
// their backward step runs. Every built function records into Built.Order.
package graphspec

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/cgraph/internal/tensor"
)

// Limits on graph files.
const (
	MaxFileSize = 1 << 20 // Bytes read by Load
	MaxElements = 1 << 24 // Elements per source variable
)

// Errors returned while parsing or building a graph file.
var (
	ErrInvalidFile     = errors.New("invalid graph file")
	ErrDuplicateName   = errors.New("duplicate name")
	ErrUnknownVariable = errors.New("unknown variable")
	ErrUnknownOp       = errors.New("unknown op")
)

// Op kinds accepted in FunctionSpec.Op.
const (
	OpCallback = ""
	OpIdentity = "identity"
	OpAdd      = "add"
	OpMul      = "mul"
	OpScale    = "scale"
	OpSplit    = "split"
)

// File is the YAML document.
type File struct {
	Name      string         `yaml:"name"`
	Sources   []SourceSpec   `yaml:"sources"`
	Functions []FunctionSpec `yaml:"functions"`
	Backward  []string       `yaml:"backward"`
}

// SourceSpec declares a source variable.
type SourceSpec struct {
	Name     string    `yaml:"name"`
	Shape    []int     `yaml:"shape"`
	Value    []float32 `yaml:"value,omitempty"`
	NeedGrad *bool     `yaml:"need_grad,omitempty"` // Defaults to true
}

// FunctionSpec declares one function and the names of its outputs.
type FunctionSpec struct {
	Name    string   `yaml:"name"`
	Op      string   `yaml:"op,omitempty"`
	Factor  float64  `yaml:"factor,omitempty"` // Scale factor for op "scale"
	Inputs  []string `yaml:"inputs"`
	Outputs []string `yaml:"outputs,omitempty"` // Defaults to one output named after the function
	Fail    bool     `yaml:"fail,omitempty"`    // Backward returns an error
}

// needGrad reports the effective need_grad flag.
func (s SourceSpec) needGrad() bool {
	return s.NeedGrad == nil || *s.NeedGrad
}

// outputNames returns the declared outputs or the default single output.
func (s FunctionSpec) outputNames() []string {
	if len(s.Outputs) == 0 {
		return []string{s.Name}
	}
	return s.Outputs
}

// Parse decodes and validates a graph file.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and parses the graph file at path.
func Load(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat graph file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrInvalidFile, path, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate checks names are unique and every reference resolves to a
// variable declared earlier in the file.
func (f *File) Validate() error {
	vars := make(map[string]bool)
	fns := make(map[string]bool)

	for i, s := range f.Sources {
		if s.Name == "" {
			return fmt.Errorf("%w: source %d has no name", ErrInvalidFile, i)
		}
		if vars[s.Name] {
			return fmt.Errorf("%w: variable %q", ErrDuplicateName, s.Name)
		}
		shape := tensor.Shape(s.Shape)
		if err := shape.Validate(); err != nil {
			return fmt.Errorf("%w: source %q: %w", ErrInvalidFile, s.Name, err)
		}
		n := shape.NumElements()
		if n > MaxElements {
			return fmt.Errorf("%w: source %q has %d elements (max %d)", ErrInvalidFile, s.Name, n, MaxElements)
		}
		if len(s.Value) > 0 && len(s.Value) != n {
			return fmt.Errorf("%w: source %q has %d values for shape %v", ErrInvalidFile, s.Name, len(s.Value), shape)
		}
		vars[s.Name] = true
	}

	for i, fn := range f.Functions {
		if fn.Name == "" {
			return fmt.Errorf("%w: function %d has no name", ErrInvalidFile, i)
		}
		if fns[fn.Name] {
			return fmt.Errorf("%w: function %q", ErrDuplicateName, fn.Name)
		}
		fns[fn.Name] = true

		if !knownOp(fn.Op) {
			return fmt.Errorf("%w: %q in function %q", ErrUnknownOp, fn.Op, fn.Name)
		}
		for _, in := range fn.Inputs {
			if !vars[in] {
				return fmt.Errorf("%w: %q used by function %q", ErrUnknownVariable, in, fn.Name)
			}
		}
		for _, out := range fn.outputNames() {
			if vars[out] {
				return fmt.Errorf("%w: variable %q", ErrDuplicateName, out)
			}
			vars[out] = true
		}
	}

	if len(f.Backward) == 0 {
		return fmt.Errorf("%w: no backward variables", ErrInvalidFile)
	}
	for _, name := range f.Backward {
		if !vars[name] {
			return fmt.Errorf("%w: backward variable %q", ErrUnknownVariable, name)
		}
	}
	return nil
}

func knownOp(op string) bool {
	switch op {
	case OpCallback, OpIdentity, OpAdd, OpMul, OpScale, OpSplit:
		return true
	}
	return false
}
