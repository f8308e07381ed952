package tools

import (
	"encoding/json"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// Bases accepted by the base converter.
var Bases = []string{"binary", "octal", "decimal", "hexadecimal"}

// Units lists the convertible units per unit type.
var Units = map[string][]string{
	"temperature": {"celsius", "fahrenheit", "kelvin"},
	"length":      {"meters", "kilometers", "miles", "feet", "inches"},
	"mass":        {"kilograms", "grams", "pounds", "ounces"},
}

// BaseRequest is the /api/convert-base body.
type BaseRequest struct {
	InputValue string `json:"inputValue"`
	SourceBase string `json:"sourceBase"`
	TargetBase string `json:"targetBase"`
}

func (r BaseRequest) Validate() error {
	if strings.TrimSpace(r.InputValue) == "" {
		return core.InputRequired("please enter a number to convert")
	}
	if !slices.Contains(Bases, r.SourceBase) {
		return core.InputRequired("invalid source base %q", r.SourceBase)
	}
	if !slices.Contains(Bases, r.TargetBase) {
		return core.InputRequired("invalid target base %q", r.TargetBase)
	}
	return nil
}

// CalculusRequest is the /api/calculus body. Order is only sent for
// derivatives and bounds only for definite integrals.
type CalculusRequest struct {
	Expression string `json:"expression"`
	Operation  string `json:"operation"`
	Variable   string `json:"variable"`
	Order      int    `json:"order,omitempty"`
	Lower      string `json:"lower,omitempty"`
	Upper      string `json:"upper,omitempty"`
}

// NewCalculusRequest drops the parameters that do not apply to op.
func NewCalculusRequest(expression, op, variable string, order int, lower, upper string) CalculusRequest {
	req := CalculusRequest{Expression: expression, Operation: op, Variable: variable}
	switch op {
	case "derivative":
		req.Order = order
	case "integral":
		if lower != "" && upper != "" {
			req.Lower = lower
			req.Upper = upper
		}
	}
	return req
}

func (r CalculusRequest) Validate() error {
	if strings.TrimSpace(r.Expression) == "" {
		return core.InputRequired("please enter an expression")
	}
	if r.Operation != "derivative" && r.Operation != "integral" {
		return core.InputRequired("operation must be derivative or integral")
	}
	if r.Variable == "" {
		return core.InputRequired("variable is required")
	}
	if r.Operation == "derivative" && r.Order < 1 {
		return core.InputRequired("order must be a positive integer")
	}
	return nil
}

// UnitRequest is the /api/convert-unit body.
type UnitRequest struct {
	Value    float64 `json:"value"`
	FromUnit string  `json:"fromUnit"`
	ToUnit   string  `json:"toUnit"`
	UnitType string  `json:"unitType"`
}

func (r UnitRequest) Validate() error {
	units, ok := Units[r.UnitType]
	if !ok {
		return core.InputRequired("please select a unit type")
	}
	if !slices.Contains(units, r.FromUnit) {
		return core.InputRequired("invalid %s unit %q", r.UnitType, r.FromUnit)
	}
	if !slices.Contains(units, r.ToUnit) {
		return core.InputRequired("invalid %s unit %q", r.UnitType, r.ToUnit)
	}
	return nil
}

// Trivial reports a same-unit conversion, answered without a request.
func (r UnitRequest) Trivial() bool {
	return r.FromUnit == r.ToUnit
}

// BaseResult is the /api/convert-base response.
type BaseResult struct {
	Input     string   `json:"input,omitempty"`
	Result    string   `json:"result,omitempty"`
	Results   []string `json:"results,omitempty"`
	Solution  string   `json:"solution,omitempty"`
	Solutions []string `json:"solutions,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Primary returns the single or first result.
func (r BaseResult) Primary() string {
	if r.Result != "" {
		return r.Result
	}
	if len(r.Results) > 0 {
		return r.Results[0]
	}
	return ""
}

// Transcripts returns the solution texts in order.
func (r BaseResult) Transcripts() []string {
	if r.Solution != "" {
		return []string{r.Solution}
	}
	return r.Solutions
}

// CalculusResult is the /api/calculus response.
type CalculusResult struct {
	Result      string   `json:"result"`
	ResultLatex string   `json:"result_latex"`
	Steps       []string `json:"steps"`
	StepsLatex  []string `json:"steps_latex"`
	Error       string   `json:"error,omitempty"`
}

// UnitResult is the /api/convert-unit response.
type UnitResult struct {
	Result *float64 `json:"result"`
	Error  string   `json:"error,omitempty"`
}

// Decode unmarshals a raw JSON outcome into one of the result types.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errors.Wrap(err, "decoding result")
	}
	return v, nil
}

// WithDefaults overlays fields onto the tool's field defaults.
func WithDefaults(tool core.Tool, fields map[string]string) map[string]string {
	out := make(map[string]string, len(tool.Fields))
	for _, f := range tool.Fields {
		if f.Default != "" {
			out[f.Name] = f.Default
		}
	}
	for k, v := range fields {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out
}

// JSONPayload builds and validates the JSON body of a json tool from string
// fields, as collected from a form or command-line flags.
func JSONPayload(tool core.Tool, fields map[string]string) (any, error) {
	f := WithDefaults(tool, fields)

	switch tool.Name {
	case "convert-base":
		req := BaseRequest{InputValue: f["inputValue"], SourceBase: f["sourceBase"], TargetBase: f["targetBase"]}
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return req, nil

	case "calculus":
		order := 0
		if s := f["order"]; s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, core.InputRequired("order must be a positive integer")
			}
			order = n
		}
		req := NewCalculusRequest(f["expression"], f["operation"], f["variable"], order, f["lower"], f["upper"])
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return req, nil

	case "convert-unit":
		raw := f["value"]
		if raw == "" {
			return nil, core.InputRequired("please enter a valid number for the value")
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, core.InputRequired("please enter a valid number for the value")
		}
		req := UnitRequest{Value: v, FromUnit: f["fromUnit"], ToUnit: f["toUnit"], UnitType: f["unitType"]}
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return req, nil
	}

	for _, field := range tool.Fields {
		if field.Required && f[field.Name] == "" {
			return nil, core.InputRequired("%s is required", field.Name)
		}
	}
	return f, nil
}

// Accepts reports whether a file matches the tool's accept list, by extension
// first and by sniffed content second.
func Accepts(tool core.Tool, name string, content []byte) bool {
	if len(tool.Accept) == 0 {
		return true
	}
	if slices.Contains(tool.Accept, strings.ToLower(filepath.Ext(name))) {
		return true
	}
	if len(content) == 0 {
		return false
	}
	for m := mimetype.Detect(content); m != nil; m = m.Parent() {
		if slices.Contains(tool.Accept, m.Extension()) {
			return true
		}
		for _, alias := range extAliases[m.Extension()] {
			if slices.Contains(tool.Accept, alias) {
				return true
			}
		}
	}
	return false
}

var extAliases = map[string][]string{
	".jpg": {".jpeg"},
}
