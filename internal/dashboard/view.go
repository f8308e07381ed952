package dashboard

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"

	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/TheLazyLemur/benpdf/internal/render"
	"github.com/TheLazyLemur/benpdf/internal/tools"
)

// View is the UI state of one tool page. It is derived from the request on
// every render and handed to the templates; nothing is kept between requests.
type View struct {
	Tool      core.Tool
	Mode      core.InputMode
	Fields    map[string]string
	Available bool
	Error     string
	ErrorKind string
	Result    *Result
}

// Result is a rendered JSON outcome.
type Result struct {
	Value  string
	Detail template.HTML
	Error  string
}

// parseView reads the active input mode and field values from r. The mode
// falls back to the first mode the tool supports.
func parseView(r *http.Request, tool core.Tool, features core.Features) View {
	v := View{
		Tool:      tool,
		Fields:    make(map[string]string, len(tool.Fields)),
		Available: features.Enabled(tool.Feature),
	}
	if mode, ok := core.ParseInputMode(r.FormValue("mode")); ok && tool.Supports(mode) {
		v.Mode = mode
	} else if len(tool.Inputs) > 0 {
		v.Mode = tool.Inputs[0]
	}
	for _, f := range tool.Fields {
		if f.IsFile() {
			continue
		}
		if val := r.FormValue(f.Name); val != "" {
			v.Fields[f.Name] = val
		} else {
			v.Fields[f.Name] = f.Default
		}
	}
	return v
}

// ModeName is used by templates to compare against the active mode.
func (v View) ModeName() string {
	return v.Mode.String()
}

func (v View) SupportsFile() bool {
	return v.Tool.Supports(core.ModeFile)
}

func (v View) SupportsURL() bool {
	return v.Tool.Supports(core.ModeURL)
}

// Value returns the current value of a field for the form.
func (v View) Value(name string) string {
	return v.Fields[name]
}

// resultFor renders a JSON outcome for the tool. Unknown tools get the JSON
// pretty-printed.
func resultFor(tool core.Tool, raw json.RawMessage) *Result {
	switch tool.Name {
	case "convert-base":
		res, err := tools.Decode[tools.BaseResult](raw)
		if err != nil {
			return &Result{Error: err.Error()}
		}
		if res.Error != "" {
			return &Result{Error: res.Error}
		}
		var detail bytes.Buffer
		for _, t := range res.Transcripts() {
			detail.WriteString(render.SolutionHTML(t))
		}
		return &Result{Value: res.Primary(), Detail: template.HTML(detail.String())}

	case "calculus":
		res, err := tools.Decode[tools.CalculusResult](raw)
		if err != nil {
			return &Result{Error: err.Error()}
		}
		if res.Error != "" {
			return &Result{Error: res.Error}
		}
		return &Result{Value: res.Result, Detail: template.HTML(render.FromLines(res.Steps).HTML())}

	case "convert-unit":
		res, err := tools.Decode[tools.UnitResult](raw)
		if err != nil {
			return &Result{Error: err.Error()}
		}
		if res.Result == nil {
			msg := res.Error
			if msg == "" {
				msg = "no result"
			}
			return &Result{Error: msg}
		}
		return &Result{Value: formatNumber(*res.Result)}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return &Result{Error: err.Error()}
	}
	return &Result{Detail: template.HTML(`<pre class="solution">` + template.HTMLEscapeString(pretty.String()) + `</pre>`)}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// unitResult answers a same-unit conversion locally.
func unitResult(req tools.UnitRequest) *Result {
	return &Result{Value: formatNumber(req.Value)}
}

// statusFor maps an error kind to the status of the re-rendered form.
func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindInputRequired, core.KindUnsupportedInput:
		return http.StatusBadRequest
	case core.KindFeatureUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
