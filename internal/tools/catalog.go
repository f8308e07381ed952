package tools

import (
	"embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/catalog.yaml
var builtinCatalog embed.FS

// descriptor is the YAML form of a core.Tool.
type descriptor struct {
	Name        string            `yaml:"name"`
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	Category    string            `yaml:"category"`
	Endpoint    string            `yaml:"endpoint"`
	Accept      []string          `yaml:"accept"`
	Inputs      []string          `yaml:"inputs"`
	Response    string            `yaml:"response"`
	DefaultName string            `yaml:"default_name"`
	ExtMap      map[string]string `yaml:"ext_map"`
	Feature     string            `yaml:"feature"`
	Fields      []fieldDescriptor `yaml:"fields"`
}

type fieldDescriptor struct {
	Name     string   `yaml:"name"`
	Label    string   `yaml:"label"`
	Kind     string   `yaml:"kind"`
	Required bool     `yaml:"required"`
	Positive bool     `yaml:"positive"`
	Default  string   `yaml:"default"`
	Options  []string `yaml:"options"`
}

type catalogFile struct {
	Tools []descriptor `yaml:"tools"`
}

var nameRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

var fieldKinds = map[string]bool{"text": true, "number": true, "color": true, "select": true, "file": true}

// Catalog is the ordered set of tools the front-end offers.
type Catalog struct {
	tools  []core.Tool
	byName map[string]int
}

// Default loads the embedded catalog.
func Default() (*Catalog, error) {
	data, err := builtinCatalog.ReadFile("builtin/catalog.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "reading builtin catalog")
	}
	return Parse(data)
}

// Load returns the catalog at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading catalog %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "invalid catalog yaml")
	}
	if len(file.Tools) == 0 {
		return nil, errors.New("catalog defines no tools")
	}

	c := &Catalog{byName: make(map[string]int, len(file.Tools))}
	for _, d := range file.Tools {
		tool, err := d.toTool()
		if err != nil {
			return nil, err
		}
		if _, dup := c.byName[tool.Name]; dup {
			return nil, errors.Errorf("duplicate tool %q", tool.Name)
		}
		c.byName[tool.Name] = len(c.tools)
		c.tools = append(c.tools, tool)
	}
	return c, nil
}

func (d descriptor) toTool() (core.Tool, error) {
	if !nameRegex.MatchString(d.Name) {
		return core.Tool{}, errors.Errorf("invalid tool name %q: must be lowercase alphanumeric with single hyphens", d.Name)
	}
	if !strings.HasPrefix(d.Endpoint, "/") {
		return core.Tool{}, errors.Errorf("tool %s: endpoint must start with /", d.Name)
	}

	resp := core.ResponseType(d.Response)
	if resp != core.ResponseBinary && resp != core.ResponseJSON {
		return core.Tool{}, errors.Errorf("tool %s: response must be binary or json, got %q", d.Name, d.Response)
	}

	if len(d.Inputs) == 0 {
		return core.Tool{}, errors.Errorf("tool %s: at least one input mode required", d.Name)
	}
	var inputs []core.InputMode
	for _, in := range d.Inputs {
		mode, ok := core.ParseInputMode(in)
		if !ok {
			return core.Tool{}, errors.Errorf("tool %s: unknown input mode %q", d.Name, in)
		}
		inputs = append(inputs, mode)
	}
	if (resp == core.ResponseJSON) != (len(inputs) == 1 && inputs[0] == core.ModeJSON) {
		return core.Tool{}, errors.Errorf("tool %s: json response goes with json input only", d.Name)
	}

	var fields []core.Field
	for _, f := range d.Fields {
		kind := f.Kind
		if kind == "" {
			kind = "text"
		}
		if !fieldKinds[kind] {
			return core.Tool{}, errors.Errorf("tool %s: field %s has unknown kind %q", d.Name, f.Name, kind)
		}
		if f.Name == "" || f.Name == "file" || f.Name == "url" {
			return core.Tool{}, errors.Errorf("tool %s: invalid field name %q", d.Name, f.Name)
		}
		label := f.Label
		if label == "" {
			label = f.Name
		}
		fields = append(fields, core.Field{
			Name:     f.Name,
			Label:    label,
			Kind:     kind,
			Required: f.Required,
			Positive: f.Positive,
			Default:  f.Default,
			Options:  f.Options,
		})
	}

	extMap := make(map[string]string, len(d.ExtMap))
	for k, v := range d.ExtMap {
		extMap[strings.ToLower(k)] = v
	}

	title := d.Title
	if title == "" {
		title = d.Name
	}

	return core.Tool{
		Name:        d.Name,
		Title:       title,
		Description: d.Description,
		Category:    d.Category,
		Endpoint:    d.Endpoint,
		Accept:      d.Accept,
		Inputs:      inputs,
		Fields:      fields,
		Response:    resp,
		DefaultName: d.DefaultName,
		ExtMap:      extMap,
		Feature:     d.Feature,
	}, nil
}

// Get looks up a tool by name.
func (c *Catalog) Get(name string) (core.Tool, bool) {
	i, ok := c.byName[name]
	if !ok {
		return core.Tool{}, false
	}
	return c.tools[i], true
}

// MustGet is Get for names known to exist.
func (c *Catalog) MustGet(name string) core.Tool {
	t, ok := c.Get(name)
	if !ok {
		panic(fmt.Sprintf("tool %q not in catalog", name))
	}
	return t
}

// All returns the tools in declaration order.
func (c *Catalog) All() []core.Tool {
	out := make([]core.Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Categories groups tools by category, categories sorted by name.
func (c *Catalog) Categories() []Category {
	groups := map[string][]core.Tool{}
	for _, t := range c.tools {
		groups[t.Category] = append(groups[t.Category], t)
	}
	var out []Category
	for name, ts := range groups {
		out = append(out, Category{Name: name, Tools: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Category is a named group of tools.
type Category struct {
	Name  string
	Tools []core.Tool
}
