package core

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// InputMode selects which input variant a ToolRequest carries.
type InputMode int

const (
	ModeNone InputMode = iota
	ModeFile
	ModeURL
	ModeJSON
)

func (m InputMode) String() string {
	switch m {
	case ModeFile:
		return "file"
	case ModeURL:
		return "url"
	case ModeJSON:
		return "json"
	default:
		return "none"
	}
}

// ParseInputMode maps "file", "url" and "json" to their modes.
func ParseInputMode(s string) (InputMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file":
		return ModeFile, true
	case "url":
		return ModeURL, true
	case "json":
		return ModeJSON, true
	}
	return ModeNone, false
}

// ResponseType is what a tool's endpoint answers with on success.
type ResponseType string

const (
	ResponseBinary ResponseType = "binary"
	ResponseJSON   ResponseType = "json"
)

// Field is an extra form field a tool declares next to its main input.
type Field struct {
	Name     string
	Label    string
	Kind     string // text, number, color, select, file
	Required bool
	Positive bool
	Default  string
	Options  []string
}

// IsFile reports whether the field is uploaded as a file part.
func (f Field) IsFile() bool {
	return f.Kind == "file"
}

// Tool is the declarative configuration of one backend capability.
type Tool struct {
	Name        string
	Title       string
	Description string
	Category    string
	Endpoint    string
	Accept      []string
	Inputs      []InputMode
	Fields      []Field
	Response    ResponseType
	// DefaultName is a filename template; {field} placeholders are replaced by
	// request fields, {stem} by the input file stem and {ext} by ExtMap.
	DefaultName string
	ExtMap      map[string]string
	// Feature names a /healthz flag gating this tool.
	Feature string
}

// Supports reports whether the tool accepts the given input mode.
func (t Tool) Supports(m InputMode) bool {
	for _, in := range t.Inputs {
		if in == m {
			return true
		}
	}
	return false
}

// RequiresSource reports whether a file or URL must be supplied.
func (t Tool) RequiresSource() bool {
	return t.Supports(ModeFile) || t.Supports(ModeURL)
}

// Field looks up a declared extra field by name.
func (t Tool) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FileInput is an uploaded file.
type FileInput struct {
	Name    string
	Content []byte
}

// Stem returns the file name without directory and extension.
func (f FileInput) Stem() string {
	base := filepath.Base(f.Name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Input is the tagged user input of a request. Exactly one variant is set,
// as told by Mode.
type Input struct {
	Mode InputMode
	File *FileInput
	URL  string
	JSON any
}

// FromFile builds a file input.
func FromFile(name string, content []byte) Input {
	return Input{Mode: ModeFile, File: &FileInput{Name: name, Content: content}}
}

// FromURL builds a URL input.
func FromURL(url string) Input {
	return Input{Mode: ModeURL, URL: strings.TrimSpace(url)}
}

// FromJSON builds a JSON payload input.
func FromJSON(payload any) Input {
	return Input{Mode: ModeJSON, JSON: payload}
}

// empty reports whether the selected variant carries no data.
func (in Input) empty() bool {
	switch in.Mode {
	case ModeFile:
		return in.File == nil || in.File.Name == "" && len(in.File.Content) == 0
	case ModeURL:
		return in.URL == ""
	case ModeJSON:
		return in.JSON == nil
	default:
		return true
	}
}

// ToolRequest is one user submission.
type ToolRequest struct {
	Tool   Tool
	Input  Input
	Fields map[string]string
	// Attachments holds extra file parts keyed by field name, e.g. a QR logo.
	Attachments map[string]FileInput
}

// Part is a file part of a multipart body.
type Part struct {
	Field    string
	Filename string
	Content  []byte
}

// Payload is the encoded request body handed to the Backend. JSON, when set,
// wins over the multipart fields.
type Payload struct {
	Files []Part
	Form  map[string]string
	JSON  any
}

// DownloadDescriptor is what the platform download trigger receives.
type DownloadDescriptor struct {
	Filename string
	MIMEType string
	Bytes    []byte
}

// Artifact summarises a delivered download once its bytes are released.
type Artifact struct {
	Filename string
	MIMEType string
	Size     int
}

// Outcome is the resolved result of a successful submission.
type Outcome struct {
	Tool     string
	Artifact *Artifact
	JSON     json.RawMessage
}

// Features are the capability flags reported by the backend's /healthz.
type Features map[string]bool

// Enabled reports whether a feature is available. Unknown features count as
// enabled so a missing health report never hides a tool.
func (f Features) Enabled(name string) bool {
	if name == "" || f == nil {
		return true
	}
	v, ok := f[name]
	return !ok || v
}

// Record is one journal entry describing a resolved submission.
type Record struct {
	Tool       string
	Success    bool
	Filename   string
	Message    string
	StatusCode int
}
