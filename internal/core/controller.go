package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Controller performs conversion round-trips against the backend. It holds no
// per-submission state; concurrent Submit calls are independent and carry no
// ordering guarantee between them.
type Controller struct {
	backend  Backend
	journal  Journal
	observer Observer
}

// NewController creates a controller. journal and observer may be nil.
func NewController(backend Backend, journal Journal, observer Observer) *Controller {
	return &Controller{
		backend:  backend,
		journal:  journal,
		observer: observer,
	}
}

// Submit validates req, issues exactly one POST and resolves the response.
// Binary artifacts are handed to dl; JSON results are returned untouched.
// Failures are returned as *StructuredError.
func (c *Controller) Submit(ctx context.Context, req ToolRequest, dl Downloader) (*Outcome, error) {
	s := &submission{id: uuid.NewString(), tool: req.Tool.Name, state: StateIdle, observer: c.observer}

	// a caller error, not a submission: no transition is emitted
	if req.Tool.Response == ResponseBinary && dl == nil {
		return nil, errors.Errorf("tool %s needs a download trigger", req.Tool.Name)
	}

	s.to(StateValidating, nil)
	if err := Validate(req); err != nil {
		slog.Info("submission rejected", "tool", req.Tool.Name, "error", err.Message)
		s.to(StateIdle, err)
		return nil, err
	}

	payload := BuildPayload(req)

	s.to(StateSubmitting, nil)
	slog.Info("submitting", "id", s.id, "tool", req.Tool.Name, "endpoint", req.Tool.Endpoint, "mode", req.Input.Mode.String())
	resp, err := c.backend.Post(ctx, req.Tool.Endpoint, payload)
	if err != nil {
		return nil, c.fail(s, networkError(err))
	}

	s.to(StateAwaitingBody, nil)
	if !resp.OK() {
		return nil, c.fail(s, backendError(req.Tool, resp))
	}

	if req.Tool.Response == ResponseJSON {
		if !json.Valid(resp.Body) {
			return nil, c.fail(s, parseError(resp.StatusCode, errors.New("response is not valid JSON")))
		}
		out := &Outcome{Tool: req.Tool.Name, JSON: json.RawMessage(resp.Body)}
		c.resolve(s, Record{Tool: req.Tool.Name, Success: true, StatusCode: resp.StatusCode})
		return out, nil
	}

	artifact, serr := c.deliver(ctx, req, resp, dl)
	if serr != nil {
		return nil, c.fail(s, serr)
	}
	slog.Info("download delivered", "id", s.id, "tool", req.Tool.Name, "filename", artifact.Filename, "size", artifact.Size)
	c.resolve(s, Record{Tool: req.Tool.Name, Success: true, Filename: artifact.Filename, StatusCode: resp.StatusCode})
	return &Outcome{Tool: req.Tool.Name, Artifact: artifact}, nil
}

// deliver hands the artifact to the download trigger. The buffer is dropped
// once the trigger returns, on every path including panics.
func (c *Controller) deliver(ctx context.Context, req ToolRequest, resp *RawResponse, dl Downloader) (*Artifact, *StructuredError) {
	mimeType := DetectMIME(resp.Header, resp.Body)
	desc := DownloadDescriptor{
		Filename: ResolveFilename(req.Tool, req, resp.Header, mimeType),
		MIMEType: mimeType,
		Bytes:    resp.Body,
	}
	defer func() {
		desc.Bytes = nil
		resp.Body = nil
	}()

	artifact := &Artifact{Filename: desc.Filename, MIMEType: desc.MIMEType, Size: len(desc.Bytes)}
	if err := dl.Download(ctx, desc); err != nil {
		return nil, downloadError(err)
	}
	return artifact, nil
}

func (c *Controller) fail(s *submission, err *StructuredError) *StructuredError {
	slog.Warn("submission failed", "id", s.id, "tool", s.tool, "kind", string(err.Kind), "status", err.StatusCode, "error", err.Message)
	s.to(StateResolved, err)
	c.record(Record{Tool: s.tool, Message: err.Message, StatusCode: err.StatusCode})
	return err
}

func (c *Controller) resolve(s *submission, rec Record) {
	s.to(StateResolved, nil)
	c.record(rec)
}

func (c *Controller) record(rec Record) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(rec); err != nil {
		slog.Error("journal record", "tool", rec.Tool, "error", err)
	}
}

// Validate checks the request before any network call.
func Validate(req ToolRequest) *StructuredError {
	tool := req.Tool
	in := req.Input

	if tool.Supports(ModeJSON) {
		if in.empty() {
			return InputRequired("a value is required")
		}
		if in.Mode != ModeJSON {
			return unsupportedInput("%s expects a JSON payload", tool.Name)
		}
		return nil
	}

	if in.Mode == ModeNone || in.empty() {
		if tool.Supports(ModeURL) && tool.Supports(ModeFile) {
			return InputRequired("please upload a file or provide a URL")
		}
		if tool.Supports(ModeURL) {
			return InputRequired("please provide a URL or text")
		}
		return InputRequired("please upload a file")
	}
	if !tool.Supports(in.Mode) {
		return unsupportedInput("%s does not accept %s input", tool.Name, in.Mode)
	}

	for _, f := range tool.Fields {
		if f.IsFile() {
			if _, ok := req.Attachments[f.Name]; !ok && f.Required {
				return InputRequired("%s is required", f.Name)
			}
			continue
		}
		v := fieldValue(req, f)
		if v == "" {
			if f.Required {
				return InputRequired("%s is required", f.Name)
			}
			continue
		}
		if f.Positive {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return InputRequired("%s must be a positive integer", f.Name)
			}
		}
	}
	return nil
}

// BuildPayload encodes the request as a JSON body or multipart parts.
func BuildPayload(req ToolRequest) Payload {
	if req.Input.Mode == ModeJSON {
		return Payload{JSON: req.Input.JSON}
	}

	p := Payload{Form: map[string]string{}}
	switch req.Input.Mode {
	case ModeFile:
		p.Files = append(p.Files, Part{Field: "file", Filename: req.Input.File.Name, Content: req.Input.File.Content})
	case ModeURL:
		p.Form["url"] = req.Input.URL
	}

	for _, f := range req.Tool.Fields {
		if f.IsFile() {
			if att, ok := req.Attachments[f.Name]; ok {
				p.Files = append(p.Files, Part{Field: f.Name, Filename: att.Name, Content: att.Content})
			}
			continue
		}
		if v := fieldValue(req, f); v != "" {
			p.Form[f.Name] = v
		}
	}
	return p
}

func fieldValue(req ToolRequest, f Field) string {
	if v, ok := req.Fields[f.Name]; ok && v != "" {
		return v
	}
	return f.Default
}

func backendError(tool Tool, resp *RawResponse) *StructuredError {
	kind := KindBackend
	if resp.StatusCode == http.StatusServiceUnavailable && tool.Feature != "" {
		kind = KindFeatureUnavailable
	}
	return &StructuredError{Kind: kind, Message: ErrorMessage(resp), StatusCode: resp.StatusCode}
}

// ErrorMessage extracts the "error" field of a JSON body, falling back to the
// HTTP status text.
func ErrorMessage(resp *RawResponse) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.Error != "" {
		return body.Error
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}
