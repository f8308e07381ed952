package core

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	resp     *RawResponse
	err      error
	calls    int
	endpoint string
	payload  Payload
}

func (m *mockBackend) Post(ctx context.Context, endpoint string, payload Payload) (*RawResponse, error) {
	m.calls++
	m.endpoint = endpoint
	m.payload = payload
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

type mockDownloader struct {
	got   []DownloadDescriptor
	err   error
	panic bool
}

func (m *mockDownloader) Download(ctx context.Context, d DownloadDescriptor) error {
	if m.panic {
		panic("download trigger exploded")
	}
	m.got = append(m.got, d)
	return m.err
}

type mockObserver struct {
	mu     sync.Mutex
	events []Event
}

func (m *mockObserver) Transition(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockObserver) states() []State {
	var out []State
	for _, ev := range m.events {
		out = append(out, ev.To)
	}
	return out
}

type mockJournal struct {
	records []Record
}

func (m *mockJournal) Record(rec Record) error {
	m.records = append(m.records, rec)
	return nil
}

func imageTool() Tool {
	return Tool{
		Name:     "convert-image",
		Endpoint: "/api/convert-image",
		Inputs:   []InputMode{ModeFile, ModeURL},
		Response: ResponseBinary,
	}
}

func resizeTool() Tool {
	return Tool{
		Name:     "resize-image",
		Endpoint: "/api/resize-image",
		Inputs:   []InputMode{ModeFile},
		Fields: []Field{
			{Name: "width", Kind: "number", Required: true, Positive: true},
			{Name: "height", Kind: "number", Required: true, Positive: true},
		},
		Response:    ResponseBinary,
		DefaultName: "resized_image_{width}x{height}",
	}
}

func baseTool() Tool {
	return Tool{
		Name:     "convert-base",
		Endpoint: "/api/convert-base",
		Inputs:   []InputMode{ModeJSON},
		Response: ResponseJSON,
	}
}

func pngResponse() *RawResponse {
	return &RawResponse{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"image/png"}},
		Body:       []byte("\x89PNG\r\n\x1a\nfake"),
	}
}

func TestSubmit_MissingFileAndURL_InputRequiredWithoutNetwork(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	// given
	backend := &mockBackend{resp: pngResponse()}
	obs := &mockObserver{}
	ctrl := NewController(backend, nil, obs)

	// when
	out, err := ctrl.Submit(context.Background(), ToolRequest{Tool: imageTool()}, &mockDownloader{})

	// then
	r.Error(err)
	a.Nil(out)
	a.True(errors.Is(err, ErrInputRequired))
	a.Equal(0, backend.calls)
	a.Equal([]State{StateValidating, StateIdle}, obs.states())
}

func TestSubmit_EmptyURL_InputRequired(t *testing.T) {
	a := assert.New(t)

	backend := &mockBackend{resp: pngResponse()}
	ctrl := NewController(backend, nil, nil)

	_, err := ctrl.Submit(context.Background(), ToolRequest{Tool: imageTool(), Input: FromURL("   ")}, &mockDownloader{})

	a.True(errors.Is(err, ErrInputRequired))
	a.Equal(0, backend.calls)
}

func TestSubmit_URLOnToolWithoutURLSupport_Unsupported(t *testing.T) {
	a := assert.New(t)

	backend := &mockBackend{resp: pngResponse()}
	ctrl := NewController(backend, nil, nil)

	_, err := ctrl.Submit(context.Background(), ToolRequest{Tool: resizeTool(), Input: FromURL("https://x/y.png")}, &mockDownloader{})

	a.True(errors.Is(err, ErrUnsupportedInput))
	a.Equal(0, backend.calls)
}

func TestSubmit_ResizeRequiresPositiveDimensions(t *testing.T) {
	a := assert.New(t)

	backend := &mockBackend{resp: pngResponse()}
	ctrl := NewController(backend, nil, nil)
	req := ToolRequest{
		Tool:   resizeTool(),
		Input:  FromFile("a.png", []byte("img")),
		Fields: map[string]string{"width": "0", "height": "600"},
	}

	_, err := ctrl.Submit(context.Background(), req, &mockDownloader{})

	a.True(errors.Is(err, ErrInputRequired))
	a.Contains(err.Error(), "width")
	a.Equal(0, backend.calls)
}

func TestSubmit_ConvertImage_DownloadsWithMIMEFallbackName(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	// given
	backend := &mockBackend{resp: pngResponse()}
	dl := &mockDownloader{}
	obs := &mockObserver{}
	journal := &mockJournal{}
	ctrl := NewController(backend, journal, obs)

	// when
	out, err := ctrl.Submit(context.Background(), ToolRequest{
		Tool:  imageTool(),
		Input: FromFile("sample.png", []byte("raw image")),
	}, dl)

	// then
	r.NoError(err)
	r.NotNil(out.Artifact)
	a.Equal("converted-file.png", out.Artifact.Filename)
	a.Equal("image/png", out.Artifact.MIMEType)
	a.Equal(1, backend.calls)
	a.Equal("/api/convert-image", backend.endpoint)
	r.Len(backend.payload.Files, 1)
	a.Equal("file", backend.payload.Files[0].Field)
	a.Equal("sample.png", backend.payload.Files[0].Filename)
	r.Len(dl.got, 1)
	a.Equal("converted-file.png", dl.got[0].Filename)
	a.NotEmpty(dl.got[0].Bytes)
	a.Equal([]State{StateValidating, StateSubmitting, StateAwaitingBody, StateResolved}, obs.states())
	a.True(obs.events[len(obs.events)-1].Success)
	r.Len(journal.records, 1)
	a.True(journal.records[0].Success)
}

func TestSubmit_URLInput_SentAsFormField(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	backend := &mockBackend{resp: pngResponse()}
	ctrl := NewController(backend, nil, nil)

	_, err := ctrl.Submit(context.Background(), ToolRequest{
		Tool:  imageTool(),
		Input: FromURL("https://example.com/cat.jpg"),
	}, &mockDownloader{})

	r.NoError(err)
	a.Empty(backend.payload.Files)
	a.Equal("https://example.com/cat.jpg", backend.payload.Form["url"])
}

func TestSubmit_HeaderFilenameWins(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	resp := pngResponse()
	resp.Header.Set("Content-Disposition", `attachment; filename="out.ico"`)
	backend := &mockBackend{resp: resp}
	dl := &mockDownloader{}
	ctrl := NewController(backend, nil, nil)

	out, err := ctrl.Submit(context.Background(), ToolRequest{
		Tool:   resizeTool(),
		Input:  FromFile("a.png", []byte("img")),
		Fields: map[string]string{"width": "800", "height": "600"},
	}, dl)

	r.NoError(err)
	a.Equal("out.ico", out.Artifact.Filename)
}

func TestSubmit_ResizeFallbackName(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	backend := &mockBackend{resp: pngResponse()}
	dl := &mockDownloader{}
	ctrl := NewController(backend, nil, nil)

	out, err := ctrl.Submit(context.Background(), ToolRequest{
		Tool:   resizeTool(),
		Input:  FromFile("a.png", []byte("img")),
		Fields: map[string]string{"width": "800", "height": "600"},
	}, dl)

	r.NoError(err)
	a.Equal("resized_image_800x600", out.Artifact.Filename)
	a.Equal("800", backend.payload.Form["width"])
	a.Equal("600", backend.payload.Form["height"])
}

func TestSubmit_BackendErrorFromJSON(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	// given
	backend := &mockBackend{resp: &RawResponse{
		StatusCode: http.StatusBadRequest,
		Status:     "400 BAD REQUEST",
		Body:       []byte(`{"error":"bad format"}`),
	}}
	dl := &mockDownloader{}
	journal := &mockJournal{}
	ctrl := NewController(backend, journal, nil)

	// when
	_, err := ctrl.Submit(context.Background(), ToolRequest{Tool: imageTool(), Input: FromFile("a.png", []byte("x"))}, dl)

	// then
	var serr *StructuredError
	r.True(errors.As(err, &serr))
	a.Equal(KindBackend, serr.Kind)
	a.Equal("bad format", serr.Message)
	a.Equal(http.StatusBadRequest, serr.StatusCode)
	a.Empty(dl.got)
	r.Len(journal.records, 1)
	a.False(journal.records[0].Success)
	a.Equal("bad format", journal.records[0].Message)
}

func TestSubmit_BackendErrorUnparsableBody_UsesStatusText(t *testing.T) {
	a := assert.New(t)

	backend := &mockBackend{resp: &RawResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       []byte("<html>boom</html>"),
	}}
	ctrl := NewController(backend, nil, nil)

	_, err := ctrl.Submit(context.Background(), ToolRequest{Tool: imageTool(), Input: FromFile("a.png", []byte("x"))}, &mockDownloader{})

	var serr *StructuredError
	a.True(errors.As(err, &serr))
	a.Equal("Internal Server Error", serr.Message)
}

func TestSubmit_503OnFeatureTool_FeatureUnavailable(t *testing.T) {
	a := assert.New(t)

	tool := imageTool()
	tool.Name = "remove-background"
	tool.Feature = "rembg"
	backend := &mockBackend{resp: &RawResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       []byte(`{"error":"Background removal is not available"}`),
	}}
	ctrl := NewController(backend, nil, nil)

	_, err := ctrl.Submit(context.Background(), ToolRequest{Tool: tool, Input: FromFile("a.png", []byte("x"))}, &mockDownloader{})

	a.True(errors.Is(err, ErrFeatureUnavailable))
	a.Contains(err.Error(), "Background removal is not available")
}

func TestSubmit_NetworkError(t *testing.T) {
	a := assert.New(t)

	backend := &mockBackend{err: errors.New("connection refused")}
	obs := &mockObserver{}
	ctrl := NewController(backend, nil, obs)

	_, err := ctrl.Submit(context.Background(), ToolRequest{Tool: imageTool(), Input: FromFile("a.png", []byte("x"))}, &mockDownloader{})

	a.True(errors.Is(err, ErrNetwork))
	a.Equal(1, backend.calls)
	a.Equal([]State{StateValidating, StateSubmitting, StateResolved}, obs.states())
	a.False(obs.events[len(obs.events)-1].Success)
}

func TestSubmit_JSONTool_PassesThroughRawJSON(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	body := `{"result":"11001","solution":"Step 1: 25 / 2 = 12"}`
	backend := &mockBackend{resp: &RawResponse{StatusCode: http.StatusOK, Body: []byte(body)}}
	ctrl := NewController(backend, nil, nil)
	payload := map[string]string{"inputValue": "25", "sourceBase": "decimal", "targetBase": "binary"}

	out, err := ctrl.Submit(context.Background(), ToolRequest{Tool: baseTool(), Input: FromJSON(payload)}, nil)

	r.NoError(err)
	a.JSONEq(body, string(out.JSON))
	a.Nil(out.Artifact)
	a.Equal(payload, backend.payload.JSON)
}

func TestSubmit_JSONTool_InvalidBody_ParseError(t *testing.T) {
	a := assert.New(t)

	backend := &mockBackend{resp: &RawResponse{StatusCode: http.StatusOK, Body: []byte("not json")}}
	ctrl := NewController(backend, nil, nil)

	_, err := ctrl.Submit(context.Background(), ToolRequest{Tool: baseTool(), Input: FromJSON(map[string]string{"a": "b"})}, nil)

	a.True(errors.Is(err, ErrParse))
}

func TestSubmit_JSONTool_MissingPayload(t *testing.T) {
	a := assert.New(t)

	backend := &mockBackend{}
	ctrl := NewController(backend, nil, nil)

	for _, in := range []Input{FromJSON(nil), {}} {
		_, err := ctrl.Submit(context.Background(), ToolRequest{Tool: baseTool(), Input: in}, nil)

		a.True(errors.Is(err, ErrInputRequired), "mode %s", in.Mode)
	}
	a.Equal(0, backend.calls)
}

func TestSubmit_JSONTool_URLInput_Unsupported(t *testing.T) {
	backend := &mockBackend{}
	ctrl := NewController(backend, nil, nil)

	_, err := ctrl.Submit(context.Background(), ToolRequest{Tool: baseTool(), Input: FromURL("https://example.com")}, nil)

	assert.True(t, errors.Is(err, ErrUnsupportedInput))
	assert.Equal(t, 0, backend.calls)
}

func TestSubmit_BinaryToolWithoutDownloader_EmitsNoTransitions(t *testing.T) {
	a := assert.New(t)

	// given
	backend := &mockBackend{}
	obs := &mockObserver{}
	ctrl := NewController(backend, nil, obs)

	// when
	_, err := ctrl.Submit(context.Background(), ToolRequest{Tool: imageTool(), Input: FromURL("https://example.com/a.png")}, nil)

	// then
	a.Error(err)
	a.Empty(obs.events)
	a.Equal(0, backend.calls)
}

func TestSubmit_DownloadFailure_Surfaced(t *testing.T) {
	a := assert.New(t)

	backend := &mockBackend{resp: pngResponse()}
	ctrl := NewController(backend, nil, nil)

	_, err := ctrl.Submit(context.Background(), ToolRequest{Tool: imageTool(), Input: FromFile("a.png", []byte("x"))}, &mockDownloader{err: errors.New("disk full")})

	a.True(errors.Is(err, ErrDownload))
	a.Contains(err.Error(), "disk full")
}

func TestSubmit_DownloadPanic_ReleasesBuffer(t *testing.T) {
	a := assert.New(t)

	resp := pngResponse()
	backend := &mockBackend{resp: resp}
	ctrl := NewController(backend, nil, nil)

	a.Panics(func() {
		ctrl.Submit(context.Background(), ToolRequest{Tool: imageTool(), Input: FromFile("a.png", []byte("x"))}, &mockDownloader{panic: true})
	})
	a.Nil(resp.Body)
}

func TestSubmit_ExtraFieldDefaultsAndAttachments(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	tool := Tool{
		Name:     "generate-qrcode",
		Endpoint: "/api/generate-qrcode",
		Inputs:   []InputMode{ModeURL},
		Fields: []Field{
			{Name: "fgColor", Kind: "color", Default: "#000000"},
			{Name: "style", Kind: "select", Default: "square"},
			{Name: "logo", Kind: "file"},
		},
		Response:    ResponseBinary,
		DefaultName: "qrcode.png",
	}
	backend := &mockBackend{resp: pngResponse()}
	ctrl := NewController(backend, nil, nil)

	out, err := ctrl.Submit(context.Background(), ToolRequest{
		Tool:        tool,
		Input:       FromURL("https://example.com"),
		Fields:      map[string]string{"style": "rounded", "ignored": "x"},
		Attachments: map[string]FileInput{"logo": {Name: "logo.png", Content: []byte("logo")}},
	}, &mockDownloader{})

	r.NoError(err)
	a.Equal("qrcode.png", out.Artifact.Filename)
	a.Equal("#000000", backend.payload.Form["fgColor"])
	a.Equal("rounded", backend.payload.Form["style"])
	a.NotContains(backend.payload.Form, "ignored")
	r.Len(backend.payload.Files, 1)
	a.Equal("logo", backend.payload.Files[0].Field)
}

func TestSubmit_FileOnURLOnlyTool_Unsupported(t *testing.T) {
	a := assert.New(t)

	tool := Tool{Name: "generate-qrcode", Inputs: []InputMode{ModeURL}, Response: ResponseBinary}
	backend := &mockBackend{resp: pngResponse()}
	ctrl := NewController(backend, nil, nil)

	_, err := ctrl.Submit(context.Background(), ToolRequest{Tool: tool, Input: FromFile("a.png", []byte("x"))}, &mockDownloader{})

	a.True(errors.Is(err, ErrUnsupportedInput))
}
