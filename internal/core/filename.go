package core

import (
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const fallbackStem = "converted-file"

// Mirrors filename[^;=\n]*=(['"]?)(.*?)\1(;|$) with the quote back-reference
// spelled out as alternatives.
var dispositionRe = regexp.MustCompile(`filename[^;=\n]*=(?:"([^"]*)"|'([^']*)'|([^;\n]*))`)

var placeholderRe = regexp.MustCompile(`\{[A-Za-z0-9_]+\}`)

// FilenameFromDisposition extracts the filename directive of a
// Content-Disposition header. It returns "" when none is present.
func FilenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	// extended filename*= values are percent-encoded
	if strings.Contains(header, "filename*") {
		if _, params, err := mime.ParseMediaType(header); err == nil {
			if name := strings.TrimSpace(params["filename"]); name != "" {
				return name
			}
		}
	}
	m := dispositionRe.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if name := strings.TrimSpace(g); name != "" {
			return name
		}
	}
	return ""
}

// DefaultFilename interpolates the tool's template. It returns "" when the tool
// has no template or a placeholder cannot be resolved.
func DefaultFilename(tool Tool, req ToolRequest) string {
	if tool.DefaultName == "" {
		return ""
	}
	pairs := make([]string, 0, 2*len(req.Fields)+4)
	for k, v := range req.Fields {
		if v != "" {
			pairs = append(pairs, "{"+k+"}", v)
		}
	}
	if req.Input.Mode == ModeFile && req.Input.File != nil {
		pairs = append(pairs, "{stem}", req.Input.File.Stem())
		ext := strings.ToLower(filepath.Ext(req.Input.File.Name))
		if mapped, ok := tool.ExtMap[ext]; ok {
			pairs = append(pairs, "{ext}", mapped)
		}
	}
	name := strings.NewReplacer(pairs...).Replace(tool.DefaultName)
	if placeholderRe.MatchString(name) {
		return ""
	}
	return name
}

// MIMEFilename builds converted-file plus an extension guessed from mimeType.
func MIMEFilename(mimeType string) string {
	t := strings.ToLower(mimeType)
	switch {
	case strings.Contains(t, "png"):
		return fallbackStem + ".png"
	case strings.Contains(t, "pdf"):
		return fallbackStem + ".pdf"
	case strings.Contains(t, "docx"), strings.Contains(t, "wordprocessingml"):
		return fallbackStem + ".docx"
	case strings.Contains(t, "icon"):
		return fallbackStem + ".ico"
	}
	if m := mimetype.Lookup(mediaType(t)); m != nil && m.Extension() != "" {
		return fallbackStem + m.Extension()
	}
	return fallbackStem
}

// ResolveFilename applies header, then tool default, then MIME precedence.
func ResolveFilename(tool Tool, req ToolRequest, header http.Header, mimeType string) string {
	if name := FilenameFromDisposition(header.Get("Content-Disposition")); name != "" {
		return name
	}
	if name := DefaultFilename(tool, req); name != "" {
		return name
	}
	return MIMEFilename(mimeType)
}

// DetectMIME prefers the declared Content-Type and sniffs the body when the
// header is missing or generic.
func DetectMIME(header http.Header, body []byte) string {
	if mt := mediaType(header.Get("Content-Type")); mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if len(body) == 0 {
		return "application/octet-stream"
	}
	return mediaType(mimetype.Detect(body).String())
}

func mediaType(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.TrimSpace(strings.SplitN(v, ";", 2)[0])
	}
	return mt
}
