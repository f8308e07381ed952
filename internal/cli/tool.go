package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/TheLazyLemur/benpdf/internal/tools"
	"github.com/mdp/qrterminal/v3"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"rsc.io/qr"
)

// short names for the tools used most from a terminal
var aliases = map[string][]string{
	"convert-base":    {"base"},
	"convert-unit":    {"unit"},
	"generate-qrcode": {"qr"},
	"convert-image":   {"image"},
}

type toolFlags struct {
	file    string
	url     string
	out     string
	raw     bool
	preview bool
	extra   []string
	fields  map[string]*string
}

// ToolCmd builds the subcommand for one catalog tool. Source tools take the
// file or URL as a flag or as the single argument; every declared field
// becomes a flag of the same name.
func ToolCmd(deps *Deps, tool core.Tool) *cobra.Command {
	flags := &toolFlags{fields: make(map[string]*string, len(tool.Fields))}

	cmd := &cobra.Command{
		Use:     tool.Name,
		Aliases: aliases[tool.Name],
		Short:   tool.Description,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if !tool.RequiresSource() {
					return errors.Errorf("%s takes no positional argument", tool.Name)
				}
				if tool.Supports(core.ModeURL) && (strings.Contains(args[0], "://") || !tool.Supports(core.ModeFile)) {
					flags.url = args[0]
				} else {
					flags.file = args[0]
				}
			}
			if flags.preview {
				return previewQR(cmd, flags)
			}
			return runTool(cmd, deps, tool, flags)
		},
	}

	fs := cmd.Flags()
	if tool.Supports(core.ModeFile) {
		fs.StringVarP(&flags.file, "file", "f", "", "input file")
	}
	if tool.Supports(core.ModeURL) {
		fs.StringVarP(&flags.url, "url", "u", "", "input URL or text")
	}
	if tool.Response == core.ResponseBinary {
		fs.StringVarP(&flags.out, "out", "o", deps.Config.DownloadDir, "directory to save the result in")
	} else {
		fs.BoolVar(&flags.raw, "json", false, "print the raw JSON response")
	}
	if tool.Name == "generate-qrcode" {
		fs.BoolVar(&flags.preview, "preview", false, "print the code in the terminal instead of calling the backend; Q error correction previews as H")
	}
	for _, f := range tool.Fields {
		usage := f.Label
		if len(f.Options) > 0 {
			usage += " (" + strings.Join(f.Options, ", ") + ")"
		}
		if f.IsFile() {
			usage += " file"
		}
		flags.fields[f.Name] = fs.String(f.Name, f.Default, usage)
	}
	fs.StringArrayVar(&flags.extra, "field", nil, "declared field as key=value, repeatable")

	return cmd
}

func runTool(cmd *cobra.Command, deps *Deps, tool core.Tool, flags *toolFlags) error {
	req, done, err := buildRequest(cmd, deps, tool, flags)
	if err != nil || done {
		return err
	}

	saver := NewFileSaver(flags.out)
	outcome, err := deps.Submitter.Submit(cmd.Context(), req, saver)
	if err != nil {
		return err
	}
	if outcome.Artifact != nil {
		return printSaved(cmd.OutOrStdout(), saver.Saved, outcome.Artifact)
	}
	if flags.raw {
		return printRaw(cmd.OutOrStdout(), outcome.JSON)
	}
	return printResult(cmd.OutOrStdout(), tool, outcome.JSON)
}

// buildRequest collects flags into a request. done is true when the result
// was answered locally.
func buildRequest(cmd *cobra.Command, deps *Deps, tool core.Tool, flags *toolFlags) (req core.ToolRequest, done bool, err error) {
	req = core.ToolRequest{Tool: tool, Fields: make(map[string]string, len(flags.fields))}
	for _, f := range tool.Fields {
		if v := strings.TrimSpace(*flags.fields[f.Name]); v != "" && !f.IsFile() {
			req.Fields[f.Name] = v
		}
	}
	// --field wins over the per-field flag defaults
	for _, kv := range flags.extra {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return req, false, core.InputRequired("invalid --field %q, want key=value", kv)
		}
		k = strings.TrimSpace(k)
		f, declared := tool.Field(k)
		if !declared {
			return req, false, core.InputRequired("%s has no field %q", tool.Name, k)
		}
		if f.IsFile() {
			*flags.fields[k] = v
			continue
		}
		req.Fields[k] = strings.TrimSpace(v)
	}

	if tool.Response == core.ResponseJSON {
		payload, err := tools.JSONPayload(tool, req.Fields)
		if err != nil {
			return req, false, err
		}
		if u, ok := payload.(tools.UnitRequest); ok && u.Trivial() {
			return req, true, printUnit(cmd.OutOrStdout(), u.Value)
		}
		req.Input = core.FromJSON(payload)
		return req, false, nil
	}

	if flags.file != "" && flags.url != "" {
		return req, false, core.InputRequired("give either a file or a URL, not both")
	}

	switch {
	case flags.file != "":
		file, err := readSource(deps, flags.file)
		if err != nil {
			return req, false, err
		}
		if !tools.Accepts(tool, file.Name, file.Content) {
			return req, false, core.InputRequired("%s is not a supported file type for %s", file.Name, tool.Title)
		}
		req.Input = core.Input{Mode: core.ModeFile, File: file}
	case flags.url != "":
		if deps.Checker != nil {
			if allow, reason := deps.Checker.Check(core.ModeURL, flags.url); !allow {
				return req, false, core.InputRequired("%s", reason)
			}
		}
		req.Input = core.FromURL(flags.url)
	}

	for _, f := range tool.Fields {
		path := strings.TrimSpace(*flags.fields[f.Name])
		if !f.IsFile() || path == "" {
			continue
		}
		file, err := readSource(deps, path)
		if err != nil {
			return req, false, err
		}
		if req.Attachments == nil {
			req.Attachments = make(map[string]core.FileInput)
		}
		req.Attachments[f.Name] = *file
	}
	return req, false, nil
}

func readSource(deps *Deps, path string) (*core.FileInput, error) {
	if deps.Checker != nil {
		if allow, reason := deps.Checker.Check(core.ModeFile, path); !allow {
			return nil, core.InputRequired("%s", reason)
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return &core.FileInput{Name: filepath.Base(path), Content: content}, nil
}

// previewLevel maps an error correction name to the levels qrterminal
// renders. It has no Q, so Q rounds up to H.
func previewLevel(name string) qr.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "L":
		return qrterminal.L
	case "M":
		return qrterminal.M
	default:
		return qrterminal.H
	}
}

// previewQR renders the code locally. Styling fields are ignored.
func previewQR(cmd *cobra.Command, flags *toolFlags) error {
	if flags.url == "" {
		return core.InputRequired("please enter a URL or text for the QR code")
	}
	level := qrterminal.H
	if p, ok := flags.fields["errorCorrection"]; ok {
		level = previewLevel(*p)
	}
	qrterminal.GenerateHalfBlock(flags.url, level, cmd.OutOrStdout())
	return nil
}
