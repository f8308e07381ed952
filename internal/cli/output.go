package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/TheLazyLemur/benpdf/internal/render"
	"github.com/TheLazyLemur/benpdf/internal/tools"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	valueStyle = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func printSaved(w io.Writer, path string, a *core.Artifact) error {
	_, err := fmt.Fprintf(w, "%s %s (%s, %d bytes)\n", labelStyle.Render("saved"), path, a.MIMEType, a.Size)
	return err
}

func printRaw(w io.Writer, raw json.RawMessage) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return errors.Wrap(err, "formatting response")
	}
	pretty.WriteByte('\n')
	_, err := pretty.WriteTo(w)
	return err
}

func printUnit(w io.Writer, v float64) error {
	_, err := fmt.Fprintf(w, "%s %s\n", labelStyle.Render("result"), valueStyle.Render(strconv.FormatFloat(v, 'f', -1, 64)))
	return err
}

// printResult renders the known JSON results with their worked steps. Other
// tools fall back to the raw JSON.
func printResult(w io.Writer, tool core.Tool, raw json.RawMessage) error {
	switch tool.Name {
	case "convert-base":
		res, err := tools.Decode[tools.BaseResult](raw)
		if err != nil {
			return err
		}
		if res.Error != "" {
			return backendMessage(res.Error)
		}
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("result"), valueStyle.Render(res.Primary()))
		for _, t := range res.Transcripts() {
			fmt.Fprintf(w, "\n%s\n", render.ParseSteps(t).Terminal())
		}
		return nil

	case "calculus":
		res, err := tools.Decode[tools.CalculusResult](raw)
		if err != nil {
			return err
		}
		if res.Error != "" {
			return backendMessage(res.Error)
		}
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("result"), valueStyle.Render(res.Result))
		if len(res.Steps) > 0 {
			fmt.Fprintf(w, "\n%s\n", render.FromLines(res.Steps).Terminal())
		}
		return nil

	case "convert-unit":
		res, err := tools.Decode[tools.UnitResult](raw)
		if err != nil {
			return err
		}
		if res.Result == nil {
			if res.Error != "" {
				return backendMessage(res.Error)
			}
			return backendMessage("no result")
		}
		return printUnit(w, *res.Result)
	}
	return printRaw(w, raw)
}

func backendMessage(msg string) error {
	return &core.StructuredError{Kind: core.KindBackend, Message: msg}
}

// FormatError renders a command error for stderr.
func FormatError(err error) string {
	var se *core.StructuredError
	if errors.As(err, &se) {
		return errorStyle.Render(string(se.Kind)) + " " + se.Message
	}
	return errorStyle.Render("error") + " " + err.Error()
}

func errNotConfigured(what string) error {
	return errors.Errorf("%s is not configured", what)
}
