package modeldump

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Style selects the output of Render.
type Style string

const (
	StyleJSON Style = "json" // {"model": report} on one line
	StyleHTML Style = "html" // self-contained page with the report burned in
)

// ParseStyle parses the name of an output style.
func ParseStyle(s string) (Style, error) {
	switch style := Style(s); style {
	case StyleJSON, StyleHTML:
		return style, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStyle, s)
}

// burnInPlaceholder is the statement of the skeleton BurnIn rewrites.
const burnInPlaceholder = "BURNED_IN_MODEL_INFO = null"

//go:embed skeleton.html
var skeleton string

// envelope is the top-level JSON document.
type envelope struct {
	Model *Report `json:"model"`
}

// InlineSkeleton returns the page skeleton. It loads model_info.json from
// its own location unless model info is burned in with BurnIn.
//
// The page does not fetch any code from the network.
func InlineSkeleton() string {
	return skeleton
}

// WriteJSON writes report as {"model": report} followed by a newline.
func WriteJSON(w io.Writer, report *Report) error {
	if err := json.NewEncoder(w).Encode(envelope{Model: report}); err != nil {
		return fmt.Errorf("modeldump: %w", err)
	}
	return nil
}

// BurnIn returns page with report embedded in place of the placeholder
// model info.
//
// Every / of the embedded JSON is escaped so that the page markup can not
// be closed from within the data.
func BurnIn(page string, report *Report) (string, error) {
	data, err := json.Marshal(envelope{Model: report})
	if err != nil {
		return "", fmt.Errorf("modeldump: %w", err)
	}
	info := strings.ReplaceAll(string(data), "/", `\/`)
	return strings.ReplaceAll(page, burnInPlaceholder, "BURNED_IN_MODEL_INFO = "+info), nil
}

// Render writes report to w in the given style.
func Render(w io.Writer, report *Report, style Style) error {
	switch style {
	case StyleJSON:
		return WriteJSON(w, report)
	case StyleHTML:
		page, err := BurnIn(InlineSkeleton(), report)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, page); err != nil {
			return fmt.Errorf("modeldump: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStyle, style)
}
