package report

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dohr-michael/crewd/internal/storage"
)

// Format selects the representation of a stored report.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
)

// NormalizeFormat maps request values onto a known Format. Unknown values
// fall back to markdown rather than erroring.
func NormalizeFormat(s string) Format {
	switch Format(s) {
	case FormatJSON, FormatHTML:
		return Format(s)
	case "md", FormatMarkdown:
		return FormatMarkdown
	default:
		return FormatMarkdown
	}
}

// ContentType returns the response content type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "text/markdown; charset=utf-8"
	}
}

var htmlRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML converts Markdown to HTML.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := htmlRenderer.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

// Negotiate renders a stored report in the requested format. Stored
// metadata variants (json_content, html_content) win over re-derivation,
// so a report keeps the exact shape it was materialized with.
func Negotiate(rec *storage.ReportRecord, format Format) (body []byte, contentType string, err error) {
	switch format {
	case FormatJSON:
		if raw, ok := rec.Metadata["json_content"]; ok {
			data, merr := json.Marshal(raw)
			if merr == nil {
				return data, format.ContentType(), nil
			}
		}
		data, merr := json.Marshal(ParseMarkdown(rec.Content))
		if merr != nil {
			return nil, "", fmt.Errorf("encode parsed report: %w", merr)
		}
		return data, format.ContentType(), nil

	case FormatHTML:
		if raw, ok := rec.Metadata["html_content"].(string); ok && raw != "" {
			return []byte(raw), format.ContentType(), nil
		}
		html, herr := RenderHTML(rec.Content)
		if herr != nil {
			return nil, "", herr
		}
		return []byte(html), format.ContentType(), nil

	default:
		return []byte(rec.Content), FormatMarkdown.ContentType(), nil
	}
}
