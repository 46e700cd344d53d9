// Package export renders report snapshots as JSON text or as a
// self-contained HTML page with the snapshot embedded compressed.
package export

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/fastjson"

	"github.com/roach88/autopsy/internal/report"
)

// DefaultTemplate is the HTML page the report is embedded into.
//
//go:embed template.html
var DefaultTemplate string

var (
	// ErrNoMarker is returned when a template has no data script element.
	ErrNoMarker = errors.New("template has no autopsy-data script element")
	// ErrMultipleMarkers is returned when a template has more than one.
	ErrMultipleMarkers = errors.New("template has more than one autopsy-data script element")
	// ErrNoPayload is returned by DecodeHTML when the page carries no
	// compressed snapshot.
	ErrNoPayload = errors.New("html has no compressed autopsy-data payload")
)

var (
	dataMarker    = regexp.MustCompile(`(?s)<script id="autopsy-data" type="application/json">(.*?)</script>`)
	payloadMarker = regexp.MustCompile(`(?s)<script id="autopsy-data" type="application/json" data-compressed="gzip">(.*?)</script>`)
)

const (
	compressedOpen = `<script id="autopsy-data" type="application/json" data-compressed="gzip">`
	scriptClose    = `</script>`
)

// Source is a report that can be exported to a file.
type Source interface {
	Export() *report.Snapshot
	MarkWritten()
}

// ToJSON renders snap as indented JSON. Object keys are sorted; HTML
// characters are not escaped.
func ToJSON(snap *report.Snapshot) (string, error) {
	data, err := marshal(snap)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func marshal(snap *report.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ToHTML embeds snap into template. The JSON is gzip-compressed at best
// compression and base64-encoded into the template's single data element,
// which is tagged data-compressed="gzip".
func ToHTML(snap *report.Snapshot, template string) (string, error) {
	data, err := marshal(snap)
	if err != nil {
		return "", err
	}
	return EmbedJSON(data, template)
}

// EmbedJSON is ToHTML for snapshot JSON that was already rendered.
func EmbedJSON(data []byte, template string) (string, error) {
	matches := dataMarker.FindAllStringIndex(template, -1)
	switch len(matches) {
	case 0:
		return "", ErrNoMarker
	case 1:
	default:
		return "", ErrMultipleMarkers
	}
	if err := fastjson.ValidateBytes(data); err != nil {
		return "", fmt.Errorf("snapshot is not json: %w", err)
	}

	payload, err := compress(data)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.Grow(len(template) + len(payload) + len(compressedOpen))
	sb.WriteString(template[:matches[0][0]])
	sb.WriteString(compressedOpen)
	sb.WriteString(payload)
	sb.WriteString(scriptClose)
	sb.WriteString(template[matches[0][1]:])
	return sb.String(), nil
}

func compress(data []byte) (string, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeHTML extracts the snapshot JSON embedded by ToHTML.
func DecodeHTML(html string) ([]byte, error) {
	m := payloadMarker.FindStringSubmatch(html)
	if m == nil {
		return nil, ErrNoPayload
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(m[1]))
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	if err := fastjson.ValidateBytes(data); err != nil {
		return nil, fmt.Errorf("payload is not json: %w", err)
	}
	return data, nil
}

// ValidJSON reports whether s is a complete JSON value.
func ValidJSON(s string) bool {
	return fastjson.Validate(s) == nil
}

// WriteJSON exports src as JSON to path, marks it written and returns the
// text written.
func WriteJSON(src Source, path string) (string, error) {
	text, err := ToJSON(src.Export())
	if err != nil {
		return "", err
	}
	if err := writeFile(path, text); err != nil {
		return "", err
	}
	src.MarkWritten()
	return text, nil
}

// WriteHTML exports src as HTML to path, marks it written and returns the
// page written. An empty template selects DefaultTemplate.
func WriteHTML(src Source, path, template string) (string, error) {
	if template == "" {
		template = DefaultTemplate
	}
	html, err := ToHTML(src.Export(), template)
	if err != nil {
		return "", err
	}
	if err := writeFile(path, html); err != nil {
		return "", err
	}
	src.MarkWritten()
	return html, nil
}

func writeFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
