package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"eventlog/api/internal/blockdoc"
)

// ErrUnsupportedInput is returned for values with no defined interpretation.
// Receiving one is a caller bug.
var ErrUnsupportedInput = errors.New("unsupported eventlog input")

type Shape string

const (
	ShapeCanonical  Shape = "canonical"
	ShapeStructured Shape = "structured"
	ShapeHTML       Shape = "html"
	ShapePlainText  Shape = "plain_text"
	ShapeEmpty      Shape = "empty"
)

// Input is the closed set of shapes the normalizer accepts. Only the types
// in this file implement it.
type Input interface {
	shape() Shape
}

// Canonical is an EventLog that already carries a block document.
type Canonical struct {
	Log blockdoc.EventLog
}

// StructuredText is a serialized document: a Slate node array (including
// the legacy timestamp-divider form), a ProseMirror doc, or an EventLog
// object.
type StructuredText struct {
	JSON string
}

type HTML struct {
	Body string
}

type PlainText struct {
	Text string
}

type Empty struct{}

func (Canonical) shape() Shape      { return ShapeCanonical }
func (StructuredText) shape() Shape { return ShapeStructured }
func (HTML) shape() Shape           { return ShapeHTML }
func (PlainText) shape() Shape      { return ShapePlainText }
func (Empty) shape() Shape          { return ShapeEmpty }

// ShapeOf reports the shape of in. A nil input is empty.
func ShapeOf(in Input) Shape {
	if in == nil {
		return ShapeEmpty
	}
	return in.shape()
}

var htmlTagRe = regexp.MustCompile(`(?i)<(?:p|div|span|br|hr|h[1-6]|ul|ol|li|table|tr|td|html|body|b|i|u|s|strong|em|a|font|o:p)\b[^>]*>`)

// Classify maps an arbitrary decoded value onto an Input.
func Classify(raw any) (Input, error) {
	switch v := raw.(type) {
	case nil:
		return Empty{}, nil
	case Input:
		return v, nil
	case blockdoc.EventLog:
		return Canonical{Log: v}, nil
	case *blockdoc.EventLog:
		if v == nil {
			return Empty{}, nil
		}
		return Canonical{Log: *v}, nil
	case blockdoc.Document:
		return Canonical{Log: blockdoc.EventLog{Document: v}}, nil
	case *blockdoc.Document:
		if v == nil {
			return Empty{}, nil
		}
		return Canonical{Log: blockdoc.EventLog{Document: *v}}, nil
	case string:
		return ClassifyString(v), nil
	case []byte:
		return ClassifyString(string(v)), nil
	case json.RawMessage:
		return ClassifyString(string(v)), nil
	case []any:
		return marshalStructured(v)
	case map[string]any:
		return classifyObject(v)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedInput, raw)
	}
}

// ClassifyString sniffs a text value: JSON documents are structured, markup
// is HTML, anything else non-blank is plain text.
func ClassifyString(s string) Input {
	trimmed := strings.TrimSpace(s)
	switch {
	case trimmed == "":
		return Empty{}
	case (trimmed[0] == '[' || trimmed[0] == '{') && json.Valid([]byte(trimmed)):
		return StructuredText{JSON: trimmed}
	case looksLikeHTML(trimmed):
		return HTML{Body: s}
	default:
		return PlainText{Text: s}
	}
}

func looksLikeHTML(s string) bool {
	return htmlTagRe.MatchString(s)
}

func classifyObject(obj map[string]any) (Input, error) {
	if s, ok := obj["slateJson"].(string); ok {
		return ClassifyString(s), nil
	}
	if s, ok := obj["html"].(string); ok {
		if strings.TrimSpace(s) == "" {
			return Empty{}, nil
		}
		return HTML{Body: s}, nil
	}
	if t, _ := obj["type"].(string); t == "doc" {
		return marshalStructured(obj)
	}
	if _, ok := obj["document"]; ok {
		return marshalStructured(obj)
	}
	if _, ok := obj["nodes"]; ok {
		return marshalStructured(obj)
	}
	for _, key := range []string{"plainText", "text"} {
		if s, ok := obj[key].(string); ok {
			return ClassifyString(s), nil
		}
	}
	return nil, fmt.Errorf("%w: object without document fields", ErrUnsupportedInput)
}

func marshalStructured(v any) (Input, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedInput, err)
	}
	return StructuredText{JSON: string(raw)}, nil
}
