package valueobjects

import (
	"encoding/json"
	"fmt"
	"strings"

	pkgerrors "flopods-backend/pkg/errors"
)

// PodKind identifies the type of a pod. The set is closed: a pod keeps its
// kind for its entire lifetime.
type PodKind string

const (
	PodKindText     PodKind = "text"
	PodKindLLM      PodKind = "llm"
	PodKindDocument PodKind = "document"
	PodKindWebpage  PodKind = "webpage"
)

// ValidPodKind reports whether k is one of the known pod kinds
func ValidPodKind(k PodKind) bool {
	switch k {
	case PodKindText, PodKindLLM, PodKindDocument, PodKindWebpage:
		return true
	}
	return false
}

// TextContent is the payload of a text pod
type TextContent struct {
	Body string `json:"body"`
}

// LLMContent is the payload of an llm pod
type LLMContent struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Response    string  `json:"response,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// DocumentContent is the payload of a document pod
type DocumentContent struct {
	FileName string `json:"fileName"`
	FileKey  string `json:"fileKey"`
	MimeType string `json:"mimeType,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// WebpageContent is the payload of a webpage pod
type WebpageContent struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// PodContent is a tagged union over the closed set of pod kinds. Exactly one
// payload field is set, matching Kind.
type PodContent struct {
	Kind     PodKind          `json:"kind"`
	Text     *TextContent     `json:"text,omitempty"`
	LLM      *LLMContent      `json:"llm,omitempty"`
	Document *DocumentContent `json:"document,omitempty"`
	Webpage  *WebpageContent  `json:"webpage,omitempty"`
}

// NewTextContent creates text pod content
func NewTextContent(body string) PodContent {
	return PodContent{Kind: PodKindText, Text: &TextContent{Body: body}}
}

// NewLLMContent creates llm pod content
func NewLLMContent(model, prompt string) PodContent {
	return PodContent{Kind: PodKindLLM, LLM: &LLMContent{Model: model, Prompt: prompt}}
}

// NewDocumentContent creates document pod content
func NewDocumentContent(fileName, fileKey string) PodContent {
	return PodContent{Kind: PodKindDocument, Document: &DocumentContent{FileName: fileName, FileKey: fileKey}}
}

// NewWebpageContent creates webpage pod content
func NewWebpageContent(url string) PodContent {
	return PodContent{Kind: PodKindWebpage, Webpage: &WebpageContent{URL: url}}
}

// Validate checks that the union is well-formed: a known kind, the matching
// payload present, and no payload from another kind set.
func (c PodContent) Validate() error {
	if !ValidPodKind(c.Kind) {
		return pkgerrors.NewValidationError(fmt.Sprintf("unknown pod kind %q", c.Kind))
	}

	set := 0
	if c.Text != nil {
		set++
	}
	if c.LLM != nil {
		set++
	}
	if c.Document != nil {
		set++
	}
	if c.Webpage != nil {
		set++
	}
	if set != 1 {
		return pkgerrors.NewValidationError("pod content must carry exactly one payload")
	}

	switch c.Kind {
	case PodKindText:
		if c.Text == nil {
			return pkgerrors.NewValidationError("text pod requires a text payload")
		}
	case PodKindLLM:
		if c.LLM == nil {
			return pkgerrors.NewValidationError("llm pod requires an llm payload")
		}
		if strings.TrimSpace(c.LLM.Model) == "" {
			return pkgerrors.NewValidationError("llm pod requires a model")
		}
	case PodKindDocument:
		if c.Document == nil {
			return pkgerrors.NewValidationError("document pod requires a document payload")
		}
		if c.Document.FileKey == "" {
			return pkgerrors.NewValidationError("document pod requires a file key")
		}
	case PodKindWebpage:
		if c.Webpage == nil {
			return pkgerrors.NewValidationError("webpage pod requires a webpage payload")
		}
		if strings.TrimSpace(c.Webpage.URL) == "" {
			return pkgerrors.NewValidationError("webpage pod requires a url")
		}
	}

	return nil
}

// MarshalJSON keeps the wire form flat: {"kind": "...", <payload fields>}
func (c PodContent) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch c.Kind {
	case PodKindText:
		payload = c.Text
	case PodKindLLM:
		payload = c.LLM
	case PodKindDocument:
		payload = c.Document
	case PodKindWebpage:
		payload = c.Webpage
	default:
		return nil, fmt.Errorf("cannot marshal unknown pod kind %q", c.Kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	kind, err := json.Marshal(c.Kind)
	if err != nil {
		return nil, err
	}
	fields["kind"] = kind

	return json.Marshal(fields)
}

// UnmarshalJSON dispatches on the "kind" discriminator
func (c *PodContent) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind PodKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	c.Kind = probe.Kind
	c.Text, c.LLM, c.Document, c.Webpage = nil, nil, nil, nil

	switch probe.Kind {
	case PodKindText:
		c.Text = &TextContent{}
		return json.Unmarshal(data, c.Text)
	case PodKindLLM:
		c.LLM = &LLMContent{}
		return json.Unmarshal(data, c.LLM)
	case PodKindDocument:
		c.Document = &DocumentContent{}
		return json.Unmarshal(data, c.Document)
	case PodKindWebpage:
		c.Webpage = &WebpageContent{}
		return json.Unmarshal(data, c.Webpage)
	default:
		return fmt.Errorf("cannot unmarshal unknown pod kind %q", probe.Kind)
	}
}
