package valueobjects

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsUnknownKind(t *testing.T) {
	err := PodContent{Kind: "hologram"}.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsMismatchedPayload(t *testing.T) {
	content := PodContent{
		Kind: PodKindText,
		Text: &TextContent{Body: "hi"},
		LLM:  &LLMContent{Model: "m"},
	}
	assert.Error(t, content.Validate())

	content = PodContent{Kind: PodKindText, Webpage: &WebpageContent{URL: "https://x"}}
	assert.Error(t, content.Validate())
}

func TestValidateEnforcesRequiredFields(t *testing.T) {
	assert.Error(t, PodContent{Kind: PodKindLLM, LLM: &LLMContent{Prompt: "p"}}.Validate())
	assert.Error(t, PodContent{Kind: PodKindDocument, Document: &DocumentContent{FileName: "f"}}.Validate())
	assert.Error(t, PodContent{Kind: PodKindWebpage, Webpage: &WebpageContent{}}.Validate())

	assert.NoError(t, NewLLMContent("gpt-4", "summarize").Validate())
	assert.NoError(t, NewDocumentContent("notes.pdf", "docs/notes.pdf").Validate())
}

func TestWireFormIsFlat(t *testing.T) {
	raw, err := json.Marshal(NewTextContent("hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"text","body":"hello"}`, string(raw))
}

func TestUnmarshalDispatchesOnKind(t *testing.T) {
	var content PodContent
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"llm","model":"gpt-4","prompt":"hi"}`), &content))

	require.NotNil(t, content.LLM)
	assert.Equal(t, "gpt-4", content.LLM.Model)
	assert.Nil(t, content.Text)

	err := json.Unmarshal([]byte(`{"kind":"hologram"}`), &content)
	assert.Error(t, err)
}
