package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/interfaces"
	"github.com/RBarbieri13/decant/internal/models"
)

// stubLLM returns a canned schema completion or error.
type stubLLM struct {
	value     map[string]interface{}
	err       error
	available bool
	lastOpts  interfaces.CompletionOptions
}

func (s *stubLLM) Complete(ctx context.Context, messages []interfaces.Message, opts interfaces.CompletionOptions) (*interfaces.Completion, error) {
	return nil, common.NewError(common.ErrInternal, "not used")
}

func (s *stubLLM) CompleteWithSchema(ctx context.Context, messages []interfaces.Message, schema map[string]interface{}, opts interfaces.CompletionOptions) (*interfaces.SchemaCompletion, error) {
	s.lastOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	return &interfaces.SchemaCompletion{Value: s.value}, nil
}

func (s *stubLLM) Available() bool { return s.available }

type stubSiblings struct {
	codes []string
}

func (s *stubSiblings) SiblingCodes(ctx context.Context, view models.HierarchyView, prefix string) ([]string, error) {
	return s.codes, nil
}

func articleExtraction(title, content string) *models.ExtractionResult {
	return &models.ExtractionResult{
		Success:     true,
		ContentType: models.ContentTypeArticle,
		Data:        map[string]interface{}{"title": title, "content": content},
	}
}

func TestClassifier_SanitizesModelOutput(t *testing.T) {
	llm := &stubLLM{
		available: true,
		value: map[string]interface{}{
			"segment":      "a",
			"category":     "llm",
			"contentType":  "A",
			"organization": " OpenAI ",
			"confidence":   0.92,
			"keyConcepts":  []interface{}{"transformers", "attention", "", "scaling", "inference", "tokens", "extra"},
			"summary":      " A paper about transformers. ",
			"metadataTags": []interface{}{"TEC:Golang", "not a tag", "tec:golang", "ZZZ:mystery"},
		},
	}
	classifier := NewClassifier(arbor.NewLogger(), llm)

	result, err := classifier.Classify(context.Background(), "https://example.com", articleExtraction("Attention", "body"))
	require.NoError(t, err)
	assert.Equal(t, "A", result.Segment)
	assert.Equal(t, "LLM", result.Category)
	assert.Equal(t, "a", result.ContentType)
	assert.Equal(t, "OpenAI", result.Organization)
	assert.InDelta(t, 0.92, result.Confidence, 1e-9)
	assert.Len(t, result.KeyConcepts, 5, "concepts are capped at five")
	assert.Equal(t, "A paper about transformers.", result.Summary)
	assert.Equal(t, []string{"TEC:golang", "ORG:openai"}, result.MetadataTags,
		"tags are normalized, deduplicated, and the organization is appended")
}

func TestClassifier_InvalidFieldsFallBackIndividually(t *testing.T) {
	llm := &stubLLM{
		available: true,
		value: map[string]interface{}{
			"segment":      "ZZ",
			"category":     "this is not a mnemonic",
			"contentType":  "q",
			"organization": "",
			"confidence":   1.7,
		},
	}
	classifier := NewClassifier(arbor.NewLogger(), llm)

	result, err := classifier.Classify(context.Background(), "https://example.com", articleExtraction("t", "c"))
	require.NoError(t, err)
	assert.Equal(t, "U", result.Segment)
	assert.Equal(t, "INBOX", result.Category)
	assert.Equal(t, "o", result.ContentType)
	assert.Equal(t, "Uncategorized", result.Organization)
	assert.InDelta(t, 0.3, result.Confidence, 1e-9)
}

func TestClassifier_LLMFailureUsesFallback(t *testing.T) {
	llm := &stubLLM{available: true, err: common.NewError(common.ErrLLMParseError, "bad json")}
	classifier := NewClassifier(arbor.NewLogger(), llm)

	result, err := classifier.Classify(context.Background(), "https://example.com", articleExtraction("t", "c"))
	require.NoError(t, err)
	assert.Equal(t, models.FallbackClassification(), result)
}

func TestClassifier_UnavailableLLMUsesFallback(t *testing.T) {
	classifier := NewClassifier(arbor.NewLogger(), &stubLLM{available: false})
	result, err := classifier.Classify(context.Background(), "https://example.com", articleExtraction("t", "c"))
	require.NoError(t, err)
	assert.Equal(t, "U", result.Segment)

	classifier = NewClassifier(arbor.NewLogger(), nil)
	result, err = classifier.Classify(context.Background(), "https://example.com", articleExtraction("t", "c"))
	require.NoError(t, err)
	assert.Equal(t, "U", result.Segment)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "open_ai", Normalize("Open AI"))
	assert.Equal(t, "v1_2_3", Normalize("v1.2.3"))
	assert.Equal(t, "anthropic", Normalize("  Anthropic!  "))
	assert.Equal(t, "a_b", Normalize("a---b"))
	assert.Empty(t, Normalize("!!!"))
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "20240115", normalizeDate("2024-01-15T10:30:00Z"))
	assert.Equal(t, "20240115", normalizeDate("2024-01-15"))
	assert.Empty(t, normalizeDate("not a date"))
	assert.Empty(t, normalizeDate(""))
}

func TestDifferentiate_PriorityOrder(t *testing.T) {
	node := &models.Node{ID: "0a1b2c3d-0000-0000-0000-000000000000", Title: "Tool v2.1", Company: "Acme"}
	extraction := articleExtraction("Tool v2.1", "body")

	// Brand is free.
	tail, attribute := Differentiate(node, extraction, nil)
	assert.Equal(t, "acme", tail)
	assert.Equal(t, "brand", attribute)

	// Brand taken, version wins.
	tail, attribute = Differentiate(node, extraction, []string{"acme"})
	assert.Equal(t, "v2_1", tail)
	assert.Equal(t, "version", attribute)
}

func TestDifferentiate_UUIDFallback(t *testing.T) {
	node := &models.Node{ID: "0a1b2c3d-0000-0000-0000-000000000000"}
	extraction := &models.ExtractionResult{Data: map[string]interface{}{}}

	tail, attribute := Differentiate(node, extraction, nil)
	assert.Equal(t, "0a1b2c3d", tail)
	assert.Equal(t, "unique_id", attribute)
}

func TestDifferentiate_DateFromExtraction(t *testing.T) {
	node := &models.Node{ID: "0a1b2c3d-0000-0000-0000-000000000000"}
	extraction := &models.ExtractionResult{Data: map[string]interface{}{
		"publishedAt": "2024-06-01T00:00:00Z",
	}}

	tail, attribute := Differentiate(node, extraction, nil)
	assert.Equal(t, "20240601", tail)
	assert.Equal(t, "date", attribute)
}

func TestAssigner_AssignCodes(t *testing.T) {
	assigner := NewAssigner(arbor.NewLogger(), &stubSiblings{codes: []string{"acme"}})
	node := &models.Node{ID: "0a1b2c3d-0000-0000-0000-000000000000", Company: "Acme", Title: "Runner v3.0"}
	classification := &models.Classification{
		Segment: "A", Category: "LLM", ContentType: "a", Organization: "Acme Corp", Confidence: 0.9,
	}

	codes, change, err := assigner.AssignCodes(context.Background(), node, classification, articleExtraction("Runner v3.0", ""))
	require.NoError(t, err)
	assert.Equal(t, "A.LLM.a.v3_0", codes.Function, "brand collides with a sibling so version is used")
	assert.Equal(t, "INBOX.acme_corp", codes.Organization)

	require.NotNil(t, change)
	assert.Equal(t, models.ChangeCreated, change.ChangeType)
	assert.Equal(t, models.TriggerImport, change.TriggeredBy)
	assert.Equal(t, codes.Function, change.NewCode)
	assert.Equal(t, "version", change.Metadata["differentiator"])
}

func TestOrganizationCode(t *testing.T) {
	assert.Equal(t, "INBOX.open_ai", organizationCode("Open AI"))
	assert.Equal(t, "INBOX.uncategorized", organizationCode(""))
	assert.Equal(t, "INBOX.uncategorized", organizationCode("!!!"))
}
