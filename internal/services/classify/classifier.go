package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/interfaces"
	"github.com/RBarbieri13/decant/internal/models"
)

// maxClassifyContent bounds the extracted content fed to the model.
const maxClassifyContent = 4000

// maxKeyConcepts caps the concepts kept from a classification.
const maxKeyConcepts = 5

// segmentCodes is the closed vocabulary for the function-hierarchy root.
var segmentCodes = map[string]string{
	"A": "AI & Machine Learning",
	"S": "Software Engineering",
	"D": "Data & Analytics",
	"B": "Business & Strategy",
	"X": "Design & UX",
	"R": "Science & Research",
	"U": "Uncategorized",
}

// contentTypeCodes is the closed vocabulary for the content-type position.
var contentTypeCodes = map[string]string{
	"a": "article or blog post",
	"v": "video",
	"r": "code repository",
	"t": "social media post",
	"d": "documentation or reference",
	"p": "paper or publication",
	"l": "tool or product",
	"o": "other",
}

// Classifier asks the LLM for a structured classification of extracted
// content. Every failure path degrades to the fallback classification so
// the import pipeline never aborts here.
type Classifier struct {
	logger arbor.ILogger
	llm    interfaces.LLMService
}

func NewClassifier(logger arbor.ILogger, llm interfaces.LLMService) *Classifier {
	return &Classifier{logger: logger, llm: llm}
}

// Classify produces segment/category/contentType/organization codes plus
// key concepts and a short summary for one extraction.
func (c *Classifier) Classify(ctx context.Context, url string, extraction *models.ExtractionResult) (*models.Classification, error) {
	if c.llm == nil || !c.llm.Available() {
		c.logger.Debug().Str("url", url).Msg("LLM unavailable, using fallback classification")
		return models.FallbackClassification(), nil
	}

	completion, err := c.llm.CompleteWithSchema(ctx, c.buildMessages(url, extraction), classificationSchema(), interfaces.CompletionOptions{})
	if err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("Classification failed, using fallback")
		return models.FallbackClassification(), nil
	}

	return c.sanitize(completion.Value), nil
}

func (c *Classifier) buildMessages(url string, extraction *models.ExtractionResult) []interfaces.Message {
	var sb strings.Builder
	sb.WriteString("URL: " + url + "\n")
	if title := extraction.Title(); title != "" {
		sb.WriteString("Title: " + title + "\n")
	}
	sb.WriteString("Content type hint: " + extraction.ContentType + "\n")
	if content := extraction.TextContent(); content != "" {
		if len(content) > maxClassifyContent {
			content = content[:maxClassifyContent]
		}
		sb.WriteString("Content:\n" + content + "\n")
	}

	return []interfaces.Message{
		{Role: "system", Content: classificationSystemPrompt()},
		{Role: "user", Content: sb.String()},
	}
}

func classificationSystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You classify saved web content for a personal knowledge base.\n")
	sb.WriteString("Segments (pick exactly one code):\n")
	for _, code := range []string{"A", "S", "D", "B", "X", "R", "U"} {
		fmt.Fprintf(&sb, "  %s = %s\n", code, segmentCodes[code])
	}
	sb.WriteString("Content types (pick exactly one code):\n")
	for _, code := range []string{"a", "v", "r", "t", "d", "p", "l", "o"} {
		fmt.Fprintf(&sb, "  %s = %s\n", code, contentTypeCodes[code])
	}
	sb.WriteString("The category is a short uppercase mnemonic of 2-6 letters, e.g. LLM, DEVOPS, FRONTEND.\n")
	sb.WriteString("The organization is the company, project, or creator behind the content, or Uncategorized.\n")
	return sb.String()
}

func classificationSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"segment": map[string]interface{}{
				"type":        "string",
				"description": "single-character segment code",
				"enum":        []interface{}{"A", "S", "D", "B", "X", "R", "U"},
			},
			"category": map[string]interface{}{
				"type":        "string",
				"description": "short uppercase mnemonic, 2-6 letters",
			},
			"contentType": map[string]interface{}{
				"type":        "string",
				"description": "single-character content type code",
				"enum":        []interface{}{"a", "v", "r", "t", "d", "p", "l", "o"},
			},
			"organization": map[string]interface{}{
				"type":        "string",
				"description": "company, project, or creator behind the content",
			},
			"confidence": map[string]interface{}{
				"type":    "number",
				"minimum": float64(0),
				"maximum": float64(1),
			},
			"keyConcepts": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"summary": map[string]interface{}{
				"type":        "string",
				"description": "one to two sentence summary",
			},
			"metadataTags": map[string]interface{}{
				"type":        "array",
				"description": "typed tags in TYPE:code form, e.g. ORG:openai, TEC:golang",
				"items":       map[string]interface{}{"type": "string"},
			},
		},
		"required": []interface{}{"segment", "category", "contentType", "organization", "confidence"},
	}
}

// sanitize validates the model's answer field by field, substituting the
// fallback value for anything missing or out of vocabulary.
func (c *Classifier) sanitize(value map[string]interface{}) *models.Classification {
	fallback := models.FallbackClassification()
	result := &models.Classification{
		Segment:      fallback.Segment,
		Category:     fallback.Category,
		ContentType:  fallback.ContentType,
		Organization: fallback.Organization,
		Confidence:   fallback.Confidence,
	}

	if segment, ok := value["segment"].(string); ok {
		segment = strings.ToUpper(strings.TrimSpace(segment))
		if _, known := segmentCodes[segment]; known {
			result.Segment = segment
		}
	}
	if category, ok := value["category"].(string); ok {
		category = strings.ToUpper(strings.TrimSpace(category))
		if isMnemonic(category) {
			result.Category = category
		}
	}
	if contentType, ok := value["contentType"].(string); ok {
		contentType = strings.ToLower(strings.TrimSpace(contentType))
		if _, known := contentTypeCodes[contentType]; known {
			result.ContentType = contentType
		}
	}
	if organization, ok := value["organization"].(string); ok {
		if organization = strings.TrimSpace(organization); organization != "" {
			result.Organization = organization
		}
	}
	if confidence, ok := value["confidence"].(float64); ok && confidence >= 0 && confidence <= 1 {
		result.Confidence = confidence
	}
	if concepts, ok := value["keyConcepts"].([]interface{}); ok {
		for _, raw := range concepts {
			concept, ok := raw.(string)
			if !ok || strings.TrimSpace(concept) == "" {
				continue
			}
			result.KeyConcepts = append(result.KeyConcepts, strings.TrimSpace(concept))
			if len(result.KeyConcepts) == maxKeyConcepts {
				break
			}
		}
	}
	if summary, ok := value["summary"].(string); ok {
		result.Summary = strings.TrimSpace(summary)
	}
	if tags, ok := value["metadataTags"].([]interface{}); ok {
		seen := make(map[string]bool)
		for _, raw := range tags {
			tag, ok := raw.(string)
			if !ok {
				continue
			}
			mt, code, err := models.ParseTypedCode(strings.TrimSpace(tag))
			if err != nil {
				continue
			}
			canonical := string(mt) + ":" + Normalize(code)
			if seen[canonical] {
				continue
			}
			seen[canonical] = true
			result.MetadataTags = append(result.MetadataTags, canonical)
		}
	}

	// The organization suggestion doubles as an ORG tag so the similarity
	// engine can weight it. Uncategorized is not an organization.
	if result.Organization != "" && !strings.EqualFold(result.Organization, "Uncategorized") {
		orgTag := string(models.MetadataOrg) + ":" + Normalize(result.Organization)
		found := false
		for _, tag := range result.MetadataTags {
			if tag == orgTag {
				found = true
				break
			}
		}
		if !found {
			result.MetadataTags = append(result.MetadataTags, orgTag)
		}
	}

	return result
}

// isMnemonic accepts short uppercase category codes like "LLM" or "DEVOPS".
func isMnemonic(s string) bool {
	if len(s) < 2 || len(s) > 8 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
