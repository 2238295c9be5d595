package models

import (
	"time"
)

// ExtractionMethod records how content was obtained.
type ExtractionMethod string

const (
	MethodAPIPremium  ExtractionMethod = "api_premium"
	MethodAPIStandard ExtractionMethod = "api_standard"
	MethodScraping    ExtractionMethod = "scraping"
	MethodFallback    ExtractionMethod = "fallback"
)

// ContentType tags produced by the extractor factory.
const (
	ContentTypeYouTube = "youtube"
	ContentTypeGitHub  = "github"
	ContentTypeTwitter = "twitter"
	ContentTypeArticle = "article"
	ContentTypePodcast = "podcast"
	ContentTypePaper   = "paper"
	ContentTypeTweet   = "tweet"
	ContentTypeImage   = "image"
	ContentTypeTool    = "tool"
	ContentTypeWebsite = "website"
)

// ExtractionMetadata describes the provenance and cost of an extraction.
type ExtractionMetadata struct {
	ExtractionMethod ExtractionMethod `json:"extractionMethod"`
	APIUsed          string           `json:"apiUsed,omitempty"`
	Confidence       float64          `json:"confidence"`
	Timestamp        time.Time        `json:"timestamp"`
	Cost             float64          `json:"cost"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
}

// ExtractionError carries the coded failure detail of an extraction.
type ExtractionError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	Cause       error  `json:"-"`
}

// ExtractionResult is the tagged outcome of an extraction attempt. On
// failure, Data still holds minimal fallback metadata so the pipeline can
// classify.
type ExtractionResult struct {
	Success     bool                   `json:"success"`
	ContentType string                 `json:"contentType"`
	Data        map[string]interface{} `json:"data"`
	Metadata    ExtractionMetadata     `json:"metadata"`
	Error       *ExtractionError       `json:"error,omitempty"`
}

// Title returns the extracted title, or "" when absent.
func (r *ExtractionResult) Title() string {
	if r == nil || r.Data == nil {
		return ""
	}
	if title, ok := r.Data["title"].(string); ok {
		return title
	}
	return ""
}

// TextContent returns the longest extracted text field usable for
// classification: content, readme, or description in that order.
func (r *ExtractionResult) TextContent() string {
	if r == nil || r.Data == nil {
		return ""
	}
	for _, key := range []string{"content", "readme", "description"} {
		if text, ok := r.Data[key].(string); ok && text != "" {
			return text
		}
	}
	return ""
}
