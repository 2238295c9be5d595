package models

// Classification is the LLM-produced categorization of an imported node.
type Classification struct {
	Segment      string   `json:"segment"`
	Category     string   `json:"category"`
	ContentType  string   `json:"contentType"`
	Organization string   `json:"organization"`
	Confidence   float64  `json:"confidence"`
	KeyConcepts  []string `json:"keyConcepts,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	MetadataTags []string `json:"metadataTags,omitempty"` // "TYPE:CODE"
}

// FallbackClassification is used when the LLM is unavailable or returns an
// unusable answer.
func FallbackClassification() *Classification {
	return &Classification{
		Segment:      "U",
		Category:     "INBOX",
		ContentType:  "o",
		Organization: "Uncategorized",
		Confidence:   0.3,
	}
}

// HierarchyCodes holds both dotted codes assigned to a node.
type HierarchyCodes struct {
	Function     string `json:"function"`
	Organization string `json:"organization"`
}
