package classify

import (
	"regexp"
	"strings"
	"time"

	"github.com/RBarbieri13/decant/internal/models"
)

// differentiatorPriority is the fixed order of attributes tried when
// distinguishing a node from its hierarchy siblings.
var differentiatorPriority = []string{"brand", "version", "variant", "creator", "date", "unique_id"}

var versionPattern = regexp.MustCompile(`\bv?(\d+(?:\.\d+){1,3})\b`)

// dateLayouts covers the timestamp shapes the extractors produce.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02",
	"2006/01/02",
}

// Differentiate picks the tail segment of a function-hierarchy code. It
// walks the priority list and returns the first normalized value that no
// sibling already uses, together with the attribute name that produced it.
// The node UUID prefix is the terminal fallback and is returned even when
// it collides.
func Differentiate(node *models.Node, extraction *models.ExtractionResult, siblings []string) (string, string) {
	used := make(map[string]bool, len(siblings))
	for _, sibling := range siblings {
		used[sibling] = true
	}

	for _, attribute := range differentiatorPriority {
		value := Normalize(extractAttribute(attribute, node, extraction))
		if value == "" {
			continue
		}
		if attribute == "unique_id" || !used[value] {
			return value, attribute
		}
	}

	// Unreachable: unique_id always yields a value.
	return Normalize(node.ID[:8]), "unique_id"
}

func extractAttribute(attribute string, node *models.Node, extraction *models.ExtractionResult) string {
	switch attribute {
	case "brand":
		if node.Company != "" {
			return node.Company
		}
		return firstDataString(extraction, "siteName", "owner", "channel")
	case "version":
		title := node.Title
		if title == "" {
			title = extraction.Title()
		}
		if match := versionPattern.FindStringSubmatch(title); len(match) == 2 {
			return "v" + match[1]
		}
		return ""
	case "variant":
		return firstDataString(extraction, "variant", "defaultBranch")
	case "creator":
		return firstDataString(extraction, "author", "authorHandle", "channel", "owner")
	case "date":
		return normalizeDate(firstDataString(extraction, "publishedAt", "createdAt", "date"))
	case "unique_id":
		id := node.ID
		if len(id) > 8 {
			id = id[:8]
		}
		return id
	}
	return ""
}

func firstDataString(extraction *models.ExtractionResult, keys ...string) string {
	if extraction == nil || extraction.Data == nil {
		return ""
	}
	for _, key := range keys {
		if value, ok := extraction.Data[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// normalizeDate reduces a timestamp to YYYYMMDD.
func normalizeDate(raw string) string {
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Format("20060102")
		}
	}
	return ""
}

// Normalize lower-cases a differentiator value and collapses runs of
// non-alphanumerics into single underscores.
func Normalize(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			sb.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && sb.Len() > 0 {
				sb.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(sb.String(), "_")
}
