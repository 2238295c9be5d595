package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/models"
)

// defaultOrganizationRoot is where imported nodes land until the user
// files them under another organization root.
const defaultOrganizationRoot = "INBOX"

// SiblingSource lists the code tails already in use under a prefix.
type SiblingSource interface {
	SiblingCodes(ctx context.Context, view models.HierarchyView, prefix string) ([]string, error)
}

// Assigner turns a classification into the node's two hierarchy codes.
type Assigner struct {
	logger arbor.ILogger
	nodes  SiblingSource
}

func NewAssigner(logger arbor.ILogger, nodes SiblingSource) *Assigner {
	return &Assigner{logger: logger, nodes: nodes}
}

// AssignCodes builds the function code (segment.category.contentType.tail,
// tail chosen by the differentiator against existing siblings) and the
// organization code (INBOX.<normalized organization>). The returned audit
// change carries triggered_by=import and the differentiator attribute used.
func (a *Assigner) AssignCodes(ctx context.Context, node *models.Node, classification *models.Classification, extraction *models.ExtractionResult) (*models.HierarchyCodes, *models.HierarchyCodeChange, error) {
	prefix := fmt.Sprintf("%s.%s.%s", classification.Segment, classification.Category, classification.ContentType)

	siblings, err := a.nodes.SiblingCodes(ctx, models.HierarchyFunction, prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load sibling codes for %s: %w", prefix, err)
	}

	tail, attribute := Differentiate(node, extraction, siblings)
	codes := &models.HierarchyCodes{
		Function:     prefix + "." + tail,
		Organization: organizationCode(classification.Organization),
	}

	a.logger.Debug().
		Str("node_id", node.ID).
		Str("function_code", codes.Function).
		Str("organization_code", codes.Organization).
		Str("differentiator", attribute).
		Msg("Assigned hierarchy codes")

	change := &models.HierarchyCodeChange{
		ChangeType:    models.ChangeCreated,
		HierarchyType: models.HierarchyFunction,
		TriggeredBy:   models.TriggerImport,
		NewCode:       codes.Function,
		NodeID:        node.ID,
		Metadata:      map[string]interface{}{"differentiator": attribute},
		CreatedAt:     time.Now().UTC(),
	}
	return codes, change, nil
}

// organizationCode files a node under the inbox root keyed by the
// classifier's organization suggestion.
func organizationCode(organization string) string {
	normalized := Normalize(organization)
	if normalized == "" {
		normalized = "uncategorized"
	}
	return defaultOrganizationRoot + "." + normalized
}
