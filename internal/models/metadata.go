package models

import (
	"fmt"
	"strings"
)

// MetadataType is the closed vocabulary of typed metadata codes.
type MetadataType string

const (
	MetadataOrg      MetadataType = "ORG"
	MetadataDomain   MetadataType = "DOM"
	MetadataFunction MetadataType = "FNC"
	MetadataTech     MetadataType = "TEC"
	MetadataConcept  MetadataType = "CON"
	MetadataIndustry MetadataType = "IND"
	MetadataAudience MetadataType = "AUD"
	MetadataProcess  MetadataType = "PRC"
	MetadataLicense  MetadataType = "LIC"
	MetadataLanguage MetadataType = "LNG"
	MetadataPlatform MetadataType = "PLT"
)

// ValidMetadataTypes lists every accepted type tag.
var ValidMetadataTypes = []MetadataType{
	MetadataOrg, MetadataDomain, MetadataFunction, MetadataTech,
	MetadataConcept, MetadataIndustry, MetadataAudience, MetadataProcess,
	MetadataLicense, MetadataLanguage, MetadataPlatform,
}

// MetadataSource tags who attached a metadata entry to a node.
type MetadataSource string

const (
	SourceAI     MetadataSource = "ai"
	SourceUser   MetadataSource = "user"
	SourceImport MetadataSource = "import"
)

// MetadataEntry is one typed code attached to a node.
type MetadataEntry struct {
	Type       MetadataType   `json:"type"`
	Code       string         `json:"code"`
	Confidence float64        `json:"confidence"`
	Source     MetadataSource `json:"source"`
}

// TypedCode returns the canonical "TYPE:CODE" form.
func (e MetadataEntry) TypedCode() string {
	return string(e.Type) + ":" + e.Code
}

// ParseTypedCode splits a "TYPE:CODE" tag into its parts. The type must be
// one of the registered vocabulary types.
func ParseTypedCode(tag string) (MetadataType, string, error) {
	parts := strings.SplitN(tag, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid typed code %q", tag)
	}
	mt := MetadataType(strings.ToUpper(parts[0]))
	for _, valid := range ValidMetadataTypes {
		if mt == valid {
			return mt, parts[1], nil
		}
	}
	return "", "", fmt.Errorf("unknown metadata type %q", parts[0])
}

// RegistryEntry is a row of the metadata code registry.
type RegistryEntry struct {
	ID          int64        `json:"id"`
	Type        MetadataType `json:"type"`
	Code        string       `json:"code"`
	DisplayName string       `json:"displayName"`
	Description string       `json:"description,omitempty"`
	UsageCount  int          `json:"usageCount"`
}

// NodeMetadataRow is a junction row joined with its registry entry.
type NodeMetadataRow struct {
	NodeID     string         `json:"nodeId"`
	RegistryID int64          `json:"registryId"`
	Type       MetadataType   `json:"type"`
	Code       string         `json:"code"`
	Confidence float64        `json:"confidence"`
	Source     MetadataSource `json:"source"`
}
