package models

// Segment is a function-hierarchy taxonomy root, keyed by a short unique
// code such as "AI_ML".
type Segment struct {
	ID    string `json:"id" yaml:"id"`
	Code  string `json:"code" yaml:"code"`
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color" yaml:"color"`
}

// Organization is an organization-hierarchy taxonomy root such as "WORK".
type Organization struct {
	ID    string `json:"id" yaml:"id"`
	Code  string `json:"code" yaml:"code"`
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color" yaml:"color"`
}
