// Package entities defines core domain models and data structures.
package entities

// Asset identifies where a finding was observed
type Asset struct {
	File        *string `json:"file,omitempty"`
	Application string  `json:"application"`
}

// Finding is one vendor result row in canonical form
type Finding struct {
	ScannerIdentifier string            `json:"scanner_identifier"`
	ScannerType       string            `json:"scanner_type"`
	CreatedAt         *string           `json:"created_at,omitempty"`
	Severity          int               `json:"severity"`
	AdditionalFields  map[string]string `json:"additional_fields,omitempty"`
	VulnDefName       string            `json:"vuln_def_name"`
}

// VulnerabilityDefinition describes the weakness a finding points at.
// Name is the unique key; findings reference it through VulnDefName.
type VulnerabilityDefinition struct {
	ScannerType    string  `json:"scanner_type"`
	Name           string  `json:"name"`
	Description    *string `json:"description,omitempty"`
	CWEIdentifiers *string `json:"cwe_identifiers,omitempty"`
}

// AssetFinding pairs a finding with the asset it was observed on
type AssetFinding struct {
	Asset   Asset
	Finding Finding
}

// Batch is the normalized, merge-resolved record set of one project
type Batch struct {
	AssetFindings []AssetFinding
	Definitions   []VulnerabilityDefinition
}

// Empty reports whether the batch carries no records
func (b Batch) Empty() bool {
	return len(b.AssetFindings) == 0 && len(b.Definitions) == 0
}

// Project is a vendor-side container of scans (Checkmarx project, Qualys web application)
type Project struct {
	ID   string
	Name string
}

// Scan is a vendor-side scan belonging to a project
type Scan struct {
	ID        string
	ProjectID string
}
