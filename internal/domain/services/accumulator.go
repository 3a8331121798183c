package services

import (
	"fmt"

	"github.com/ochairo/kdibridge/internal/domain/entities"
)

// RecordAccumulator collects the canonical records of one project.
// Asset/finding pairs are deduplicated on (asset, scanner identifier,
// definition name); definitions are deduplicated by name, later non-key
// fields overriding earlier ones. Create one per project.
type RecordAccumulator struct {
	findings  []entities.AssetFinding
	findingAt map[string]int
	defs      []entities.VulnerabilityDefinition
	defAt     map[string]int
}

// NewRecordAccumulator creates an empty accumulator
func NewRecordAccumulator() *RecordAccumulator {
	return &RecordAccumulator{
		findingAt: make(map[string]int),
		defAt:     make(map[string]int),
	}
}

// AddAssetFinding stores a pair, replacing an earlier pair with the same identity
func (a *RecordAccumulator) AddAssetFinding(af entities.AssetFinding) {
	key := findingKey(af)
	if i, ok := a.findingAt[key]; ok {
		a.findings[i] = af
		return
	}
	a.findingAt[key] = len(a.findings)
	a.findings = append(a.findings, af)
}

// AddDefinition merges def into the definition with the same name.
// Fields present on def win; fields absent on def keep their earlier value.
func (a *RecordAccumulator) AddDefinition(def entities.VulnerabilityDefinition) {
	i, ok := a.defAt[def.Name]
	if !ok {
		a.defAt[def.Name] = len(a.defs)
		a.defs = append(a.defs, def)
		return
	}

	merged := a.defs[i]
	if def.ScannerType != "" {
		merged.ScannerType = def.ScannerType
	}
	if def.Description != nil {
		merged.Description = def.Description
	}
	if def.CWEIdentifiers != nil {
		merged.CWEIdentifiers = def.CWEIdentifiers
	}
	a.defs[i] = merged
}

// Len returns the number of pairs and definitions held
func (a *RecordAccumulator) Len() (findings, definitions int) {
	return len(a.findings), len(a.defs)
}

// Snapshot returns a copy of the accumulated records. It fails when a
// finding references a definition that was never added.
func (a *RecordAccumulator) Snapshot() (entities.Batch, error) {
	for _, af := range a.findings {
		if _, ok := a.defAt[af.Finding.VulnDefName]; !ok {
			return entities.Batch{}, fmt.Errorf("finding %s references undefined vulnerability definition %q",
				af.Finding.ScannerIdentifier, af.Finding.VulnDefName)
		}
	}

	batch := entities.Batch{
		AssetFindings: make([]entities.AssetFinding, len(a.findings)),
		Definitions:   make([]entities.VulnerabilityDefinition, len(a.defs)),
	}
	copy(batch.AssetFindings, a.findings)
	copy(batch.Definitions, a.defs)
	return batch, nil
}

// Reset drops every record
func (a *RecordAccumulator) Reset() {
	a.findings = nil
	a.defs = nil
	a.findingAt = make(map[string]int)
	a.defAt = make(map[string]int)
}

func findingKey(af entities.AssetFinding) string {
	file := "\x00"
	if af.Asset.File != nil {
		file = *af.Asset.File
	}
	return fmt.Sprintf("%s|%s|%s|%s", af.Asset.Application, file, af.Finding.ScannerIdentifier, af.Finding.VulnDefName)
}
