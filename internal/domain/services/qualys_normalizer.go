package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
)

// QualysScannerType tags records produced from Qualys WAS findings
const QualysScannerType = "QualysWas"

// QualysNormalizer flattens Qualys WAS finding rows into canonical records
type QualysNormalizer struct {
	severities entities.SeverityTable
	logger     interfaces.Logger
}

// NewQualysNormalizer creates a normalizer using the Qualys severity table
func NewQualysNormalizer(logger interfaces.Logger) *QualysNormalizer {
	return &QualysNormalizer{
		severities: entities.QualysSeverities,
		logger:     interfaces.OrNoOp(logger),
	}
}

// Normalize treats the document root as a list of finding rows, each
// naming its own web application
func (n *QualysNormalizer) Normalize(doc *entities.RawDocument) (entities.Batch, error) {
	if doc == nil {
		return entities.Batch{}, fmt.Errorf("%w: empty finding list", entities.ErrParseFailure)
	}
	return n.NormalizeFindings("", entities.List(doc.Root), nil)
}

// NormalizeFindings maps finding rows of one web application. application is
// used when a row does not carry webApp.name; defs holds knowledge-base
// details by QID and may be nil.
func (n *QualysNormalizer) NormalizeFindings(application string, rows []any, defs map[string]entities.DefinitionInfo) (entities.Batch, error) {
	var (
		batch entities.Batch
		errs  []error
	)

	for _, row := range rows {
		af, def, keep, err := n.normalizeFinding(application, row, defs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !keep {
			continue
		}
		batch.AssetFindings = append(batch.AssetFindings, af)
		batch.Definitions = append(batch.Definitions, def)
	}

	return batch, errors.Join(errs...)
}

func (n *QualysNormalizer) normalizeFinding(application string, row any, defs map[string]entities.DefinitionInfo) (entities.AssetFinding, entities.VulnerabilityDefinition, bool, error) {
	var (
		af  entities.AssetFinding
		def entities.VulnerabilityDefinition
	)

	id := entities.TextAt(row, "uniqueId")
	if !id.Present() {
		id = entities.TextAt(row, "id")
	}
	findingID, ok := id.Get()
	if !ok {
		return af, def, false, fmt.Errorf("%w: finding without id", entities.ErrParseFailure)
	}

	qid, ok := entities.TextAt(row, "qid").Get()
	if !ok {
		return af, def, false, fmt.Errorf("%w: finding %s has no qid", entities.ErrParseFailure, findingID)
	}

	app := entities.TextAt(row, "webApp", "name").OrElse(application)
	if app == "" {
		return af, def, false, fmt.Errorf("%w: finding %s has no web application", entities.ErrParseFailure, findingID)
	}

	label, ok := entities.TextAt(row, "severity").Get()
	if !ok {
		n.logger.Debug("Dropping finding without severity", interfaces.F("finding", findingID))
		return af, def, false, nil
	}
	severity, err := n.severities.Score(label)
	if err != nil {
		return af, def, false, fmt.Errorf("finding %s: %w", findingID, err)
	}

	var createdAt *string
	if raw, ok := entities.TextAt(row, "firstDetectedDate").Get(); ok {
		date, err := NormalizeDate(time.RFC3339, raw)
		if err != nil {
			n.logger.Warn("Omitting unparseable detection date",
				interfaces.F("finding", findingID),
				interfaces.F("error", err))
		} else {
			createdAt = &date
		}
	}

	info := defs[qid]
	name := entities.TextAt(row, "name").OrElse(info.Title)
	if name == "" {
		name = "QID-" + qid
	}

	cwe := findingCWE(row)
	if !cwe.Present() && info.CWE != "" {
		cwe = entities.Some(info.CWE)
	}

	var description *string
	if info.Description != "" {
		description = &info.Description
	}

	fields := map[string]string{"qid": qid}
	setField(fields, "url", entities.TextAt(row, "url"))
	setField(fields, "status", entities.TextAt(row, "status"))
	setField(fields, "type", entities.TextAt(row, "type"))

	af = entities.AssetFinding{
		Asset: entities.Asset{Application: app},
		Finding: entities.Finding{
			ScannerIdentifier: findingID,
			ScannerType:       QualysScannerType,
			CreatedAt:         createdAt,
			Severity:          severity,
			AdditionalFields:  fields,
			VulnDefName:       name,
		},
	}
	def = entities.VulnerabilityDefinition{
		ScannerType:    QualysScannerType,
		Name:           name,
		Description:    description,
		CWEIdentifiers: cwe.Ptr(),
	}
	return af, def, true, nil
}

// findingCWE reads the first entry of cwe.list, either a bare number or {"long": n}
func findingCWE(row any) entities.Optional[string] {
	list, ok := entities.Lookup(row, "cwe", "list")
	if !ok {
		return entities.None[string]()
	}
	items := entities.List(list)
	if len(items) == 0 {
		return entities.None[string]()
	}

	id := entities.Text(items[0])
	if !id.Present() {
		id = entities.TextAt(items[0], "long")
	}
	if v, ok := id.Get(); ok {
		return entities.Some("CWE-" + v)
	}
	return entities.None[string]()
}
