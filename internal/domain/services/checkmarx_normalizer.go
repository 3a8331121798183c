package services

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
)

// CheckmarxScannerType tags records produced from Checkmarx SAST reports
const CheckmarxScannerType = "CheckmarxSast"

// CheckmarxNormalizer flattens Checkmarx SAST XML reports
// (CxXMLResults > Query > Result) into canonical records
type CheckmarxNormalizer struct {
	severities entities.SeverityTable
	logger     interfaces.Logger
}

// NewCheckmarxNormalizer creates a normalizer using the Checkmarx severity table
func NewCheckmarxNormalizer(logger interfaces.Logger) *CheckmarxNormalizer {
	return &CheckmarxNormalizer{
		severities: entities.CheckmarxSeverities,
		logger:     interfaces.OrNoOp(logger),
	}
}

// Normalize returns one asset, finding and definition per eligible result.
// Rows that fail are left out and reported through the joined error.
func (n *CheckmarxNormalizer) Normalize(doc *entities.RawDocument) (entities.Batch, error) {
	var batch entities.Batch
	if doc == nil {
		return batch, fmt.Errorf("%w: empty report", entities.ErrParseFailure)
	}

	root, ok := doc.Root.(map[string]any)
	if !ok {
		return batch, fmt.Errorf("%w: report root is not an element", entities.ErrParseFailure)
	}

	keys := make([]string, 0, len(root))
	for k := range root {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		errs = append(errs, n.normalizeReport(root[k], &batch)...)
	}
	return batch, errors.Join(errs...)
}

func (n *CheckmarxNormalizer) normalizeReport(report any, batch *entities.Batch) []error {
	application, ok := entities.TextAt(report, "ProjectName").Get()
	if !ok {
		return []error{fmt.Errorf("%w: report has no ProjectName", entities.ErrParseFailure)}
	}
	team := entities.TextAt(report, "Team")

	var errs []error
	queries, _ := entities.Lookup(report, "Query")
	for _, query := range entities.List(queries) {
		results, _ := entities.Lookup(query, "Result")
		for _, result := range entities.List(results) {
			af, def, keep, err := n.normalizeResult(application, team, query, result)
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
	}
	return errs
}

// normalizeResult maps one result row. keep is false for rows without a severity.
func (n *CheckmarxNormalizer) normalizeResult(application string, team entities.Optional[string], query, result any) (entities.AssetFinding, entities.VulnerabilityDefinition, bool, error) {
	var (
		af  entities.AssetFinding
		def entities.VulnerabilityDefinition
	)

	nodeID, ok := entities.TextAt(result, "NodeId").Get()
	if !ok {
		return af, def, false, fmt.Errorf("%w: result without NodeId in query %s",
			entities.ErrParseFailure, entities.TextAt(query, "name").OrElse("?"))
	}

	name, ok := entities.TextAt(query, "name").Get()
	if !ok {
		return af, def, false, fmt.Errorf("%w: result %s: query has no name", entities.ErrParseFailure, nodeID)
	}

	label, ok := entities.TextAt(result, "Severity").Get()
	if !ok {
		n.logger.Debug("Dropping result without severity", interfaces.F("node_id", nodeID))
		return af, def, false, nil
	}
	severity, err := n.severities.Score(label)
	if err != nil {
		return af, def, false, fmt.Errorf("result %s: %w", nodeID, err)
	}

	var createdAt *string
	if raw, ok := entities.TextAt(result, "DetectionDate").Get(); ok {
		date, err := NormalizeDate(CheckmarxDateLayout, raw)
		if err != nil {
			n.logger.Warn("Omitting unparseable detection date",
				interfaces.F("node_id", nodeID),
				interfaces.F("error", err))
		} else {
			createdAt = &date
		}
	}

	file := entities.TextAt(result, "Path", "PathNode", "FileName")
	if !file.Present() {
		file = entities.TextAt(result, "FileName")
	}
	if !file.Present() {
		file = entities.TextAt(result, entities.AttrPrefix+"FileName")
	}

	cweID := entities.TextAt(query, "cweId")
	title := name
	var cwe *string
	if id, ok := cweID.Get(); ok {
		title = id + "-" + name
		cwe = entities.Some("CWE-" + id).Ptr()
	}

	description := entities.TextAt(query, "DeepLink")
	if !description.Present() {
		description = entities.TextAt(result, "DeepLink")
	}

	fields := map[string]string{"Title": title}
	setField(fields, "Team", team)
	setField(fields, "group", entities.TextAt(query, "group"))
	setField(fields, "Language", entities.TextAt(query, "Language"))
	setField(fields, "Status", entities.TextAt(result, "Status"))
	setField(fields, "QueryVersionCode", entities.TextAt(query, "QueryVersionCode"))

	af = entities.AssetFinding{
		Asset: entities.Asset{File: file.Ptr(), Application: application},
		Finding: entities.Finding{
			ScannerIdentifier: nodeID,
			ScannerType:       CheckmarxScannerType,
			CreatedAt:         createdAt,
			Severity:          severity,
			AdditionalFields:  fields,
			VulnDefName:       name,
		},
	}
	def = entities.VulnerabilityDefinition{
		ScannerType:    CheckmarxScannerType,
		Name:           name,
		Description:    description.Ptr(),
		CWEIdentifiers: cwe,
	}
	return af, def, true, nil
}

// setField copies a present value into additional fields
func setField(fields map[string]string, key string, value entities.Optional[string]) {
	if v, ok := value.Get(); ok {
		fields[key] = v
	}
}
