package entities

// KDIVersion is the batch schema version understood by the ingestion service
const KDIVersion = 2

// KDIDocument is the interchange document handed to the ingestion service
type KDIDocument struct {
	SkipAutoclose bool                      `json:"skip_autoclose"`
	Version       int                       `json:"version"`
	Assets        []KDIAsset                `json:"assets"`
	VulnDefs      []VulnerabilityDefinition `json:"vuln_defs"`
}

// KDIAsset groups the findings observed on one asset
type KDIAsset struct {
	File        *string   `json:"file,omitempty"`
	Application string    `json:"application"`
	Tags        []string  `json:"tags"`
	Findings    []Finding `json:"findings"`
}

// NewKDIDocument groups batch findings by asset, keeping first-seen order
func NewKDIDocument(batch Batch) KDIDocument {
	doc := KDIDocument{
		Version:  KDIVersion,
		Assets:   make([]KDIAsset, 0),
		VulnDefs: make([]VulnerabilityDefinition, 0, len(batch.Definitions)),
	}

	index := make(map[assetKey]int)
	for _, af := range batch.AssetFindings {
		key := keyOf(af.Asset)
		i, ok := index[key]
		if !ok {
			i = len(doc.Assets)
			index[key] = i
			doc.Assets = append(doc.Assets, KDIAsset{
				File:        af.Asset.File,
				Application: af.Asset.Application,
				Tags:        []string{},
			})
		}
		doc.Assets[i].Findings = append(doc.Assets[i].Findings, af.Finding)
	}

	doc.VulnDefs = append(doc.VulnDefs, batch.Definitions...)
	return doc
}

type assetKey struct {
	file        string
	hasFile     bool
	application string
}

func keyOf(a Asset) assetKey {
	k := assetKey{application: a.Application}
	if a.File != nil {
		k.file = *a.File
		k.hasFile = true
	}
	return k
}
