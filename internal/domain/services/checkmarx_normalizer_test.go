package services

import (
	"errors"
	"testing"

	"github.com/ochairo/kdibridge/internal/domain/entities"
)

// cxReport builds a decoded CxXMLResults tree with one query
func cxReport(results ...any) *entities.RawDocument {
	var resultNode any = results
	if len(results) == 1 {
		resultNode = results[0]
	}
	return entities.NewXMLDocument(map[string]any{
		"CxXMLResults": map[string]any{
			"ProjectName": "payments",
			"Team":        "CxServer\\SP\\Company",
			"Query": map[string]any{
				"name":             "SQL_Injection",
				"cweId":            "89",
				"QueryVersionCode": "56142311",
				"group":            "Java_High_Risk",
				"Language":         "Java",
				"DeepLink":         "https://cx.example.com/CxWebClient/ScanQueryDescription.aspx?queryID=589",
				"Result":           resultNode,
			},
		},
	})
}

func cxResult(nodeID, severity, date string) map[string]any {
	r := map[string]any{
		"Status":   "Recurrent",
		"FileName": "src/Fallback.java",
		"Path": map[string]any{
			"PathNode": []any{
				map[string]any{"FileName": "src/Repo.java", "Line": "42"},
				map[string]any{"FileName": "src/Other.java", "Line": "7"},
			},
		},
	}
	if nodeID != "" {
		r["NodeId"] = nodeID
	}
	if severity != "" {
		r["Severity"] = severity
	}
	if date != "" {
		r["DetectionDate"] = date
	}
	return r
}

func TestCheckmarxNormalizer_SeverityTable(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"High", 9},
		{"Medium", 6},
		{"Low", 3},
		{"Informational", 0},
	}

	n := NewCheckmarxNormalizer(nil)
	for _, tt := range tests {
		batch, err := n.Normalize(cxReport(cxResult("1", tt.label, "")))
		if err != nil {
			t.Errorf("Normalize(%s) error = %v", tt.label, err)
			continue
		}
		if len(batch.AssetFindings) != 1 {
			t.Errorf("Normalize(%s) = %d findings, want 1", tt.label, len(batch.AssetFindings))
			continue
		}
		if got := batch.AssetFindings[0].Finding.Severity; got != tt.want {
			t.Errorf("severity of %s = %d, want %d", tt.label, got, tt.want)
		}
	}
}

func TestCheckmarxNormalizer_Row(t *testing.T) {
	n := NewCheckmarxNormalizer(nil)
	batch, err := n.Normalize(cxReport(cxResult("1001", "High", "01/15/2024 3:45:10 PM")))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(batch.AssetFindings) != 1 || len(batch.Definitions) != 1 {
		t.Fatalf("Normalize() = %d findings %d definitions, want 1 and 1",
			len(batch.AssetFindings), len(batch.Definitions))
	}

	af := batch.AssetFindings[0]
	if af.Asset.Application != "payments" {
		t.Errorf("application = %s, want payments", af.Asset.Application)
	}
	if af.Asset.File == nil || *af.Asset.File != "src/Repo.java" {
		t.Errorf("file = %v, want the first path node file", af.Asset.File)
	}

	f := af.Finding
	if f.ScannerIdentifier != "1001" || f.ScannerType != CheckmarxScannerType || f.VulnDefName != "SQL_Injection" {
		t.Errorf("finding = %+v", f)
	}
	if f.CreatedAt == nil || *f.CreatedAt != "2024-01-15-15:45:10" {
		t.Errorf("created_at = %v, want 2024-01-15-15:45:10", f.CreatedAt)
	}

	wantFields := map[string]string{
		"Team":             "CxServer\\SP\\Company",
		"group":            "Java_High_Risk",
		"Language":         "Java",
		"Status":           "Recurrent",
		"QueryVersionCode": "56142311",
		"Title":            "89-SQL_Injection",
	}
	for k, want := range wantFields {
		if got := f.AdditionalFields[k]; got != want {
			t.Errorf("additional_fields[%s] = %q, want %q", k, got, want)
		}
	}

	def := batch.Definitions[0]
	if def.Name != "SQL_Injection" || def.CWEIdentifiers == nil || *def.CWEIdentifiers != "CWE-89" {
		t.Errorf("definition = %+v", def)
	}
	if def.Description == nil || *def.Description == "" {
		t.Error("definition description should carry the query link")
	}
}

func TestCheckmarxNormalizer_UnknownSeverity(t *testing.T) {
	n := NewCheckmarxNormalizer(nil)
	batch, err := n.Normalize(cxReport(
		cxResult("1", "High", ""),
		cxResult("2", "Critical", ""),
		cxResult("3", "Low", ""),
	))

	if !errors.Is(err, entities.ErrUnknownSeverity) {
		t.Fatalf("Normalize() error = %v, want ErrUnknownSeverity", err)
	}
	if len(batch.AssetFindings) != 2 || len(batch.Definitions) != 2 {
		t.Fatalf("Normalize() = %d findings, want the 2 mapped rows", len(batch.AssetFindings))
	}
	for _, af := range batch.AssetFindings {
		if af.Finding.ScannerIdentifier == "2" {
			t.Error("unmapped row produced a record")
		}
	}
}

func TestCheckmarxNormalizer_RowEdgeCases(t *testing.T) {
	n := NewCheckmarxNormalizer(nil)

	t.Run("missing severity drops the row", func(t *testing.T) {
		batch, err := n.Normalize(cxReport(cxResult("1", "", ""), cxResult("2", "Low", "")))
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if len(batch.AssetFindings) != 1 || batch.AssetFindings[0].Finding.ScannerIdentifier != "2" {
			t.Errorf("Normalize() = %+v, want only row 2", batch.AssetFindings)
		}
	})

	t.Run("missing node id is a parse failure", func(t *testing.T) {
		batch, err := n.Normalize(cxReport(cxResult("", "High", ""), cxResult("2", "Low", "")))
		if !errors.Is(err, entities.ErrParseFailure) {
			t.Errorf("Normalize() error = %v, want ErrParseFailure", err)
		}
		if len(batch.AssetFindings) != 1 {
			t.Errorf("Normalize() = %d findings, want 1", len(batch.AssetFindings))
		}
	})

	t.Run("bad date is omitted", func(t *testing.T) {
		batch, err := n.Normalize(cxReport(cxResult("1", "High", "yesterday")))
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if batch.AssetFindings[0].Finding.CreatedAt != nil {
			t.Errorf("created_at = %s, want omitted", *batch.AssetFindings[0].Finding.CreatedAt)
		}
	})

	t.Run("no path falls back to the result file name", func(t *testing.T) {
		r := cxResult("1", "High", "")
		delete(r, "Path")
		batch, err := n.Normalize(cxReport(r))
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if got := batch.AssetFindings[0].Asset.File; got == nil || *got != "src/Fallback.java" {
			t.Errorf("file = %v, want src/Fallback.java", got)
		}
	})

	t.Run("file attribute shadowed by child elements", func(t *testing.T) {
		r := cxResult("1", "High", "")
		delete(r, "Path")
		r["FileName"] = []any{"child.java", "second.java"}
		r[entities.AttrPrefix+"FileName"] = "attr.java"
		batch, err := n.Normalize(cxReport(r))
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if got := batch.AssetFindings[0].Asset.File; got == nil || *got != "attr.java" {
			t.Errorf("file = %v, want attr.java", got)
		}
	})

	t.Run("no file at all", func(t *testing.T) {
		r := cxResult("1", "High", "")
		delete(r, "Path")
		delete(r, "FileName")
		batch, err := n.Normalize(cxReport(r))
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if batch.AssetFindings[0].Asset.File != nil {
			t.Error("asset file should be absent")
		}
	})
}

func TestCheckmarxNormalizer_MalformedReport(t *testing.T) {
	n := NewCheckmarxNormalizer(nil)

	tests := []struct {
		name string
		doc  *entities.RawDocument
	}{
		{"nil document", nil},
		{"scalar root", entities.NewXMLDocument("text")},
		{"no project name", entities.NewXMLDocument(map[string]any{"CxXMLResults": map[string]any{"Team": "x"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := n.Normalize(tt.doc); !errors.Is(err, entities.ErrParseFailure) {
				t.Errorf("Normalize() error = %v, want ErrParseFailure", err)
			}
		})
	}
}

func TestCheckmarxNormalizer_EmptyReport(t *testing.T) {
	doc := entities.NewXMLDocument(map[string]any{"CxXMLResults": map[string]any{"ProjectName": "payments"}})

	batch, err := NewCheckmarxNormalizer(nil).Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !batch.Empty() {
		t.Errorf("Normalize() = %+v, want an empty batch", batch)
	}
}
