package orchestrators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ochairo/kdibridge/internal/domain-adapters/gateways"
	"github.com/ochairo/kdibridge/internal/domain/entities"
	domainservices "github.com/ochairo/kdibridge/internal/domain/services"
)

func readBatch(t *testing.T, path string) entities.KDIDocument {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("batch %s not written: %v", path, err)
	}
	var doc entities.KDIDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("batch %s is not a KDI document: %v", path, err)
	}
	return doc
}

// A paginated web application list of 100+5 entries and a first web
// application holding one mapped and one unmapped severity
func TestEndToEnd_QualysWAS(t *testing.T) {
	var (
		mu             sync.Mutex
		webappRequests int
		findingQueries []string
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/qps/rest/3.0/search/was/webapp", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		webappRequests++
		page := webappRequests
		mu.Unlock()

		first, count, more := 1, 100, true
		if page == 2 {
			if !strings.Contains(readBody(r), `"GREATER"`) {
				t.Error("second page request carries no cursor")
			}
			first, count, more = 101, 5, false
		}

		apps := make([]any, 0, count)
		for i := first; i < first+count; i++ {
			apps = append(apps, map[string]any{"WebApp": map[string]any{"id": i, "name": fmt.Sprintf("app-%d", i)}})
		}
		resp := map[string]any{"ServiceResponse": map[string]any{
			"responseCode":   "SUCCESS",
			"count":          count,
			"hasMoreRecords": more,
			"lastId":         first + count - 1,
			"data":           apps,
		}}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/qps/rest/3.0/search/was/finding", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		findingQueries = append(findingQueries, readBody(r))
		mu.Unlock()

		_, _ = w.Write([]byte(`{"ServiceResponse":{"responseCode":"SUCCESS","hasMoreRecords":"false","data":[
			{"Finding":{"id":1,"qid":150001,"name":"Reflected XSS","severity":"5","webApp":{"id":1,"name":"app-1"}}},
			{"Finding":{"id":2,"qid":150002,"name":"Weird Thing","severity":"7","webApp":{"id":1,"name":"app-1"}}}
		]}}`))
	})
	mux.HandleFunc("/api/2.0/fo/knowledge_base/vuln/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<KNOWLEDGE_BASE_VULN_LIST_OUTPUT><RESPONSE><VULN_LIST>
<VULN><QID>150001</QID><TITLE>Reflected XSS</TITLE><DIAGNOSIS>Input is echoed.</DIAGNOSIS></VULN>
</VULN_LIST></RESPONSE></KNOWLEDGE_BASE_VULN_LIST_OUTPUT>`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	auth := gateways.NewBasicAuthTokenProvider("user", "pass")
	qualys := gateways.NewQualysGateway(server.URL, 0, auth, server.Client(), 100, nil)
	connector := domainservices.NewFindingConnector("qualys_was", qualys, qualys, qualys, nil,
		domainservices.NewQualysNormalizer(nil), nil)

	outDir := t.TempDir()
	emitter := gateways.NewKDIEmitter(outDir, entities.KennaSettings{}, nil, server.Client(), nil)

	summary, err := NewIngestionOrchestrator(connector, emitter, nil, nil).Run(context.Background())
	if !errors.Is(err, entities.ErrUnknownSeverity) {
		t.Fatalf("Run() error = %v, want ErrUnknownSeverity", err)
	}

	if webappRequests != 2 {
		t.Errorf("web application requests = %d, want exactly 2", webappRequests)
	}
	if len(findingQueries) != 1 || !strings.Contains(findingQueries[0], `"webApp.id"`) {
		t.Errorf("finding queries = %v, want one query for the first web application", findingQueries)
	}
	if !summary.Aborted || summary.KickedOff || len(summary.Outcomes) != 1 {
		t.Errorf("summary = %+v", summary)
	}

	doc := readBatch(t, filepath.Join(outDir, "qualys_was_kdi_1.json"))
	if len(doc.Assets) != 1 || len(doc.Assets[0].Findings) != 1 || len(doc.VulnDefs) != 1 {
		t.Fatalf("batch = %+v, want one asset, finding and definition", doc)
	}
	if f := doc.Assets[0].Findings[0]; f.Severity != 9 || f.VulnDefName != "Reflected XSS" {
		t.Errorf("finding = %+v", f)
	}
	if d := doc.VulnDefs[0]; d.Description == nil || *d.Description != "Input is echoed." {
		t.Errorf("definition = %+v", d)
	}
}

// runCheckmarx runs the Checkmarx pipeline against a console serving one
// project with one scan whose report is the given XML, writing batches to a
// temporary directory
func runCheckmarx(t *testing.T, report string) (*entities.RunSummary, string, error) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/cxrestapi/auth/identity/connect/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"t","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/cxrestapi/projects", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":7,"name":"payments"}]`))
	})
	mux.HandleFunc("/cxrestapi/sast/scans", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1001}]`))
	})
	mux.HandleFunc("/cxrestapi/reports/sastScan", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"reportId":55}`))
	})
	mux.HandleFunc("/cxrestapi/reports/sastScan/55/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":{"value":"Created"}}`))
	})
	mux.HandleFunc("/cxrestapi/reports/sastScan/55", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(report))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	vendor := entities.VendorSettings{
		Username: "u", Password: "p", ClientID: "resource_owner_client", ClientSecret: "s",
		GrantType: entities.DefaultGrantType, Scope: entities.DefaultScope,
	}
	baseURL := gateways.ConsoleURL(server.URL, 0, gateways.CheckmarxAPIPrefix)
	auth := gateways.NewPasswordGrantTokenProvider(gateways.CheckmarxTokenURL(baseURL), vendor, server.Client(), nil)
	cx := gateways.NewCheckmarxGateway(baseURL, auth, server.Client(), nil)
	poller := gateways.NewReportPoller(cx, entities.PollSettings{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		MaxWait:      time.Minute,
		MaxAttempts:  3,
	}, nil)
	connector := domainservices.NewScanReportConnector("checkmarx_sast", cx, cx, poller,
		domainservices.NewCheckmarxNormalizer(nil), nil)

	outDir := t.TempDir()
	emitter := gateways.NewKDIEmitter(outDir, entities.KennaSettings{}, nil, server.Client(), nil)

	summary, err := NewIngestionOrchestrator(connector, emitter, nil, nil).Run(context.Background())
	return summary, outDir, err
}

// One Checkmarx project, one scan, one High and one unmapped result
func TestEndToEnd_CheckmarxSAST(t *testing.T) {
	summary, outDir, err := runCheckmarx(t, `<CxXMLResults ProjectName="payments" Team="CxServer">
  <Query name="SQL_Injection" cweId="89" group="Java_High_Risk" Language="Java" DeepLink="https://cx/q/589">
    <Result NodeId="1" Severity="High" DetectionDate="01/15/2024 3:45:10 PM">
      <Path><PathNode><FileName>src/Repo.java</FileName></PathNode></Path>
    </Result>
    <Result NodeId="2" Severity="Critical" DetectionDate="01/15/2024 3:45:10 PM">
      <Path><PathNode><FileName>src/Other.java</FileName></PathNode></Path>
    </Result>
  </Query>
</CxXMLResults>`)
	if !errors.Is(err, entities.ErrUnknownSeverity) {
		t.Fatalf("Run() error = %v, want ErrUnknownSeverity", err)
	}
	if !summary.Aborted || summary.KickedOff {
		t.Errorf("summary = %+v, want aborted without kickoff", summary)
	}

	doc := readBatch(t, filepath.Join(outDir, "checkmarx_sast_kdi_7.json"))
	if len(doc.Assets) != 1 || len(doc.VulnDefs) != 1 {
		t.Fatalf("batch = %+v, want exactly one triple", doc)
	}
	asset := doc.Assets[0]
	if asset.File == nil || *asset.File != "src/Repo.java" || len(asset.Findings) != 1 {
		t.Fatalf("asset = %+v", asset)
	}
	f := asset.Findings[0]
	if f.Severity != 9 || f.CreatedAt == nil || *f.CreatedAt != "2024-01-15-15:45:10" {
		t.Errorf("finding = %+v", f)
	}
	if d := doc.VulnDefs[0]; d.CWEIdentifiers == nil || *d.CWEIdentifiers != "CWE-89" {
		t.Errorf("definition = %+v", d)
	}
}

// A report mixing a valid row, a row without NodeId and an unmapped
// severity aborts the run without writing the valid row
func TestEndToEnd_CheckmarxSAST_ParseFailureWritesNothing(t *testing.T) {
	summary, outDir, err := runCheckmarx(t, `<CxXMLResults ProjectName="payments" Team="CxServer">
  <Query name="SQL_Injection" cweId="89">
    <Result NodeId="1" Severity="High"/>
    <Result Severity="High"/>
    <Result NodeId="3" Severity="Critical"/>
  </Query>
</CxXMLResults>`)
	if !errors.Is(err, entities.ErrUnknownSeverity) || !errors.Is(err, entities.ErrParseFailure) {
		t.Fatalf("Run() error = %v, want ErrUnknownSeverity and ErrParseFailure", err)
	}
	if !summary.Aborted || summary.KickedOff {
		t.Errorf("summary = %+v, want aborted without kickoff", summary)
	}

	outcome := summary.Outcomes[0]
	if outcome.Status != entities.ProjectAborted || outcome.Emitted {
		t.Errorf("outcome = %+v, want aborted and not emitted", outcome)
	}
	if _, err := os.Stat(filepath.Join(outDir, "checkmarx_sast_kdi_7.json")); !os.IsNotExist(err) {
		t.Errorf("batch file stat error = %v, want not exist", err)
	}
}

func readBody(r *http.Request) string {
	data, _ := io.ReadAll(r.Body)
	return string(data)
}
