package gateways

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestQualysGateway(t *testing.T) {
	var findingRequests []serviceRequest
	var kbQuery string

	mux := http.NewServeMux()
	mux.HandleFunc("/qps/rest/3.0/search/was/webapp", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ServiceResponse":{"responseCode":"SUCCESS","hasMoreRecords":"false",
			"data":[{"WebApp":{"id":4001,"name":"storefront"}}]}}`))
	})
	mux.HandleFunc("/qps/rest/3.0/search/was/finding", func(w http.ResponseWriter, r *http.Request) {
		var req serviceRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		findingRequests = append(findingRequests, req)

		if len(findingRequests) == 1 {
			_, _ = w.Write([]byte(`{"ServiceResponse":{"responseCode":"SUCCESS","hasMoreRecords":"true","lastId":900,
				"data":[{"Finding":{"id":900,"qid":150001,"severity":"5"}}]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ServiceResponse":{"responseCode":"SUCCESS","hasMoreRecords":"false",
			"data":[{"Finding":{"id":901,"qid":150002,"severity":"3"}}]}}`))
	})
	mux.HandleFunc("/api/2.0/fo/knowledge_base/vuln/", func(w http.ResponseWriter, r *http.Request) {
		kbQuery = r.URL.RawQuery
		if r.Header.Get("X-Requested-With") == "" {
			t.Error("knowledge base request without X-Requested-With")
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" ?>
<KNOWLEDGE_BASE_VULN_LIST_OUTPUT><RESPONSE><VULN_LIST>
<VULN><QID>150001</QID><TITLE><![CDATA[Reflected Cross-Site Scripting (XSS) Vulnerabilities]]></TITLE>
<DIAGNOSIS><![CDATA[User input is reflected without encoding.]]></DIAGNOSIS></VULN>
</VULN_LIST></RESPONSE></KNOWLEDGE_BASE_VULN_LIST_OUTPUT>`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	gw := NewQualysGateway(server.URL, 0, NewBasicAuthTokenProvider("u", "p"), server.Client(), 100, nil)
	ctx := context.Background()

	apps, err := gw.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(apps) != 1 || apps[0].ID != "4001" || apps[0].Name != "storefront" {
		t.Errorf("ListProjects() = %+v, want storefront(4001)", apps)
	}

	findings, err := gw.ListFindings(ctx, "4001")
	if err != nil {
		t.Fatalf("ListFindings() error = %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("ListFindings() = %d rows, want 2", len(findings))
	}
	if _, wrapped := findings[0].(map[string]any)["Finding"]; wrapped {
		t.Error("ListFindings() rows should be unwrapped from their envelope")
	}

	// The web application criterion must survive the cursor criterion
	second := findingRequests[1].ServiceRequest.Filters.Criteria
	if len(second) != 2 || second[0].Field != "webApp.id" || second[0].Value != "4001" ||
		second[1].Field != "id" || second[1].Operator != "GREATER" || second[1].Value != "900" {
		t.Errorf("second page criteria = %+v", second)
	}

	defs, err := gw.LookupDefinitions(ctx, []string{"150001", "150002"})
	if err != nil {
		t.Fatalf("LookupDefinitions() error = %v", err)
	}
	if !strings.Contains(kbQuery, "action=list") || !strings.Contains(kbQuery, "ids=150001%2C150002") {
		t.Errorf("knowledge base query = %s", kbQuery)
	}
	if len(defs) != 1 {
		t.Fatalf("LookupDefinitions() = %d definitions, want 1", len(defs))
	}
	if defs["150001"].Description != "User input is reflected without encoding." {
		t.Errorf("description = %q", defs["150001"].Description)
	}
}
