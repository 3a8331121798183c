package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/gateways"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// kdiEmitter writes one KDI batch file per project, optionally uploads it to
// the ingestion service, and triggers a single connector run at the end
type kdiEmitter struct {
	outputDir string
	kenna     entities.KennaSettings
	api       *apiClient
	signer    gateways.BatchSigner
	checksums *checksumVerifier
	logger    interfaces.Logger
	uploaded  int
}

// NewKDIEmitter creates an emitter writing to outputDir. signer may be nil.
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewKDIEmitter(outputDir string, kenna entities.KennaSettings, signer gateways.BatchSigner, client *http.Client, logger interfaces.Logger) *kdiEmitter {
	api := newAPIClient(ConsoleURL(kenna.Host, 0, ""), nil, client)
	api.headers["X-Risk-Token"] = kenna.APIKey
	api.headers["Accept"] = "application/json"

	return &kdiEmitter{
		outputDir: outputDir,
		kenna:     kenna,
		api:       api,
		signer:    signer,
		checksums: NewChecksumVerifier(),
		logger:    interfaces.OrNoOp(logger),
	}
}

// BatchFileName returns the file name of a project batch
func BatchFileName(connector, projectID string) string {
	return fmt.Sprintf("%s_kdi_%s.json", connector, unsafeFileChars.ReplaceAllString(projectID, "_"))
}

// Emit writes the batch of one project and uploads it when an ingestion
// connector is configured. Empty batches are not written.
func (e *kdiEmitter) Emit(ctx context.Context, connector string, project entities.Project, batch entities.Batch) error {
	if batch.Empty() {
		e.logger.Info("No records to emit", interfaces.F("project", project.ID))
		return nil
	}

	data, err := json.MarshalIndent(entities.NewKDIDocument(batch), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal batch of project %s: %w", project.ID, err)
	}

	if err := os.MkdirAll(e.outputDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(e.outputDir, BatchFileName(connector, project.ID))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write batch file: %w", err)
	}

	sum, err := e.checksums.WriteChecksumFile(path)
	if err != nil {
		return err
	}

	fields := []interfaces.Field{
		interfaces.F("project", project.ID),
		interfaces.F("file", path),
		interfaces.F("sha256", sum),
		interfaces.F("findings", len(batch.AssetFindings)),
		interfaces.F("definitions", len(batch.Definitions)),
	}

	if e.signer != nil {
		sigPath, err := e.signer.SignFile(ctx, path)
		if err != nil {
			return err
		}
		fields = append(fields, interfaces.F("signature", sigPath))
	}

	e.logger.Info("Wrote batch", fields...)

	if !e.kenna.UploadEnabled() {
		return nil
	}
	return e.upload(ctx, path, data)
}

func (e *kdiEmitter) upload(ctx context.Context, path string, data []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}

	endpoint := "/connectors/" + url.PathEscape(e.kenna.ConnectorID) + "/data_file?run=false"
	req, err := e.api.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body.Bytes()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	op := "upload " + filepath.Base(path)
	resp, err := e.api.doWithRetry(req, op, e.attempts())
	if err != nil {
		return err
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	e.uploaded++
	e.logger.Info("Uploaded batch",
		interfaces.F("file", filepath.Base(path)),
		interfaces.F("connector_id", e.kenna.ConnectorID))
	return nil
}

// Kickoff asks the ingestion service to process the files uploaded in this run
func (e *kdiEmitter) Kickoff(ctx context.Context) (bool, error) {
	if !e.kenna.UploadEnabled() || e.uploaded == 0 {
		e.logger.Info("Skipping connector run, nothing was uploaded")
		return false, nil
	}

	endpoint := "/connectors/" + url.PathEscape(e.kenna.ConnectorID) + "/run"
	req, err := e.api.newRequest(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := e.api.doWithRetry(req, "connector run", e.attempts())
	if err != nil {
		return false, err
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	e.logger.Info("Started connector run",
		interfaces.F("connector_id", e.kenna.ConnectorID),
		interfaces.F("files", e.uploaded))
	return true, nil
}

func (e *kdiEmitter) attempts() int {
	if e.kenna.Retries > 0 {
		return e.kenna.Retries
	}
	return maxAttempts
}
