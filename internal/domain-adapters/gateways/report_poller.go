package gateways

import (
	"context"
	"fmt"
	"time"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/gateways"
)

// ReportPoller drives asynchronous report generation:
// Requested -> Generating -> Ready | Failed.
//
// After the request it waits InitialDelay, then checks the status with
// exponential backoff capped at MaxDelay. It gives up with
// entities.ErrPollTimeout after MaxAttempts status checks or once the next
// wait would exceed MaxWait.
type ReportPoller struct {
	api      gateways.ReportAPI
	settings entities.PollSettings
	logger   interfaces.Logger
	sleep    sleepFunc
	now      func() time.Time
}

// NewReportPoller creates a poller; unset bounds take the profile defaults
func NewReportPoller(api gateways.ReportAPI, settings entities.PollSettings, logger interfaces.Logger) *ReportPoller {
	if settings.InitialDelay <= 0 {
		settings.InitialDelay = entities.DefaultPollDelay
	}
	if settings.MaxDelay <= 0 {
		settings.MaxDelay = entities.DefaultPollMaxDelay
	}
	if settings.MaxWait <= 0 {
		settings.MaxWait = entities.DefaultPollMaxWait
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = entities.DefaultPollAttempts
	}

	return &ReportPoller{
		api:      api,
		settings: settings,
		logger:   interfaces.OrNoOp(logger),
		sleep:    sleepContext,
		now:      time.Now,
	}
}

// FetchReport implements gateways.ReportSource
func (p *ReportPoller) FetchReport(ctx context.Context, scanID string) (*entities.RawDocument, error) {
	result, err := p.Poll(ctx, scanID)
	if err != nil {
		return nil, err
	}
	return result.Document, nil
}

// Poll requests the report of scanID and waits until it is ready. The
// returned result is non-nil even on error and holds the final state.
func (p *ReportPoller) Poll(ctx context.Context, scanID string) (*entities.PollResult, error) {
	start := p.now()
	result := &entities.PollResult{ScanID: scanID, State: entities.PollRequested}

	fail := func(err error) (*entities.PollResult, error) {
		result.State = entities.PollFailed
		result.Elapsed = p.now().Sub(start)
		return result, err
	}

	reportID, err := p.api.RequestReport(ctx, scanID)
	if err != nil {
		return fail(fmt.Errorf("request report for scan %s: %w", scanID, err))
	}
	result.ReportID = reportID
	result.State = entities.PollGenerating

	delay := p.settings.InitialDelay
	for {
		if result.Attempts >= p.settings.MaxAttempts || p.now().Sub(start)+delay > p.settings.MaxWait {
			return fail(fmt.Errorf("%w: report %s of scan %s not ready after %d checks in %s",
				entities.ErrPollTimeout, reportID, scanID, result.Attempts, p.now().Sub(start).Round(time.Second)))
		}

		if err := p.sleep(ctx, delay); err != nil {
			return fail(fmt.Errorf("waiting for report %s: %w", reportID, err))
		}
		result.Attempts++

		status, err := p.api.ReportStatus(ctx, reportID)
		result.Elapsed = p.now().Sub(start)

		switch {
		case err != nil && isTransient(ctx, err):
			p.logger.Warn("Report status check failed, will retry",
				interfaces.F("scan", scanID),
				interfaces.F("report", reportID),
				interfaces.F("attempt", result.Attempts),
				interfaces.F("error", err))
		case err != nil:
			return fail(fmt.Errorf("status of report %s: %w", reportID, err))
		case status == entities.ReportFailed:
			return fail(fmt.Errorf("%w: report %s of scan %s failed to generate", entities.ErrFetchFailure, reportID, scanID))
		case status == entities.ReportReady:
			doc, err := p.api.DownloadReport(ctx, reportID)
			if err != nil {
				return fail(fmt.Errorf("download report %s: %w", reportID, err))
			}
			result.State = entities.PollReady
			result.Document = doc
			result.Elapsed = p.now().Sub(start)
			p.logger.Debug("Report ready",
				interfaces.F("scan", scanID),
				interfaces.F("report", reportID),
				interfaces.F("attempts", result.Attempts),
				interfaces.F("elapsed", result.Elapsed))
			return result, nil
		default:
			p.logger.Debug("Report still generating",
				interfaces.F("scan", scanID),
				interfaces.F("report", reportID),
				interfaces.F("attempt", result.Attempts))
		}

		delay = calculateBackoff(p.settings.InitialDelay, p.settings.MaxDelay, result.Attempts)
	}
}
