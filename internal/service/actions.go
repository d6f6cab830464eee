package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jask/deliverydesk/internal/api"
)

var (
	// ErrNoFileSelected is returned by Upload when no path was chosen.
	ErrNoFileSelected = errors.New("no file selected")
	// ErrGateClosed is returned by Finalize while the shipment has no attachment.
	ErrGateClosed = errors.New("finalization requires at least one attachment")
	// ErrInvalidFile wraps every upload validation failure.
	ErrInvalidFile = errors.New("invalid file")
)

// Outcome texts shown in the status line.
const (
	MsgRefreshed        = "tracking data refreshed"
	MsgUploaded         = "attachment uploaded"
	MsgFinalized        = "shipment finalized"
	FallbackRefreshFail = "failed to refresh tracking"
	FallbackUploadFail  = "attachment upload failed"
	FallbackFinalize    = "failed to finalize shipment"
)

// ActionAPI is the remote side of the three state-changing actions.
type ActionAPI interface {
	RefreshTracking(ctx context.Context, shipmentID string) (api.RefreshResult, error)
	UploadAttachment(ctx context.Context, shipmentID, path string) (api.UploadResult, error)
	FinalizeShipment(ctx context.Context, shipmentID string, at time.Time) (api.Shipment, error)
}

// UploadPolicy mirrors the server's upload limits.
type UploadPolicy struct {
	MaxBytes          int64
	AllowedExtensions []string
}

// Validate checks that path exists, is a regular file, has an accepted
// extension and fits under MaxBytes.
func (p UploadPolicy) Validate(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return ErrNoFileSelected
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidFile, describeStatErr(err))
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidFile, filepath.Base(path))
	}
	if len(p.AllowedExtensions) > 0 {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		allowed := false
		for _, a := range p.AllowedExtensions {
			if strings.TrimPrefix(strings.ToLower(a), ".") == ext {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: type not allowed, use %s", ErrInvalidFile, strings.Join(p.AllowedExtensions, ", "))
		}
	}
	if p.MaxBytes > 0 && info.Size() > p.MaxBytes {
		return fmt.Errorf("%w: %s exceeds the %d MiB limit", ErrInvalidFile, filepath.Base(path), p.MaxBytes>>20)
	}
	return nil
}

func describeStatErr(err error) string {
	if errors.Is(err, os.ErrNotExist) {
		return "file not found"
	}
	return err.Error()
}

// Actions runs refresh, upload and finalize against the API, journaling each
// outcome. Every call is bounded by Timeout.
type Actions struct {
	API     ActionAPI
	Timeout time.Duration
	Uploads UploadPolicy
	Journal *Journal
	Log     *zap.Logger
	Now     func() time.Time
}

// RefreshTracking returns the server's message, or MsgRefreshed when it sent none.
func (a *Actions) RefreshTracking(ctx context.Context, shipmentID string) (string, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	start := time.Now()

	res, err := a.API.RefreshTracking(ctx, shipmentID)
	if err != nil {
		return "", a.fail(ctx, shipmentID, ActionRefresh, FallbackRefreshFail, start, err)
	}
	msg := strings.TrimSpace(res.Text())
	if msg == "" {
		msg = MsgRefreshed
	}
	a.succeed(ctx, shipmentID, ActionRefresh, msg, start)
	return msg, nil
}

// Upload validates and sends path. An empty path is ErrNoFileSelected.
func (a *Actions) Upload(ctx context.Context, shipmentID, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrNoFileSelected
	}
	ctx, cancel := a.bound(ctx)
	defer cancel()
	start := time.Now()

	if err := a.Uploads.Validate(path); err != nil {
		return "", a.fail(ctx, shipmentID, ActionUpload, FallbackUploadFail, start, err)
	}
	if _, err := a.API.UploadAttachment(ctx, shipmentID, path); err != nil {
		return "", a.fail(ctx, shipmentID, ActionUpload, FallbackUploadFail, start, err)
	}
	a.succeed(ctx, shipmentID, ActionUpload, MsgUploaded+": "+filepath.Base(path), start)
	return MsgUploaded, nil
}

// Finalize refuses with ErrGateClosed, without calling the API, when
// attachments is zero.
func (a *Actions) Finalize(ctx context.Context, shipmentID string, attachments int) (string, error) {
	if attachments <= 0 {
		return "", ErrGateClosed
	}
	ctx, cancel := a.bound(ctx)
	defer cancel()
	start := time.Now()

	if _, err := a.API.FinalizeShipment(ctx, shipmentID, a.now()); err != nil {
		return "", a.fail(ctx, shipmentID, ActionFinalize, FallbackFinalize, start, err)
	}
	a.succeed(ctx, shipmentID, ActionFinalize, MsgFinalized, start)
	return MsgFinalized, nil
}

func (a *Actions) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.Timeout > 0 {
		return context.WithTimeout(ctx, a.Timeout)
	}
	return context.WithCancel(ctx)
}

func (a *Actions) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Actions) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

func (a *Actions) succeed(ctx context.Context, shipmentID, action, msg string, start time.Time) {
	a.logger().Info("action succeeded",
		zap.String("shipment_id", shipmentID),
		zap.String("action", action),
		zap.Duration("duration", time.Since(start)))
	a.Journal.Record(context.WithoutCancel(ctx), shipmentID, action, true, msg)
}

func (a *Actions) fail(ctx context.Context, shipmentID, action, fallback string, start time.Time, err error) error {
	a.logger().Warn("action failed",
		zap.String("shipment_id", shipmentID),
		zap.String("action", action),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	text := FailureText(err, fallback)
	a.Journal.Record(context.WithoutCancel(ctx), shipmentID, action, false, text)
	return &ActionError{Text: text, Err: err}
}

// ActionError carries the user facing text for a failed action.
type ActionError struct {
	Text string
	Err  error
}

func (e *ActionError) Error() string { return e.Text }
func (e *ActionError) Unwrap() error { return e.Err }

// FailureText is the status line text for err: the server's reason verbatim
// when it gave one, otherwise fallback with whatever detail err carries.
func FailureText(err error, fallback string) string {
	var apiErr *api.Error
	switch {
	case err == nil:
		return fallback
	case errors.As(err, &apiErr):
		if apiErr.Reason != "" {
			return apiErr.Reason
		}
		return fallback
	case errors.Is(err, api.ErrUnauthorized), errors.Is(err, ErrInvalidFile), errors.Is(err, ErrNoFileSelected):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return fallback + ": request timeout"
	default:
		return fallback + ": " + err.Error()
	}
}
