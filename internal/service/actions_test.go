package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/deliverydesk/internal/api"
	"github.com/jask/deliverydesk/internal/database"
	"github.com/jask/deliverydesk/internal/database/repository"
)

type fakeAPI struct {
	refresh   api.RefreshResult
	err       error
	uploads   []string
	finalized []time.Time
	refreshes int
}

func (f *fakeAPI) RefreshTracking(context.Context, string) (api.RefreshResult, error) {
	f.refreshes++
	return f.refresh, f.err
}

func (f *fakeAPI) UploadAttachment(_ context.Context, _ string, path string) (api.UploadResult, error) {
	f.uploads = append(f.uploads, path)
	return api.UploadResult{}, f.err
}

func (f *fakeAPI) FinalizeShipment(_ context.Context, _ string, at time.Time) (api.Shipment, error) {
	f.finalized = append(f.finalized, at)
	return api.Shipment{}, f.err
}

func openJournal(t *testing.T) (*Journal, *sql.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Journal{Activity: repository.NewActivityRepo(db)}, db
}

func writeFile(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))
	return path
}

func TestRefreshMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	journal, _ := openJournal(t)
	fake := &fakeAPI{refresh: api.RefreshResult{Mensagem: "3 new events"}}
	a := &Actions{API: fake, Journal: journal}

	msg, err := a.RefreshTracking(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "3 new events", msg)

	fake.refresh = api.RefreshResult{}
	msg, err = a.RefreshTracking(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, MsgRefreshed, msg)

	fake.err = &api.Error{Status: http.StatusGatewayTimeout, Reason: "timeout"}
	_, err = a.RefreshTracking(ctx, "42")
	require.EqualError(t, err, "timeout")

	entries, err := journal.Recent(ctx, "42", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.False(t, entries[0].OK)
	require.Equal(t, "timeout", entries[0].Message)
}

func TestUploadValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeAPI{}
	a := &Actions{API: fake, Uploads: UploadPolicy{MaxBytes: 1024, AllowedExtensions: []string{"pdf", "png"}}}

	_, err := a.Upload(ctx, "42", "")
	require.ErrorIs(t, err, ErrNoFileSelected)

	_, err = a.Upload(ctx, "42", writeFile(t, "notes.txt", 10))
	require.ErrorIs(t, err, ErrInvalidFile)
	require.Contains(t, err.Error(), "type not allowed")

	_, err = a.Upload(ctx, "42", writeFile(t, "big.pdf", 2048))
	require.ErrorIs(t, err, ErrInvalidFile)

	_, err = a.Upload(ctx, "42", filepath.Join(t.TempDir(), "missing.pdf"))
	require.ErrorIs(t, err, ErrInvalidFile)
	require.Contains(t, err.Error(), "file not found")
	require.Empty(t, fake.uploads)

	path := writeFile(t, "POD.PDF", 100)
	msg, err := a.Upload(ctx, "42", path)
	require.NoError(t, err)
	require.Equal(t, MsgUploaded, msg)
	require.Equal(t, []string{path}, fake.uploads)
}

func TestUploadFailureText(t *testing.T) {
	t.Parallel()
	a := &Actions{API: &fakeAPI{err: &api.Error{Status: http.StatusInternalServerError}}}
	_, err := a.Upload(context.Background(), "42", writeFile(t, "pod.pdf", 1))
	require.EqualError(t, err, FallbackUploadFail)

	a = &Actions{API: &fakeAPI{err: api.ErrUnauthorized}}
	_, err = a.Upload(context.Background(), "42", writeFile(t, "pod.pdf", 1))
	require.ErrorIs(t, err, api.ErrUnauthorized)
}

func TestFinalizeGate(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local)
	fake := &fakeAPI{}
	a := &Actions{API: fake, Now: func() time.Time { return fixed }}

	_, err := a.Finalize(context.Background(), "42", 0)
	require.ErrorIs(t, err, ErrGateClosed)
	require.Empty(t, fake.finalized)

	msg, err := a.Finalize(context.Background(), "42", 1)
	require.NoError(t, err)
	require.Equal(t, MsgFinalized, msg)
	require.Equal(t, []time.Time{fixed}, fake.finalized)
}

func TestFailureText(t *testing.T) {
	t.Parallel()
	require.Equal(t, "already finalized", FailureText(&api.Error{Status: 409, Reason: "already finalized"}, "x"))
	require.Equal(t, "x", FailureText(&api.Error{Status: 500}, "x"))
	require.Equal(t, "x: request timeout", FailureText(context.DeadlineExceeded, "x"))
	require.Equal(t, "x: boom", FailureText(errors.New("boom"), "x"))
	require.Equal(t, api.ErrUnauthorized.Error(), FailureText(api.ErrUnauthorized, "x"))
}
