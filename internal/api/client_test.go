package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/deliverydesk/internal/api"
	"github.com/jask/deliverydesk/internal/mockapi"
)

func newServer(t *testing.T) (*mockapi.Server, *api.Client) {
	t.Helper()
	srv := mockapi.New(mockapi.WithUser("op", "secret"))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, api.NewClient(ts.URL+"/api", "")
}

func TestLoginStoresToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := newServer(t)

	_, err := client.Login(ctx, "op", "wrong")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid login or password")
	require.Empty(t, client.Token())

	tok, err := client.Login(ctx, "op", "secret")
	require.NoError(t, err)
	require.NotEmpty(t, tok)
	require.Equal(t, tok, client.Token())
}

func TestCollectionsTreatNotFoundAsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := newServer(t)
	client.SetToken(srv.IssueToken("op"))
	id := srv.AddShipment(api.Shipment{Client: "ACME", Status: "ENTREGA_PENDENTE"})

	atts, err := client.Attachments(ctx, id)
	require.NoError(t, err)
	require.Empty(t, atts)

	returns, err := client.Returns(ctx, id)
	require.NoError(t, err)
	require.Empty(t, returns)

	list, err := client.ListShipments(ctx, api.ShipmentFilter{Status: "DEVOLUCAO_TOTAL"})
	require.NoError(t, err)
	require.Empty(t, list)

	list, err = client.ListShipments(ctx, api.ShipmentFilter{Status: "ENTREGA_PENDENTE"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "ACME", list[0].Client)
}

func TestUnauthorized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := newServer(t)
	id := srv.AddShipment(api.Shipment{})

	client.SetToken("expired")
	_, err := client.Tracking(ctx, id)
	require.ErrorIs(t, err, api.ErrUnauthorized)

	srv.Fail(http.MethodPost, "/api/entregas/"+id+"/atualizar-rastreamento", http.StatusForbidden, "nope")
	client.SetToken(srv.IssueToken("op"))
	_, err = client.RefreshTracking(ctx, id)
	require.ErrorIs(t, err, api.ErrUnauthorized)
}

func TestUploadWithoutTokenMakesNoRequest(t *testing.T) {
	t.Parallel()
	srv, client := newServer(t)
	id := srv.AddShipment(api.Shipment{})
	path := filepath.Join(t.TempDir(), "pod.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))

	_, err := client.UploadAttachment(context.Background(), id, path)
	require.ErrorIs(t, err, api.ErrUnauthorized)
	require.Zero(t, srv.Calls(http.MethodPost, "/api/comprovantes/upload"))
}

func TestUploadThenList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := newServer(t)
	client.SetToken(srv.IssueToken("op"))
	id := srv.AddShipment(api.Shipment{})
	path := filepath.Join(t.TempDir(), "pod.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))

	res, err := client.UploadAttachment(ctx, id, path)
	require.NoError(t, err)
	require.Equal(t, "pod.pdf", res.Attachment.FileName)

	atts, err := client.Attachments(ctx, id)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	require.Equal(t, "pod.pdf", atts[0].Name())

	resp, err := http.Get(client.DownloadURL(string(atts[0].ID)))
	require.NoError(t, err)
	defer resp.Body.Close()
	// download is not authenticated through the client; the mock requires a token
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadErrorReason(t *testing.T) {
	t.Parallel()
	srv, client := newServer(t)
	client.SetToken(srv.IssueToken("op"))
	id := srv.AddShipment(api.Shipment{})
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	_, err := client.UploadAttachment(context.Background(), id, path)
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "file type not allowed", apiErr.Error())
}

func TestFinalizeSendsLocalTimestamp(t *testing.T) {
	t.Parallel()
	var body map[string]string
	var method, path, auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path, auth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42, "STATUS": "ENTREGA_FINALIZADA", "DATAFINALIZACAO": "2026-03-04T10:11:12"}`))
	}))
	t.Cleanup(ts.Close)
	client := api.NewClient(ts.URL+"/api/", "tok")

	at := time.Date(2026, 3, 4, 10, 11, 12, 0, time.Local)
	sh, err := client.FinalizeShipment(context.Background(), "42", at)
	require.NoError(t, err)
	require.Equal(t, http.MethodPatch, method)
	require.Equal(t, "/api/entregas/finalizar/42", path)
	require.Equal(t, "Bearer tok", auth)
	require.Equal(t, map[string]string{"data_finalizacao": "2026-03-04 10:11:12"}, body)
	require.Equal(t, api.ID("42"), sh.ID)
	require.True(t, sh.Finalized())
}

func TestErrorReasonFallbacks(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"erro key", http.StatusBadRequest, `{"erro": "invalid shipment"}`, "invalid shipment"},
		{"mensagem key", http.StatusConflict, `{"mensagem": "already finalized"}`, "already finalized"},
		{"plain text", http.StatusBadGateway, `upstream down`, "upstream down"},
		{"html page", http.StatusInternalServerError, `<html>boom</html>`, "http 500: internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()
			_, err := api.NewClient(ts.URL, "tok").RefreshTracking(context.Background(), "1")
			require.EqualError(t, err, tc.want)
		})
	}
}

func TestDecodeTolerantFields(t *testing.T) {
	t.Parallel()
	var sh api.Shipment
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "17", "NUMNOTA": 991, "VLTOTAL": "1234.50", "DATAFINALIZACAO": null,
		"PREVISAOENTREGA": "04/03/2026 00:00:00", "STATUS": "ENTREGA_PENDENTE"
	}`), &sh))
	require.Equal(t, api.ID("17"), sh.ID)
	require.Equal(t, api.ID("991"), sh.InvoiceNumber)
	require.InDelta(t, 1234.5, float64(sh.TotalValue), 0.001)
	require.False(t, sh.Finalized())
	require.Equal(t, 2026, sh.ExpectedAt.Year())
	require.Equal(t, time.March, sh.ExpectedAt.Month())
}

func TestDecodeHTTPDateTimestamps(t *testing.T) {
	t.Parallel()
	var events []api.TrackingEvent
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id": 1, "timestamp": "Tue, 15 Nov 1994 12:45:26 GMT", "status_descricao": "saiu para entrega"},
		{"id": 2, "timestamp": "Tue, 15 Nov 1994 09:45:26 -0300", "status_descricao": "entregue"}
	]`), &events))
	require.Len(t, events, 2)
	want := time.Date(1994, time.November, 15, 12, 45, 26, 0, time.UTC)
	require.True(t, events[0].Timestamp.Equal(want), events[0].Timestamp.String())
	require.True(t, events[1].Timestamp.Equal(want), events[1].Timestamp.String())
}
