package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FinalizationLayout is the timestamp format PATCH /entregas/finalizar expects.
const FinalizationLayout = "2006-01-02 15:04:05"

// ErrUnauthorized is returned for 401/403 answers and when a call that needs a
// bearer token is attempted without one.
var ErrUnauthorized = errors.New("not authorized: session expired, log in again")

// Error is a non-2xx answer from the API. Reason carries the server supplied
// text when there is one.
type Error struct {
	Status int
	Reason string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("http %d: %s", e.Status, strings.ToLower(http.StatusText(e.Status)))
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the delivery API. It is safe for concurrent use; the token
// can be swapped after a login while requests are in flight.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger attaches a logger for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient returns a client for the API rooted at baseURL. An empty token
// leaves the client anonymous until Login or SetToken.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		log:     zap.NewNop(),
		token:   token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// DownloadURL is the link for an attachment; the client never fetches it.
func (c *Client) DownloadURL(attachmentID string) string {
	return c.baseURL + "/comprovantes/" + url.PathEscape(attachmentID) + "/download"
}

type call struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	anonymous   bool
}

func (c *Client) do(ctx context.Context, in call, out any) error {
	req, err := http.NewRequestWithContext(ctx, in.method, c.baseURL+in.path, in.body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in.contentType != "" {
		req.Header.Set("Content-Type", in.contentType)
	}
	if tok := c.Token(); tok != "" && !in.anonymous {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", zap.String("method", in.method), zap.String("path", in.path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	c.log.Debug("request done",
		zap.String("method", in.method),
		zap.String("path", in.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if !in.anonymous && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s %s: %w", in.method, in.path, err)
	}
	return nil
}

// decodeError pulls a human readable reason out of an error body. The API is
// inconsistent about the key it uses, so all of them are tried.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &Error{Status: resp.StatusCode}
	var body struct {
		Erro     string `json:"erro"`
		Error    string `json:"error"`
		Message  string `json:"message"`
		Mensagem string `json:"mensagem"`
	}
	if json.Unmarshal(raw, &body) == nil {
		for _, s := range []string{body.Erro, body.Error, body.Message, body.Mensagem} {
			if strings.TrimSpace(s) != "" {
				apiErr.Reason = strings.TrimSpace(s)
				return apiErr
			}
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && !strings.HasPrefix(text, "<") {
		apiErr.Reason = text
	}
	return apiErr
}

// Login exchanges credentials for an access token and keeps it on the client.
func (c *Client) Login(ctx context.Context, login, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{"login": login, "senha": password})
	if err != nil {
		return "", err
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, call{
		method:      http.MethodPost,
		path:        "/login",
		body:        bytes.NewReader(payload),
		contentType: "application/json",
		anonymous:   true,
	}, &out); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("login: no access token in response")
	}
	c.SetToken(out.AccessToken)
	return out.AccessToken, nil
}

// ListShipments returns shipments matching f. The API answers 404 when
// nothing matches; that is reported as an empty list.
func (c *Client) ListShipments(ctx context.Context, f ShipmentFilter) ([]Shipment, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.DriverID != "" {
		q.Set("motorista_id", f.DriverID)
	}
	if !f.From.IsZero() {
		q.Set("data_inicial", f.From.Format("2006-01-02"))
	}
	if !f.To.IsZero() {
		q.Set("data_final", f.To.Format("2006-01-02"))
	}
	path := "/entregas/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Shipment
	if err := c.collection(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Attachments lists the proof-of-delivery files of a shipment.
func (c *Client) Attachments(ctx context.Context, shipmentID string) ([]Attachment, error) {
	var out []Attachment
	if err := c.collection(ctx, shipmentPath(shipmentID, "comprovantes"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Returns lists the return records of a shipment.
func (c *Client) Returns(ctx context.Context, shipmentID string) ([]ReturnRecord, error) {
	var out []ReturnRecord
	if err := c.collection(ctx, shipmentPath(shipmentID, "devolucoes"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Tracking lists the carrier tracking events of a shipment in server order.
func (c *Client) Tracking(ctx context.Context, shipmentID string) ([]TrackingEvent, error) {
	var out []TrackingEvent
	if err := c.collection(ctx, shipmentPath(shipmentID, "rastreamento"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) collection(ctx context.Context, path string, out any) error {
	err := c.do(ctx, call{method: http.MethodGet, path: path}, out)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// RefreshTracking asks the server to re-poll the carrier for shipmentID.
func (c *Client) RefreshTracking(ctx context.Context, shipmentID string) (RefreshResult, error) {
	var out RefreshResult
	err := c.do(ctx, call{method: http.MethodPost, path: shipmentPath(shipmentID, "atualizar-rastreamento")}, &out)
	return out, err
}

// UploadAttachment sends the file at path as a proof of delivery. A missing
// token fails before any request is made.
func (c *Client) UploadAttachment(ctx context.Context, shipmentID, path string) (UploadResult, error) {
	var out UploadResult
	if c.Token() == "" {
		return out, ErrUnauthorized
	}
	f, err := os.Open(path)
	if err != nil {
		return out, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("entrega_id", shipmentID); err != nil {
		return out, err
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return out, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return out, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := mw.Close(); err != nil {
		return out, err
	}

	err = c.do(ctx, call{
		method:      http.MethodPost,
		path:        "/comprovantes/upload",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}, &out)
	return out, err
}

// FinalizeShipment marks shipmentID as delivered at the given local time.
func (c *Client) FinalizeShipment(ctx context.Context, shipmentID string, at time.Time) (Shipment, error) {
	var out Shipment
	payload, err := json.Marshal(map[string]string{"data_finalizacao": at.Format(FinalizationLayout)})
	if err != nil {
		return out, err
	}
	err = c.do(ctx, call{
		method:      http.MethodPatch,
		path:        "/entregas/finalizar/" + url.PathEscape(shipmentID),
		body:        bytes.NewReader(payload),
		contentType: "application/json",
	}, &out)
	return out, err
}

func shipmentPath(id, sub string) string {
	return "/entregas/" + url.PathEscape(id) + "/" + sub
}
