package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/verdantlabs/landchange/internal/config"
	"github.com/verdantlabs/landchange/internal/metrics"
	"github.com/verdantlabs/landchange/internal/models"
	"github.com/verdantlabs/landchange/internal/utils"
)

// ArchiveClient talks to the remote imagery archive over JSON/HTTP.
type ArchiveClient struct {
	baseURL       string
	tokenPath     string
	compositePath string
	exportPath    string
	keyID         string
	keySecret     string
	httpClient    *http.Client
}

// NewArchiveClient constructs a client from archive configuration.
func NewArchiveClient(cfg config.ArchiveConfig) *ArchiveClient {
	return &ArchiveClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		tokenPath:     cfg.TokenPath,
		compositePath: cfg.CompositePath,
		exportPath:    cfg.ExportPath,
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// ArchiveSession is an authenticated handle on the archive. It is safe for
// concurrent use.
type ArchiveSession struct {
	client *ArchiveClient
	token  string
}

// Authenticate exchanges the configured key for a session. A rejected key is
// reported as models.ErrAuthentication; the caller should not continue.
func (c *ArchiveClient) Authenticate(ctx context.Context) (*ArchiveSession, error) {
	const op = "archive.Authenticate"
	if c == nil {
		return nil, utils.NewAppError(op, "archive client not initialised", models.ErrArchiveUnavailable, nil)
	}
	if c.baseURL == "" {
		return nil, utils.NewAppError(op, "archive base URL not configured", models.ErrArchiveUnavailable, nil)
	}
	if c.keyID == "" || c.keySecret == "" {
		return nil, utils.NewAppError(op, "archive credentials not configured", models.ErrAuthentication, nil)
	}

	var token TokenResponse
	err := c.do(ctx, op, "", c.resolvePath(c.tokenPath), TokenRequest{KeyID: c.keyID, KeySecret: c.keySecret}, &token)
	metrics.ObserveArchiveRequest(metrics.OperationAuthenticate, err)
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, utils.NewAppError(op, "archive issued an empty token", models.ErrAuthentication, nil)
	}
	return &ArchiveSession{client: c, token: token.AccessToken}, nil
}

// FetchComposite asks the archive to compute and return a composite.
func (s *ArchiveSession) FetchComposite(ctx context.Context, req models.ImageRequest) (models.Raster, error) {
	const op = "archive.FetchComposite"
	var body CompositeResponse
	err := s.client.do(ctx, op, s.token, s.client.resolvePath(s.client.compositePath), EncodeCompositeRequest(req), &body)
	if err == nil && body.ImageCount == 0 {
		err = utils.NewAppError(op, fmt.Sprintf("no images in %s for %d", req.Collection, req.Year), models.ErrNoMatchingImages, nil)
	}
	metrics.ObserveArchiveRequest(metrics.OperationComposite, err)
	if err != nil {
		return models.Raster{}, err
	}

	raster, err := DecodeComposite(body)
	if err != nil {
		return models.Raster{}, utils.NewAppError(op, "malformed composite", models.ErrArchiveUnavailable, err)
	}
	return raster, nil
}

// SubmitExport queues an export task and returns without waiting for it.
func (s *ArchiveSession) SubmitExport(ctx context.Context, req models.ExportRequest) (models.ExportTask, error) {
	const op = "archive.SubmitExport"
	var body ExportResponse
	err := s.client.do(ctx, op, s.token, s.client.resolvePath(s.client.exportPath), EncodeExport(req), &body)
	metrics.ObserveArchiveRequest(metrics.OperationExport, err)
	if err != nil {
		return models.ExportTask{}, err
	}

	state := models.ExportState(strings.ToUpper(body.State))
	if state == "" {
		state = models.ExportStateSubmitted
	}
	submitted := body.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}
	return models.ExportTask{
		ID:          body.TaskID,
		Description: req.Description,
		Destination: req.Destination,
		State:       state,
		SubmittedAt: submitted,
	}, nil
}

func (c *ArchiveClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *ArchiveClient) do(ctx context.Context, op, token, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return utils.NewAppError(op, "archive base URL not configured", models.ErrArchiveUnavailable, nil)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(op, "marshal payload", nil, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(op, "build request", models.ErrArchiveUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(op, transportMessage(err), models.ErrArchiveUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return utils.NewAppError(op, "decode response", models.ErrArchiveUnavailable, err)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	var envelope ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := resp.Status
	if json.Unmarshal(data, &envelope) != nil {
		envelope = ErrorResponse{}
	}
	if envelope.Error != "" {
		msg = fmt.Sprintf("%s: %s", resp.Status, envelope.Error)
	}

	// A rejected request is only blamed on the region when the archive says so.
	var kind error
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = models.ErrAuthentication
	case resp.StatusCode == http.StatusNotFound:
		kind = models.ErrNoMatchingImages
	case (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity) && envelope.Field == RegionField:
		kind = models.ErrInvalidGeometry
	default:
		kind = models.ErrArchiveUnavailable
	}
	return utils.NewAppError(op, "archive returned "+msg, kind, nil)
}

func transportMessage(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "archive request timed out"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "archive request timed out"
	case errors.Is(err, context.Canceled):
		return "archive request cancelled"
	default:
		return "archive request failed"
	}
}
