package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/verdantlabs/landchange/internal/config"
	"github.com/verdantlabs/landchange/internal/models"
)

func testArchiveConfig() config.ArchiveConfig {
	cfg := config.Default().Archive
	cfg.BaseURL = "https://archive.example.com/api"
	cfg.KeyID = "svc-account"
	cfg.KeySecret = "secret"
	cfg.Timeout = time.Second
	return cfg
}

func jsonResponse(t *testing.T, status int, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
	}
}

func testRequest() models.ImageRequest {
	roi := models.NewROI([]models.LatLon{{Lat: -1.2, Lon: 36.8}, {Lat: -1.3, Lon: 36.8}, {Lat: -1.3, Lon: 36.9}})
	return models.ImageRequest{
		Collection: "LANDSAT/LC08/C01/T1_SR",
		Year:       2015,
		Region:     roi,
		Dates: models.DateRange{
			Start: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC),
		},
		CloudMask: models.CloudMaskPolicy{QABand: "pixel_qa", CloudBit: 5},
		Reducer:   models.ReducerMedian,
		ClipToROI: true,
		Bands:     []string{"B5", "B4"},
	}
}

func TestArchiveSessionFetchComposite(t *testing.T) {
	client := NewArchiveClient(testArchiveConfig())
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/api/v1/auth/token":
			var body TokenRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				t.Fatalf("decode token request: %v", err)
			}
			if body.KeyID != "svc-account" || body.KeySecret != "secret" {
				t.Fatalf("unexpected credentials: %+v", body)
			}
			return jsonResponse(t, http.StatusOK, TokenResponse{AccessToken: "tok-1", TokenType: "Bearer"}), nil
		case "/api/v1/composites":
			if got := req.Header.Get("Authorization"); got != "Bearer tok-1" {
				t.Fatalf("unexpected authorization header %q", got)
			}
			var body CompositeRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				t.Fatalf("decode composite request: %v", err)
			}
			if body.Start != "2015-01-01" || body.End != "2015-12-31" || body.Reducer != "median" || !body.Clip {
				t.Fatalf("unexpected composite request: %+v", body)
			}
			ring := body.Region.Coordinates[0]
			if len(ring) != 4 || ring[0][0] != 36.8 || ring[0][1] != -1.2 {
				t.Fatalf("expected closed [lon, lat] ring, got %v", ring)
			}
			return jsonResponse(t, http.StatusOK, CompositeResponse{
				Width:      2,
				Height:     1,
				Bands:      map[string][]float64{"B5": {3000, 0}, "B4": {1000, 0}},
				Valid:      []bool{true, false},
				Transform:  TransformBody{OriginLon: 36.8, OriginLat: -1.2, PixelWidth: 0.05, PixelHeight: 0.1},
				ImageCount: 7,
			}), nil
		default:
			t.Fatalf("unexpected path %s", req.URL.Path)
			return nil, nil
		}
	}))

	session, err := client.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	raster, err := session.FetchComposite(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("fetch composite: %v", err)
	}
	if raster.Width != 2 || raster.PixelValid(1) || raster.Bands["B5"][0] != 3000 {
		t.Fatalf("unexpected raster: %+v", raster)
	}
	if raster.Transform.PixelWidth != 0.05 {
		t.Fatalf("transform not decoded: %+v", raster.Transform)
	}
}

func TestArchiveAuthenticationFailure(t *testing.T) {
	client := NewArchiveClient(testArchiveConfig())
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusUnauthorized, ErrorResponse{Error: "unknown key"}), nil
	}))

	_, err := client.Authenticate(context.Background())
	if !errors.Is(err, models.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}

	cfg := testArchiveConfig()
	cfg.KeySecret = ""
	if _, err := NewArchiveClient(cfg).Authenticate(context.Background()); !errors.Is(err, models.ErrAuthentication) {
		t.Fatalf("expected authentication error for missing secret, got %v", err)
	}
}

func TestArchiveErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		response func() (*http.Response, error)
		want     error
	}{
		{
			name: "server error",
			response: func() (*http.Response, error) {
				return jsonResponse(t, http.StatusBadGateway, ErrorResponse{Error: "upstream"}), nil
			},
			want: models.ErrArchiveUnavailable,
		},
		{
			name:     "not found",
			response: func() (*http.Response, error) { return jsonResponse(t, http.StatusNotFound, ErrorResponse{}), nil },
			want:     models.ErrNoMatchingImages,
		},
		{
			name: "empty collection",
			response: func() (*http.Response, error) {
				return jsonResponse(t, http.StatusOK, CompositeResponse{Width: 1, Height: 1}), nil
			},
			want: models.ErrNoMatchingImages,
		},
		{
			name: "bad request without field",
			response: func() (*http.Response, error) {
				return jsonResponse(t, http.StatusBadRequest, ErrorResponse{Error: "malformed request body"}), nil
			},
			want: models.ErrArchiveUnavailable,
		},
		{
			name: "unprocessable region",
			response: func() (*http.Response, error) {
				return jsonResponse(t, http.StatusUnprocessableEntity, ErrorResponse{Error: "self-intersecting ring", Field: RegionField}), nil
			},
			want: models.ErrInvalidGeometry,
		},
		{
			name:     "network",
			response: func() (*http.Response, error) { return nil, errors.New("connection refused") },
			want:     models.ErrArchiveUnavailable,
		},
		{
			name: "malformed grid",
			response: func() (*http.Response, error) {
				return jsonResponse(t, http.StatusOK, CompositeResponse{Width: 2, Height: 2, Bands: map[string][]float64{"B5": {1}}, ImageCount: 1}), nil
			},
			want: models.ErrArchiveUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := NewArchiveClient(testArchiveConfig())
			client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
				return tc.response()
			}))
			session := &ArchiveSession{client: client, token: "tok"}
			_, err := session.FetchComposite(context.Background(), testRequest())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestArchiveSessionSubmitExport(t *testing.T) {
	client := NewArchiveClient(testArchiveConfig())
	submitted := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/v1/exports" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		var body ExportBody
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode export: %v", err)
		}
		if body.Description != "change_detection" || body.Scale != 30 || string(body.Payload) != "tiff" {
			t.Fatalf("unexpected export body: %+v", body)
		}
		return jsonResponse(t, http.StatusOK, ExportResponse{TaskID: "task-9", State: "running", SubmittedAt: submitted}), nil
	}))

	session := &ArchiveSession{client: client, token: "tok"}
	task, err := session.SubmitExport(context.Background(), models.ExportRequest{
		Description: "change_detection",
		Scale:       30,
		Region:      testRequest().Region,
		Destination: "drive",
		Payload:     []byte("tiff"),
	})
	if err != nil {
		t.Fatalf("submit export: %v", err)
	}
	if task.ID != "task-9" || task.State != models.ExportStateRunning || !task.SubmittedAt.Equal(submitted) {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestCompositeRequestRoundTrip(t *testing.T) {
	req := testRequest()
	decoded, err := DecodeCompositeRequest(EncodeCompositeRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Region.Len() != 3 || !decoded.Dates.Start.Equal(req.Dates.Start) || decoded.CloudMask != req.CloudMask {
		t.Fatalf("unexpected decoded request: %+v", decoded)
	}
}
