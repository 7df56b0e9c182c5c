package repo

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/landchange/internal/config"
	"github.com/verdantlabs/landchange/internal/models"
)

func startArchiveServer(t *testing.T, archive *MemoryArchive) config.ArchiveConfig {
	t.Helper()
	cfg := testArchiveConfig()
	srv := httptest.NewServer(NewArchiveServer(nil, archive, cfg.KeyID, cfg.KeySecret).Handler(cfg))
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	return cfg
}

func TestArchiveClientAgainstArchiveServer(t *testing.T) {
	archive := NewSyntheticArchive(4, 4)
	cfg := startArchiveServer(t, archive)

	session, err := NewArchiveClient(cfg).Authenticate(context.Background())
	require.NoError(t, err)

	raster, err := session.FetchComposite(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 4, raster.Width)
	assert.Len(t, raster.Bands["B5"], 16)

	direct, err := archive.FetchComposite(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, direct.Bands["B5"], raster.Bands["B5"])
	assert.Equal(t, direct.Valid, raster.Valid)

	task, err := session.SubmitExport(context.Background(), models.ExportRequest{
		Description: "change_detection",
		Scale:       30,
		Region:      testRequest().Region,
		Destination: "drive",
		Format:      "GeoTIFF",
		Payload:     []byte("II*\x00"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, models.ExportStateSubmitted, task.State)

	exports := archive.Exports()
	require.Len(t, exports, 1)
	assert.Equal(t, []byte("II*\x00"), exports[0].Payload)
	assert.Equal(t, 3, exports[0].Region.Len())
}

func TestArchiveServerRejectsBadCredentials(t *testing.T) {
	cfg := startArchiveServer(t, NewSyntheticArchive(2, 2))
	cfg.KeySecret = "wrong"

	_, err := NewArchiveClient(cfg).Authenticate(context.Background())
	assert.ErrorIs(t, err, models.ErrAuthentication)
}

func TestArchiveServerRequiresToken(t *testing.T) {
	cfg := startArchiveServer(t, NewSyntheticArchive(2, 2))
	client := NewArchiveClient(cfg)
	forged := &ArchiveSession{client: client, token: "forged"}

	_, err := forged.FetchComposite(context.Background(), testRequest())
	assert.ErrorIs(t, err, models.ErrAuthentication)
}

func TestArchiveServerNoMatchingImages(t *testing.T) {
	cfg := startArchiveServer(t, NewMemoryArchive())
	session, err := NewArchiveClient(cfg).Authenticate(context.Background())
	require.NoError(t, err)

	_, err = session.FetchComposite(context.Background(), testRequest())
	assert.ErrorIs(t, err, models.ErrNoMatchingImages)
}

func TestArchiveServerRejectsDegenerateRegion(t *testing.T) {
	cfg := startArchiveServer(t, NewSyntheticArchive(2, 2))
	session, err := NewArchiveClient(cfg).Authenticate(context.Background())
	require.NoError(t, err)

	req := testRequest()
	req.Region = models.NewROI([]models.LatLon{{Lat: -1.2, Lon: 36.8}, {Lat: -1.3, Lon: 36.8}})
	_, err = session.FetchComposite(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrInvalidGeometry)
	assert.NotErrorIs(t, err, models.ErrArchiveUnavailable)
}
