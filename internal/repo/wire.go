package repo

import (
	"fmt"
	"time"

	"github.com/verdantlabs/landchange/internal/models"
	"github.com/verdantlabs/landchange/internal/utils"
)

// TokenRequest exchanges a service-account key for a bearer token.
type TokenRequest struct {
	KeyID     string `json:"key_id"`
	KeySecret string `json:"key_secret"`
}

// TokenResponse carries the issued bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// CloudMaskBody is the wire form of models.CloudMaskPolicy.
type CloudMaskBody struct {
	QABand   string `json:"qa_band"`
	CloudBit uint   `json:"cloud_bit"`
}

// CompositeRequest asks the archive for a reduced, cloud-masked composite.
type CompositeRequest struct {
	Collection string                `json:"collection"`
	Year       int                   `json:"year"`
	Region     models.GeoJSONPolygon `json:"region"`
	Start      string                `json:"start"`
	End        string                `json:"end"`
	CloudMask  CloudMaskBody         `json:"cloud_mask"`
	Reducer    string                `json:"reducer"`
	Clip       bool                  `json:"clip"`
	Bands      []string              `json:"bands,omitempty"`
}

// TransformBody is the wire form of models.GeoTransform.
type TransformBody struct {
	OriginLon   float64 `json:"origin_lon"`
	OriginLat   float64 `json:"origin_lat"`
	PixelWidth  float64 `json:"pixel_width"`
	PixelHeight float64 `json:"pixel_height"`
}

// CompositeResponse is the computed composite. Pixels absent from Valid are
// reported with zero samples.
type CompositeResponse struct {
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	Bands      map[string][]float64 `json:"bands"`
	Valid      []bool               `json:"valid,omitempty"`
	Transform  TransformBody        `json:"transform"`
	ImageCount int                  `json:"image_count"`
}

// ExportBody submits an export task.
type ExportBody struct {
	Description string                `json:"description"`
	Scale       float64               `json:"scale"`
	Region      models.GeoJSONPolygon `json:"region"`
	Destination string                `json:"destination"`
	FilePrefix  string                `json:"file_prefix"`
	Format      string                `json:"format"`
	Payload     []byte                `json:"payload,omitempty"`
}

// ExportResponse acknowledges an export task.
type ExportResponse struct {
	TaskID      string    `json:"task_id"`
	State       string    `json:"state"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ErrorResponse is the archive's error envelope. Field names the rejected
// request field when the archive can tell.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// RegionField is the ErrorResponse.Field value for a rejected region.
const RegionField = "region"

// EncodeCompositeRequest converts a domain request into its wire form.
func EncodeCompositeRequest(req models.ImageRequest) CompositeRequest {
	return CompositeRequest{
		Collection: req.Collection,
		Year:       req.Year,
		Region:     req.Region.GeoJSON(),
		Start:      utils.FormatDay(req.Dates.Start),
		End:        utils.FormatDay(req.Dates.End),
		CloudMask:  CloudMaskBody{QABand: req.CloudMask.QABand, CloudBit: req.CloudMask.CloudBit},
		Reducer:    string(req.Reducer),
		Clip:       req.ClipToROI,
		Bands:      append([]string(nil), req.Bands...),
	}
}

// DecodeCompositeRequest converts a wire request into a domain request.
func DecodeCompositeRequest(body CompositeRequest) (models.ImageRequest, error) {
	start, err := utils.ParseDay(body.Start)
	if err != nil {
		return models.ImageRequest{}, fmt.Errorf("start: %w", err)
	}
	end, err := utils.ParseDay(body.End)
	if err != nil {
		return models.ImageRequest{}, fmt.Errorf("end: %w", err)
	}
	region := models.ROIFromGeoJSON(body.Region)
	if region.Len() < 3 {
		return models.ImageRequest{}, fmt.Errorf("region: %w", models.ErrInvalidGeometry)
	}
	return models.ImageRequest{
		Collection: body.Collection,
		Year:       body.Year,
		Region:     region,
		Dates:      models.DateRange{Start: start, End: end},
		CloudMask:  models.CloudMaskPolicy{QABand: body.CloudMask.QABand, CloudBit: body.CloudMask.CloudBit},
		Reducer:    models.Reducer(body.Reducer),
		ClipToROI:  body.Clip,
		Bands:      body.Bands,
	}, nil
}

// EncodeComposite converts a raster into its wire form.
func EncodeComposite(r models.Raster, imageCount int) CompositeResponse {
	return CompositeResponse{
		Width:      r.Width,
		Height:     r.Height,
		Bands:      r.Bands,
		Valid:      r.Valid,
		Transform:  TransformBody(r.Transform),
		ImageCount: imageCount,
	}
}

// DecodeComposite validates a wire composite and converts it to a raster.
func DecodeComposite(body CompositeResponse) (models.Raster, error) {
	if err := models.CheckGrid(body.Width, body.Height); err != nil {
		return models.Raster{}, fmt.Errorf("composite: %w", err)
	}
	n := body.Width * body.Height
	for name, values := range body.Bands {
		if len(values) != n {
			return models.Raster{}, fmt.Errorf("band %q has %d samples for %d pixels: %w", name, len(values), n, models.ErrShapeMismatch)
		}
	}
	if body.Valid != nil && len(body.Valid) != n {
		return models.Raster{}, fmt.Errorf("valid mask has %d entries for %d pixels: %w", len(body.Valid), n, models.ErrShapeMismatch)
	}
	return models.Raster{
		Width:     body.Width,
		Height:    body.Height,
		Bands:     body.Bands,
		Valid:     body.Valid,
		Transform: models.GeoTransform(body.Transform),
	}, nil
}

// EncodeExport converts a domain export request into its wire form.
func EncodeExport(req models.ExportRequest) ExportBody {
	return ExportBody{
		Description: req.Description,
		Scale:       req.Scale,
		Region:      req.Region.GeoJSON(),
		Destination: req.Destination,
		FilePrefix:  req.FilePrefix,
		Format:      req.Format,
		Payload:     req.Payload,
	}
}

// DecodeExport converts a wire export request into a domain request.
func DecodeExport(body ExportBody) models.ExportRequest {
	return models.ExportRequest{
		Description: body.Description,
		Scale:       body.Scale,
		Region:      models.ROIFromGeoJSON(body.Region),
		Destination: body.Destination,
		FilePrefix:  body.FilePrefix,
		Format:      body.Format,
		Payload:     body.Payload,
	}
}
