package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/verdantlabs/landchange/internal/models"
	"github.com/verdantlabs/landchange/internal/render"
)

// DetectRequest is the user-facing run request. ROI is either a JSON string
// holding the vertex list or the vertex list itself.
type DetectRequest struct {
	ROI               json.RawMessage `json:"roi"`
	StartYear         int             `json:"start_year"`
	EndYear           int             `json:"end_year"`
	Threshold         *float64        `json:"threshold,omitempty"`
	Destination       string          `json:"destination,omitempty"`
	IncludeQuicklooks bool            `json:"include_quicklooks,omitempty"`
}

// RunRequest converts the payload into a domain run request.
func (r DetectRequest) RunRequest() (models.RunRequest, error) {
	text, err := roiText(r.ROI)
	if err != nil {
		return models.RunRequest{}, err
	}
	return models.RunRequest{
		ROIText:   text,
		StartYear: r.StartYear,
		EndYear:   r.EndYear,
		Threshold: r.Threshold,
	}, nil
}

// roiText accepts the raw JSON of the roi field. A JSON string is unwrapped so
// that the validator sees the user's text verbatim.
func roiText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", fmt.Errorf("roi is required: %w", models.ErrInvalidGeometry)
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return "", fmt.Errorf("roi: %w", models.ErrInvalidGeometry)
		}
		return text, nil
	}
	return string(trimmed), nil
}

// LatLonView is a coordinate in responses.
type LatLonView struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IndexStatsView describes an NDVI raster.
type IndexStatsView struct {
	Defined int     `json:"defined"`
	Mean    float64 `json:"mean"`
	Median  float64 `json:"median"`
	StdDev  float64 `json:"std_dev"`
	P10     float64 `json:"p10"`
	P90     float64 `json:"p90"`
}

// SummaryView reports classifier counts.
type SummaryView struct {
	Changed         int            `json:"changed"`
	Unchanged       int            `json:"unchanged"`
	Masked          int            `json:"masked"`
	ChangedFraction float64        `json:"changed_fraction"`
	Start           IndexStatsView `json:"start"`
	End             IndexStatsView `json:"end"`
}

// LayerView describes a map layer and, optionally, its PNG quicklook.
type LayerView struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	Bands     []string `json:"bands,omitempty"`
	Min       float64  `json:"min"`
	Max       float64  `json:"max"`
	Palette   []string `json:"palette,omitempty"`
	Quicklook []byte   `json:"quicklook_png,omitempty"`
}

// RunView is the response to a detection run.
type RunView struct {
	RunID         string       `json:"run_id"`
	StartYear     int          `json:"start_year"`
	EndYear       int          `json:"end_year"`
	YearsReversed bool         `json:"years_reversed"`
	Warning       string       `json:"warning,omitempty"`
	Threshold     float64      `json:"threshold"`
	Center        LatLonView   `json:"center"`
	Zoom          int          `json:"zoom"`
	ROI           [][2]float64 `json:"roi"`
	Summary       SummaryView  `json:"summary"`
	Layers        []LayerView  `json:"layers"`
	Export        *ExportView  `json:"export,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// ExportView acknowledges a submitted export.
type ExportView struct {
	TaskID      string    `json:"task_id"`
	Description string    `json:"description"`
	Destination string    `json:"destination"`
	State       string    `json:"state"`
	SubmittedAt time.Time `json:"submitted_at"`
	Message     string    `json:"message"`
}

// ErrorView is the error envelope returned by the HTTP API.
type ErrorView struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewRunView converts a run result. Quicklooks are rendered only on request.
func NewRunView(result models.RunResult, quicklooks bool) (RunView, error) {
	view := RunView{
		RunID:         result.RunID,
		StartYear:     result.StartYear,
		EndYear:       result.EndYear,
		YearsReversed: result.YearsReversed,
		Warning:       ReversedYearsWarning(result),
		Threshold:     result.Threshold,
		Center:        LatLonView{Lat: result.View.Center.Lat, Lon: result.View.Center.Lon},
		Zoom:          result.View.Zoom,
		Summary: SummaryView{
			Changed:         result.Summary.Changed,
			Unchanged:       result.Summary.Unchanged,
			Masked:          result.Summary.Masked,
			ChangedFraction: result.Summary.ChangedFraction,
			Start:           IndexStatsView(result.Summary.Start),
			End:             IndexStatsView(result.Summary.End),
		},
		CreatedAt: result.CreatedAt,
	}
	for _, v := range result.ROI.Vertices() {
		view.ROI = append(view.ROI, [2]float64{v.Lat, v.Lon})
	}
	for _, layer := range result.Layers {
		lv := LayerView{
			Name:    layer.Name,
			Kind:    string(layer.Kind),
			Bands:   layer.Style.Bands,
			Min:     layer.Style.Min,
			Max:     layer.Style.Max,
			Palette: layer.Style.Palette,
		}
		if quicklooks {
			png, err := render.QuicklookLayer(layer)
			if err != nil {
				return RunView{}, fmt.Errorf("quicklook %q: %w", layer.Name, err)
			}
			lv.Quicklook = png
		}
		view.Layers = append(view.Layers, lv)
	}
	return view, nil
}

// NewExportView converts an export acknowledgement.
func NewExportView(task models.ExportTask, message string) *ExportView {
	return &ExportView{
		TaskID:      task.ID,
		Description: task.Description,
		Destination: task.Destination,
		State:       string(task.State),
		SubmittedAt: task.SubmittedAt,
		Message:     message,
	}
}

// FromProtoDetectRequest maps a gRPC Struct into a DetectRequest.
func FromProtoDetectRequest(in *structpb.Struct) (DetectRequest, error) {
	if in == nil {
		return DetectRequest{}, fmt.Errorf("request is nil")
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return DetectRequest{}, fmt.Errorf("encode request: %w", err)
	}
	var req DetectRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return DetectRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

// ToProtoStruct converts any JSON-serialisable view into a gRPC Struct.
func ToProtoStruct(view any) (*structpb.Struct, error) {
	data, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert response: %w", err)
	}
	return out, nil
}
