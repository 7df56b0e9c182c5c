package api

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/verdantlabs/landchange/internal/engine"
	"github.com/verdantlabs/landchange/internal/models"
	"github.com/verdantlabs/landchange/internal/validation"
)

func sampleResult() models.RunResult {
	mask := models.ChangeMask{
		Width:  2,
		Height: 1,
		States: []models.PixelState{models.PixelChanged, models.PixelMasked},
	}
	image := models.Raster{
		Width:  2,
		Height: 1,
		Bands:  map[string][]float64{"B4": {100, 200}, "B3": {100, 200}, "B2": {100, 200}},
	}
	result := models.RunResult{
		RunID:     "run-1",
		ROI:       models.NewROI([]models.LatLon{{Lat: -1.2, Lon: 36.8}, {Lat: -1.3, Lon: 36.8}, {Lat: -1.3, Lon: 36.9}}),
		StartYear: 2015,
		EndYear:   2020,
		Threshold: 0.2,
		Mask:      mask,
		Summary: models.ChangeSummary{
			Changed:         1,
			Masked:          1,
			ChangedFraction: 1,
			Start:           models.IndexStats{Defined: 1, Mean: 0.1, Median: 0.1, P10: 0.1, P90: 0.1},
		},
		View:      models.MapView{Center: models.LatLon{Lat: -1.25, Lon: 36.85}, Zoom: 8},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	result.Layers = []models.Layer{
		{Name: "2015 Image", Kind: models.LayerKindImage, Style: models.LayerStyle{Bands: []string{"B4", "B3", "B2"}, Max: 3000}, Image: &image},
		{Name: "Change Detection", Kind: models.LayerKindMask, Style: models.LayerStyle{Palette: []string{"red"}}, Mask: &result.Mask},
	}
	return result
}

func TestDetectRequestAcceptsStringAndListROI(t *testing.T) {
	var fromString DetectRequest
	if err := json.Unmarshal([]byte(`{"roi":"[[1,2],[3,4],[5,6]]","start_year":2015,"end_year":2020}`), &fromString); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	req, err := fromString.RunRequest()
	if err != nil {
		t.Fatalf("run request: %v", err)
	}
	if req.ROIText != "[[1,2],[3,4],[5,6]]" || req.StartYear != 2015 || req.Threshold != nil {
		t.Fatalf("unexpected request: %+v", req)
	}

	var fromList DetectRequest
	if err := json.Unmarshal([]byte(`{"roi":[[1,2],[3,4],[5,6]],"start_year":2015,"end_year":2020,"threshold":0.3}`), &fromList); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	req, err = fromList.RunRequest()
	if err != nil {
		t.Fatalf("run request: %v", err)
	}
	if _, err := validation.ParseROI(req.ROIText); err != nil {
		t.Fatalf("list roi should reach the validator intact: %v", err)
	}
	if req.Threshold == nil || *req.Threshold != 0.3 {
		t.Fatalf("threshold not carried: %+v", req.Threshold)
	}

	if _, err := (DetectRequest{}).RunRequest(); !errors.Is(err, models.ErrInvalidGeometry) {
		t.Fatalf("expected missing roi to be invalid geometry, got %v", err)
	}
}

func TestFromProtoDetectRequest(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{
		"roi":         []any{[]any{-1.2, 36.8}, []any{-1.3, 36.8}, []any{-1.3, 36.9}},
		"start_year":  2015,
		"end_year":    2020,
		"destination": "drive",
	})
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	req, err := FromProtoDetectRequest(in)
	if err != nil {
		t.Fatalf("from proto: %v", err)
	}
	if req.StartYear != 2015 || req.EndYear != 2020 || req.Destination != "drive" {
		t.Fatalf("unexpected request: %+v", req)
	}
	runReq, err := req.RunRequest()
	if err != nil {
		t.Fatalf("run request: %v", err)
	}
	roi, err := validation.ParseROI(runReq.ROIText)
	if err != nil {
		t.Fatalf("parse roi: %v", err)
	}
	if roi.Len() != 3 || roi.Vertices()[0] != (models.LatLon{Lat: -1.2, Lon: 36.8}) {
		t.Fatalf("unexpected roi: %+v", roi.Vertices())
	}

	fractional, _ := structpb.NewStruct(map[string]any{"roi": "[]", "start_year": 2015.5, "end_year": 2020})
	if _, err := FromProtoDetectRequest(fractional); err == nil {
		t.Fatalf("expected fractional year to be rejected")
	}
}

func TestNewRunViewAndProtoStruct(t *testing.T) {
	view, err := NewRunView(sampleResult(), true)
	if err != nil {
		t.Fatalf("run view: %v", err)
	}
	if len(view.Layers) != 2 || len(view.Layers[1].Quicklook) == 0 {
		t.Fatalf("expected rendered quicklooks, got %+v", view.Layers)
	}
	if view.Center.Lat != -1.25 || view.Zoom != 8 || len(view.ROI) != 3 {
		t.Fatalf("unexpected view geometry: %+v", view)
	}
	if view.Warning != "" {
		t.Fatalf("ordered run should carry no warning")
	}

	out, err := ToProtoStruct(view)
	if err != nil {
		t.Fatalf("to proto: %v", err)
	}
	if got := out.Fields["run_id"].GetStringValue(); got != "run-1" {
		t.Fatalf("unexpected run id %q", got)
	}
	summary := out.Fields["summary"].GetStructValue()
	if summary.Fields["changed"].GetNumberValue() != 1 {
		t.Fatalf("unexpected summary %v", summary)
	}
	if layers := out.Fields["layers"].GetListValue().GetValues(); len(layers) != 2 {
		t.Fatalf("expected two layers, got %d", len(layers))
	}
}

func TestReversedYearsWarning(t *testing.T) {
	result := sampleResult()
	result.StartYear, result.EndYear, result.YearsReversed = 2020, 2015, true
	view, err := NewRunView(result, false)
	if err != nil {
		t.Fatalf("run view: %v", err)
	}
	if view.Warning == "" || view.Layers[0].Quicklook != nil {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestUserMessageAndStatus(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
		http int
	}{
		{&validation.GeometryError{Kind: validation.KindTooFewPoints, Reason: "need at least 3 distinct vertices"}, codes.InvalidArgument, 400},
		{&validation.YearError{Field: "start year", Year: 1970, Min: 1984, Max: 2024}, codes.InvalidArgument, 400},
		{engine.ErrInvalidThreshold, codes.InvalidArgument, 400},
		{models.ErrAuthentication, codes.Unauthenticated, 401},
		{models.ErrNoMatchingImages, codes.NotFound, 404},
		{models.ErrArchiveUnavailable, codes.Unavailable, 503},
		{errors.New("boom"), codes.Internal, 500},
	}
	for _, tc := range cases {
		st, ok := status.FromError(ToStatusError(tc.err))
		if !ok || st.Code() != tc.code {
			t.Fatalf("%v: expected code %s, got %v", tc.err, tc.code, st)
		}
		if st.Message() != UserMessage(tc.err) || st.Message() == "" {
			t.Fatalf("%v: unexpected message %q", tc.err, st.Message())
		}
		if got := HTTPStatus(tc.err); got != tc.http {
			t.Fatalf("%v: expected http %d, got %d", tc.err, tc.http, got)
		}
	}

	msg := UserMessage(&validation.YearError{Field: "start year", Year: 1970, Min: 1984, Max: 2024})
	if msg != "Unsupported start year 1970: choose a year between 1984 and 2024." {
		t.Fatalf("unexpected year message %q", msg)
	}
	if ToStatusError(nil) != nil {
		t.Fatalf("nil error should stay nil")
	}
}
