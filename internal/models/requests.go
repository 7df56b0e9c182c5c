package models

import "time"

// DateRange is a closed interval of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls on or between Start and End (day precision).
func (d DateRange) Contains(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(d.Start) && !day.After(d.End)
}

// CloudMaskPolicy names the QA band and bit the archive uses to drop cloudy pixels.
type CloudMaskPolicy struct {
	QABand   string
	CloudBit uint
}

// Reducer names the per-pixel aggregation applied across the filtered collection.
type Reducer string

const (
	ReducerMedian Reducer = "median"
)

// ImageRequest describes a yearly composite for the archive to execute.
type ImageRequest struct {
	Collection string
	Year       int
	Region     ROI
	Dates      DateRange
	CloudMask  CloudMaskPolicy
	Reducer    Reducer
	ClipToROI  bool
	Bands      []string
}

// ExportRequest asks the archive to write a raster to external storage.
type ExportRequest struct {
	Description string
	Scale       float64
	Region      ROI
	Destination string
	FilePrefix  string
	Format      string
	Payload     []byte
}

// ExportState mirrors the archive's task lifecycle.
type ExportState string

const (
	ExportStateSubmitted ExportState = "SUBMITTED"
	ExportStateRunning   ExportState = "RUNNING"
	ExportStateCompleted ExportState = "COMPLETED"
	ExportStateFailed    ExportState = "FAILED"
)

// ExportTask is the archive's acknowledgement of a submitted export.
type ExportTask struct {
	ID          string
	Description string
	Destination string
	State       ExportState
	SubmittedAt time.Time
}

// RunRequest captures the user-facing parameters of a detection run.
type RunRequest struct {
	ROIText   string
	StartYear int
	EndYear   int
	// Threshold overrides the configured threshold when set.
	Threshold *float64
}

// IndexStats summarises the defined pixels of an index raster.
type IndexStats struct {
	Defined int
	Mean    float64
	Median  float64
	StdDev  float64
	P10     float64
	P90     float64
}

// ChangeSummary reports the classifier outcome.
type ChangeSummary struct {
	Changed         int
	Unchanged       int
	Masked          int
	ChangedFraction float64
	Start           IndexStats
	End             IndexStats
}

// RunResult is the outcome of one detection run.
type RunResult struct {
	RunID         string
	ROI           ROI
	StartYear     int
	EndYear       int
	YearsReversed bool
	Threshold     float64
	StartImage    Raster
	EndImage      Raster
	StartIndex    IndexRaster
	EndIndex      IndexRaster
	Mask          ChangeMask
	Summary       ChangeSummary
	Layers        []Layer
	View          MapView
	CreatedAt     time.Time
}
