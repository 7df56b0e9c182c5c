package models

import "errors"

var (
	// ErrInvalidGeometry reports ROI text that cannot describe a polygon.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrUnsupportedYear reports a year outside archive coverage.
	ErrUnsupportedYear = errors.New("unsupported year")
	// ErrArchiveUnavailable reports a failed or timed out archive call.
	ErrArchiveUnavailable = errors.New("imagery archive unavailable")
	// ErrNoMatchingImages reports an empty collection for the requested window.
	ErrNoMatchingImages = errors.New("no matching images")
	// ErrAuthentication reports a rejected archive credential.
	ErrAuthentication = errors.New("archive authentication failed")

	// ErrMissingBand is returned when a raster lacks a requested band.
	ErrMissingBand = errors.New("missing band")
	// ErrShapeMismatch is returned when grids disagree in size.
	ErrShapeMismatch = errors.New("raster shape mismatch")
)
