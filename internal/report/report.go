// Package report renders run summaries for people: a Markdown/HTML page and
// a spreadsheet workbook.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/xuri/excelize/v2"

	"github.com/verdantlabs/landchange/internal/models"
)

const (
	summarySheet = "Summary"
	ndviSheet    = "NDVI"
	roiSheet     = "ROI"
)

// Markdown describes a run as a Markdown document.
func Markdown(result models.RunResult, warning string) []byte {
	var b bytes.Buffer
	s := result.Summary

	fmt.Fprintf(&b, "# Land cover change %d to %d\n\n", result.StartYear, result.EndYear)
	if warning != "" {
		fmt.Fprintf(&b, "> %s\n\n", warning)
	}
	fmt.Fprintf(&b, "Run `%s`, threshold %.3f, created %s.\n\n", result.RunID, result.Threshold, result.CreatedAt.Format("2006-01-02 15:04 MST"))

	b.WriteString("## Pixels\n\n")
	b.WriteString("| State | Count |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Changed | %d |\n", s.Changed)
	fmt.Fprintf(&b, "| Unchanged | %d |\n", s.Unchanged)
	fmt.Fprintf(&b, "| Masked | %d |\n\n", s.Masked)
	fmt.Fprintf(&b, "Changed fraction of classified pixels: **%.2f%%**\n\n", 100*s.ChangedFraction)

	b.WriteString("## NDVI\n\n")
	b.WriteString("| Year | Pixels | Mean | Median | Std dev | P10 | P90 |\n|---|---:|---:|---:|---:|---:|---:|\n")
	for _, row := range ndviRows(result) {
		fmt.Fprintf(&b, "| %d | %d | %.3f | %.3f | %.3f | %.3f | %.3f |\n",
			row.year, row.stats.Defined, row.stats.Mean, row.stats.Median, row.stats.StdDev, row.stats.P10, row.stats.P90)
	}

	b.WriteString("\n## Region\n\n")
	vertices := result.ROI.Vertices()
	points := make([]string, 0, len(vertices))
	for _, v := range vertices {
		points = append(points, fmt.Sprintf("[%.5f, %.5f]", v.Lat, v.Lon))
	}
	fmt.Fprintf(&b, "%d vertices: `%s`\n", len(vertices), strings.Join(points, ", "))
	return b.Bytes()
}

// HTML renders the Markdown report as a standalone HTML page.
func HTML(result models.RunResult, warning string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: fmt.Sprintf("Land cover change %d to %d", result.StartYear, result.EndYear),
	})
	return markdown.ToHTML(Markdown(result, warning), p, renderer)
}

// WriteWorkbook writes the run summary as an XLSX workbook with Summary, NDVI
// and ROI sheets.
func WriteWorkbook(w io.Writer, result models.RunResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	s := result.Summary
	summaryRows := [][]any{
		{"Run", result.RunID},
		{"Start year", result.StartYear},
		{"End year", result.EndYear},
		{"Years reversed", result.YearsReversed},
		{"Threshold", result.Threshold},
		{"Changed", s.Changed},
		{"Unchanged", s.Unchanged},
		{"Masked", s.Masked},
		{"Changed fraction", s.ChangedFraction},
	}
	if err := writeRows(f, summarySheet, nil, summaryRows); err != nil {
		return err
	}

	if _, err := f.NewSheet(ndviSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	var ndvi [][]any
	for _, row := range ndviRows(result) {
		ndvi = append(ndvi, []any{row.year, row.stats.Defined, row.stats.Mean, row.stats.Median, row.stats.StdDev, row.stats.P10, row.stats.P90})
	}
	if err := writeRows(f, ndviSheet, []any{"Year", "Pixels", "Mean", "Median", "StdDev", "P10", "P90"}, ndvi); err != nil {
		return err
	}

	if _, err := f.NewSheet(roiSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	var roi [][]any
	for i, v := range result.ROI.Vertices() {
		roi = append(roi, []any{i + 1, v.Lat, v.Lon})
	}
	if err := writeRows(f, roiSheet, []any{"Vertex", "Lat", "Lon"}, roi); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, header []any, rows [][]any) error {
	next := 1
	if header != nil {
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return fmt.Errorf("%s header: %w", sheet, err)
		}
		next = 2
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, next+i)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

type ndviRow struct {
	year  int
	stats models.IndexStats
}

func ndviRows(result models.RunResult) []ndviRow {
	return []ndviRow{
		{year: result.StartYear, stats: result.Summary.Start},
		{year: result.EndYear, stats: result.Summary.End},
	}
}
