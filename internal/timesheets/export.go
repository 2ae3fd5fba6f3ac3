package timesheets

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Exporter writes timesheet entries to an .xlsx workbook with one
// styled header row and a totals row at the bottom.
type Exporter struct {
	file  *excelize.File
	sheet string
}

var exportColumns = []string{"Date", "Project", "User", "Hours", "Billable", "Note"}

func NewExporter(sheet string) *Exporter {
	if sheet == "" {
		sheet = "Timesheet"
	}
	file := excelize.NewFile()
	file.SetSheetName("Sheet1", sheet)
	return &Exporter{file: file, sheet: sheet}
}

func (e *Exporter) headerStyle() (int, error) {
	return e.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
		},
	})
}

// Write renders the entries and returns the total hours written.
// Project and user names come from the caller's lookup maps; an id
// missing from a map falls back to its string form.
func (e *Exporter) Write(entries []*Entry, projectNames, userNames map[string]string) (float64, error) {
	styleID, err := e.headerStyle()
	if err != nil {
		return 0, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		e.file.SetCellValue(e.sheet, cell, col)
		e.file.SetCellStyle(e.sheet, cell, cell, styleID)
	}
	e.file.SetPanes(e.sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	lookup := func(names map[string]string, id string) string {
		if name, ok := names[id]; ok {
			return name
		}
		return id
	}

	total := 0.0
	for rowIdx, entry := range entries {
		row := rowIdx + 2
		values := []interface{}{
			entry.WorkDate.Format("2006-01-02"),
			lookup(projectNames, entry.ProjectID.String()),
			lookup(userNames, entry.UserID.String()),
			entry.Hours,
			entry.Billable,
			entry.Note,
		}
		for colIdx, val := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, row)
			if err := e.file.SetCellValue(e.sheet, cell, val); err != nil {
				return 0, fmt.Errorf("failed to set cell value: %w", err)
			}
		}
		total += entry.Hours
	}

	totalRow := len(entries) + 2
	labelCell, _ := excelize.CoordinatesToCellName(3, totalRow)
	valueCell, _ := excelize.CoordinatesToCellName(4, totalRow)
	e.file.SetCellValue(e.sheet, labelCell, "Total")
	e.file.SetCellValue(e.sheet, valueCell, total)
	boldID, _ := e.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	e.file.SetCellStyle(e.sheet, labelCell, valueCell, boldID)

	if len(entries) > 0 {
		lastCol, _ := excelize.CoordinatesToCellName(len(exportColumns), 1)
		e.file.AutoFilter(e.sheet, "A1:"+lastCol, nil)
	}
	return total, nil
}

func (e *Exporter) WriteTo(w io.Writer) error {
	return e.file.Write(w)
}

func (e *Exporter) Close() error {
	return e.file.Close()
}
