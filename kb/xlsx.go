package kb

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	xlsxSheet   = "entities"
	listJoin    = ";"
	xlsxColumns = 7
)

var xlsxHeader = []interface{}{"id", "name", "aliases", "description", "wikipedia", "linked", "type"}

// ReadXLSX loads entities from the first sheet of a workbook. The first row
// is a header; list columns hold ";"-separated values.
func ReadXLSX(path string) (*KB, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("kb.ReadXLSX: opening: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("kb.ReadXLSX: no sheets in %s", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("kb.ReadXLSX: reading rows: %w", err)
	}

	k := &KB{byID: make(map[string]Entity)}
	for i, row := range rows {
		if i == 0 || isBlankRow(row) {
			continue
		}
		for len(row) < xlsxColumns {
			row = append(row, "")
		}
		e := Entity{
			ID:          row[0],
			Name:        row[1],
			Aliases:     splitList(row[2]),
			Description: row[3],
			Wikipedia:   row[4],
			Linked:      splitList(row[5]),
			Type:        strings.TrimSpace(row[6]),
		}
		if err := k.Add(e); err != nil {
			return nil, fmt.Errorf("kb.ReadXLSX: row %d: %w", i+1, err)
		}
	}
	return k, nil
}

// WriteXLSX stores k as a single-sheet workbook readable by ReadXLSX.
func WriteXLSX(path string, k *KB) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("kb.WriteXLSX: %w", err)
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &xlsxHeader); err != nil {
		return fmt.Errorf("kb.WriteXLSX: header: %w", err)
	}
	for i, e := range k.Entities() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("kb.WriteXLSX: %w", err)
		}
		row := []interface{}{
			e.ID,
			e.Name,
			strings.Join(e.Aliases, listJoin),
			e.Description,
			e.Wikipedia,
			strings.Join(e.Linked, listJoin),
			e.Type,
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return fmt.Errorf("kb.WriteXLSX: row %d: %w", i+2, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("kb.WriteXLSX: saving: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, listJoin) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
