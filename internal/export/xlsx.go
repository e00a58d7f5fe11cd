package export

import (
	"fmt"

	"kisscoffee/site/internal/settings"

	"github.com/xuri/excelize/v2"
)

const (
	menuSheet = "Menu"
	infoSheet = "Info"
)

// buildXLSX writes one row per menu item on the Menu sheet and the message,
// hours and services on the Info sheet.
func buildXLSX(doc settings.Settings) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", menuSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(menuSheet)
	if err != nil {
		return nil, fmt.Errorf("open stream writer: %w", err)
	}
	if err := sw.SetRow("A1", []interface{}{"Category", "Item", "Price"}); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	row := 2
	for _, category := range doc.Menu.Categories() {
		for _, item := range doc.Menu.Items(category) {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return nil, err
			}
			if err := sw.SetRow(cell, []interface{}{category, item.Name, item.Price}); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
			row++
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("flush menu sheet: %w", err)
	}

	if _, err := f.NewSheet(infoSheet); err != nil {
		return nil, fmt.Errorf("add info sheet: %w", err)
	}
	info := [][2]string{
		{"Message", doc.CustomMessage},
		{"Monday - Friday", doc.OpeningHours.MondayToFriday},
		{"Saturday", doc.OpeningHours.Saturday},
		{"Sunday", doc.OpeningHours.Sunday},
	}
	for _, service := range doc.Services {
		info = append(info, [2]string{"Service", service})
	}
	for i, pair := range info {
		if err := f.SetSheetRow(infoSheet, fmt.Sprintf("A%d", i+1), &[]interface{}{pair[0], pair[1]}); err != nil {
			return nil, fmt.Errorf("write info row: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
