package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/erazemk/nakit/internal/model"
)

var exportHeaders = []string{"Code", "Title", "Metal", "Karat", "Weight (g)", "Condition", "Status", "Created"}

// Export handles GET /api/items/export?format=csv|xlsx. It takes the same
// filters as List.
func (h *ItemsHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		jsonError(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}

	filter, ok := itemFilter(w, r)
	if !ok {
		return
	}
	items, err := h.Catalog.ListItems(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, exportRow(item))
	}

	h.Logger.Info("items exported", "user", GetClaims(r.Context()).Username, "format", format, "rows", len(rows))

	var werr error
	if format == "xlsx" {
		werr = writeXLSX(w, "Items", exportHeaders, rows)
	} else {
		werr = writeCSV(w, "items.csv", exportHeaders, rows)
	}
	if werr != nil {
		h.Logger.Error("writing export", "format", format, "error", werr)
	}
}

func exportRow(item model.Item) []string {
	karat := ""
	if item.Karat > 0 {
		karat = strconv.Itoa(item.Karat)
	}
	return []string{
		item.ItemCode,
		item.Title,
		item.Metal,
		karat,
		item.Weight.StringFixed(2),
		item.Condition,
		item.Status,
		item.CreatedAt.UTC().Format(time.DateOnly),
	}
}

func writeCSV(w http.ResponseWriter, filename string, headers []string, data [][]string) error {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return err
	}
	if err := writer.WriteAll(data); err != nil {
		return err
	}
	return writer.Error()
}

func writeXLSX(w http.ResponseWriter, sheet string, headers []string, data [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}
	for rowIdx, row := range data {
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	last, _ := excelize.ColumnNumberToName(len(headers))
	f.SetColWidth(sheet, "A", last, 16)

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=items.xlsx")
	return f.Write(w)
}
