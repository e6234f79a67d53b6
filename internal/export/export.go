package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"circleburo/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Заявки"

// Headers колонки выгрузки заявок, общие для CSV, XLSX и Google Sheets.
var Headers = []string{
	"ID",
	"Имя",
	"Телефон",
	"Дата встречи",
	"Время встречи",
	"Статус",
	"Дата создания",
	"Заметки",
}

// Row строка выгрузки; дата создания в поясе loc.
func Row(lead *models.Lead, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	return []string{
		strconv.FormatInt(lead.ID, 10),
		lead.Name,
		"+" + lead.Phone,
		lead.MeetingDate.Format(models.DisplayDateLayout),
		lead.MeetingTime,
		lead.Status.Label(),
		lead.CreatedAt.In(loc).Format(models.DisplayDateTimeLayout),
		lead.Notes,
	}
}

// Filename имя файла выгрузки на дату at.
func Filename(at time.Time, ext string) string {
	return fmt.Sprintf("leads_%s.%s", at.Format("2006-01-02"), ext)
}

// WriteCSV пишет заявки в CSV: каждое поле в кавычках, кавычки внутри удваиваются.
func WriteCSV(w io.Writer, leads []*models.Lead, loc *time.Location) error {
	bw := bufio.NewWriter(w)
	if err := writeCSVLine(bw, Headers); err != nil {
		return err
	}
	for _, lead := range leads {
		if err := writeCSVLine(bw, Row(lead, loc)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeCSVLine(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(quote(f)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

func quote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// WriteXLSX та же выгрузка в формате Excel.
func WriteXLSX(w io.Writer, leads []*models.Lead, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeXLSXRow(f, 1, Headers); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(Headers))
	_ = f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle)

	for i, lead := range leads {
		if err := writeXLSXRow(f, i+2, Row(lead, loc)); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "G", 20)
	_ = f.SetColWidth(sheetName, "H", "H", 40)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeXLSXRow(f *excelize.File, row int, values []string) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(sheetName, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	return nil
}
