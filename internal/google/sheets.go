package google

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"circleburo/internal/export"
	"circleburo/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// LeadsSheet зеркало таблицы заявок в Google Sheets: заголовок в первой строке, данные ниже.
type LeadsSheet struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location
}

func NewLeadsSheet(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, loc *time.Location) (*LeadsSheet, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	return NewLeadsSheetWithClient(ctx, config.Client(ctx), spreadsheetID, sheetName, loc, nil)
}

// NewLeadsSheetWithClient принимает готовый http клиент; extra нужен для подмены endpoint.
func NewLeadsSheetWithClient(ctx context.Context, client *http.Client, spreadsheetID, sheetName string, loc *time.Location, extra []option.ClientOption) (*LeadsSheet, error) {
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, extra...)
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	if sheetName == "" {
		sheetName = "Leads"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &LeadsSheet{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		loc:           loc,
	}, nil
}

// TestConnection проверяет доступ к листу
func (s *LeadsSheet) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ReplaceLeads полностью перезаписывает лист текущим списком заявок.
func (s *LeadsSheet) ReplaceLeads(ctx context.Context, leads []*models.Lead) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.sheetName+"!A:Z", &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear leads sheet: %w", err)
	}

	valueRange := &sheets.ValueRange{Values: leadValues(leads, s.loc)}
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.sheetName+"!A1", valueRange).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update leads sheet: %w", err)
	}
	return nil
}

func leadValues(leads []*models.Lead, loc *time.Location) [][]interface{} {
	values := make([][]interface{}, 0, len(leads)+1)
	values = append(values, toCells(export.Headers))
	for _, lead := range leads {
		values = append(values, toCells(export.Row(lead, loc)))
	}
	return values
}

func toCells(row []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}
