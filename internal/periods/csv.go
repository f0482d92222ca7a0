package periods

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const maxReportedImportErrors = 10

// ExportHeader lists the CSV export columns.
var ExportHeader = []string{
	"ID", "Start Date", "End Date", "Period Type", "Status", "Automation Enabled",
	"Automation Rule", "Description", "Created At", "Updated At", "Duration Days",
	"Is Active", "Is Current",
}

// WriteCSV serialises periods with their derived attributes.
func WriteCSV(w io.Writer, periods []Period, today time.Time) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(ExportHeader); err != nil {
		return err
	}
	for _, p := range periods {
		rule := ""
		if len(p.AutomationRule) > 0 {
			data, err := json.Marshal(p.AutomationRule)
			if err != nil {
				return err
			}
			rule = string(data)
		}
		if err := writer.Write([]string{
			strconv.FormatInt(p.ID, 10),
			p.StartDate.Format(DateLayout),
			p.EndDate.Format(DateLayout),
			string(p.Type),
			string(p.Status),
			yesNo(p.AutomationEnabled),
			rule,
			p.Description,
			p.CreatedAt.UTC().Format(time.DateTime),
			p.UpdatedAt.UTC().Format(time.DateTime),
			strconv.Itoa(p.DurationDays()),
			yesNo(p.IsActive()),
			yesNo(p.IsCurrent(today)),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ImportRow is a parsed CSV import line.
type ImportRow struct {
	Line   int
	Input  Input
	Status Status
}

// ImportResult reports the outcome of a CSV import.
type ImportResult struct {
	Message      string   `json:"message"`
	CreatedCount int      `json:"created_count"`
	UpdatedCount int      `json:"updated_count"`
	ErrorCount   int      `json:"error_count"`
	Errors       []string `json:"errors"`
}

// ReadImportCSV parses rows keyed by header name. Rows that cannot be parsed
// are reported as line errors rather than aborting the read.
func ReadImportCSV(r io.Reader) ([]ImportRow, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("periods: read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var (
		rows     []ImportRow
		lineErrs []string
	)
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			lineErrs = append(lineErrs, fmt.Sprintf("Row %d: %v", line, err))
			continue
		}
		startRaw, endRaw := field(record, "Start Date"), field(record, "End Date")
		if startRaw == "" || endRaw == "" {
			lineErrs = append(lineErrs, fmt.Sprintf("Row %d: Start Date and End Date are required", line))
			continue
		}
		start, err := ParseDate(startRaw)
		if err != nil {
			lineErrs = append(lineErrs, fmt.Sprintf("Row %d: invalid Start Date %q", line, startRaw))
			continue
		}
		end, err := ParseDate(endRaw)
		if err != nil {
			lineErrs = append(lineErrs, fmt.Sprintf("Row %d: invalid End Date %q", line, endRaw))
			continue
		}
		periodType, ok := ParseType(field(record, "Period Type"))
		if !ok {
			periodType = TypeMonthly
		}
		status, ok := ParseStatus(field(record, "Status"))
		if !ok {
			status = StatusActive
		}
		rows = append(rows, ImportRow{
			Line:   line,
			Status: status,
			Input: Input{
				StartDate:         start,
				EndDate:           end,
				Type:              periodType,
				AutomationEnabled: parseBool(field(record, "Automation Enabled")),
				Description:       field(record, "Description"),
			},
		})
	}
	return rows, lineErrs, nil
}

// Import upserts parsed rows keyed by their exact date range.
func (s *Service) Import(ctx context.Context, rows []ImportRow, lineErrs []string) ImportResult {
	result := ImportResult{}
	errs := append([]string(nil), lineErrs...)
	for _, row := range rows {
		created, err := s.importRow(ctx, row)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Row %d: %v", row.Line, err))
			continue
		}
		if created {
			result.CreatedCount++
		} else {
			result.UpdatedCount++
		}
	}
	result.Message = fmt.Sprintf("Import completed. Created: %d, Updated: %d", result.CreatedCount, result.UpdatedCount)
	result.ErrorCount = len(errs)
	result.Errors = []string{}
	if len(errs) > maxReportedImportErrors {
		result.Errors = append(result.Errors, errs[:maxReportedImportErrors]...)
		result.Errors = append(result.Errors, fmt.Sprintf("... and %d more errors", len(errs)-maxReportedImportErrors))
	} else if len(errs) > 0 {
		result.Errors = append(result.Errors, errs...)
	}
	return result
}

func (s *Service) importRow(ctx context.Context, row ImportRow) (bool, error) {
	existing, err := s.store.FindByDates(ctx, row.Input.StartDate, row.Input.EndDate)
	switch {
	case errors.Is(err, ErrNotFound):
		created, err := s.Create(ctx, row.Input)
		if err != nil {
			return false, err
		}
		if row.Status != StatusActive {
			if err := s.store.UpdateStatus(ctx, created.ID, StatusActive, row.Status); err != nil {
				return false, err
			}
		}
		return true, nil
	case err != nil:
		return false, err
	}

	if existing.Status == StatusActive {
		in := row.Input
		in.AutomationRule = existing.AutomationRule
		in.Meta = existing.Meta
		if _, err := s.Update(ctx, existing.ID, in); err != nil {
			return false, err
		}
	}
	if row.Status != existing.Status {
		if err := ValidateTransition(existing.Status, row.Status); err != nil {
			return false, err
		}
		if err := s.store.UpdateStatus(ctx, existing.ID, existing.Status, row.Status); err != nil {
			return false, err
		}
	}
	return false, nil
}

func parseBool(raw string) bool {
	switch normalizeLabel(raw) {
	case "yes", "true", "1", "on":
		return true
	}
	return false
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
