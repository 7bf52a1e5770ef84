package reporting

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/insurai/compliance-engine/internal/compliance"
	"github.com/insurai/compliance-engine/internal/config"
)

// Format is a report export format
type Format string

// Formats
const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
	FormatCSV  Format = "csv"
)

var ErrUnsupportedFormat = errors.New("unsupported report format")

// ParseFormat validates a requested export format
func ParseFormat(raw string) (Format, error) {
	switch f := Format(raw); f {
	case FormatXLSX, FormatPDF, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv"
	}
}

// Report is a generated export
type Report struct {
	Filename    string
	ContentType string
	Data        []byte
}

var columns = []string{
	"ID", "Employee", "Email", "Policy", "Issue Type", "Issue Title",
	"Severity", "Submitted", "Status", "Assigned To", "Score",
}

// Engine renders compliance records into downloadable reports
type Engine struct {
	config config.ReportingConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(cfg config.ReportingConfig, logger *zap.Logger) *Engine {
	return &Engine{
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Generate renders records and their statistics in the given format
func (e *Engine) Generate(format Format, records []compliance.ComplianceRecord, stats compliance.Statistics) (*Report, error) {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatXLSX:
		data, err = e.generateExcel(records, stats)
	case FormatPDF:
		data, err = e.generatePDF(records, stats)
	case FormatCSV:
		data, err = e.generateCSV(records)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s report: %w", format, err)
	}

	report := &Report{
		Filename:    fmt.Sprintf("Compliance_Report_%s.%s", e.now().UTC().Format(time.DateOnly), format),
		ContentType: format.ContentType(),
		Data:        data,
	}

	e.logger.Info("Report generated",
		zap.String("format", string(format)),
		zap.Int("records", len(records)),
		zap.Int("bytes", len(data)),
	)

	return report, nil
}

func row(r compliance.ComplianceRecord) []string {
	return []string{
		r.ID,
		r.EmployeeName,
		r.EmployeeEmail,
		r.PolicyName,
		string(r.IssueType),
		r.IssueTitle,
		string(r.Severity),
		r.SubmittedDate,
		string(r.Status),
		r.AssignedTo,
		strconv.Itoa(r.ComplianceScore),
	}
}

func statisticsRows(stats compliance.Statistics) [][2]interface{} {
	return [][2]interface{}{
		{"Total Records", stats.Total},
		{"Pending", stats.Pending},
		{"In Review", stats.InReview},
		{"Resolved", stats.Resolved},
		{"Critical", stats.Critical},
		{"High", stats.High},
		{"Action Required", stats.ActionRequired},
	}
}

func (e *Engine) generateExcel(records []compliance.ComplianceRecord, stats compliance.Statistics) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := e.config.SheetName
	if sheetName == "" {
		sheetName = "Compliance Records"
	}
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	for i, header := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, err
		}
	}

	for r, record := range records {
		for c, value := range row(record) {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			var v interface{} = value
			if columns[c] == "Score" {
				v = record.ComplianceScore
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}

	const summarySheet = "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}
	for i, kv := range statisticsRows(stats) {
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), kv[0]); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), kv[1]); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Engine) generatePDF(records []compliance.ComplianceRecord, stats compliance.Statistics) ([]byte, error) {
	font := e.config.PDFFont
	if font == "" {
		font = "Arial"
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont(font, "B", 16)
	pdf.Cell(0, 10, "InsurAI Compliance Report")
	pdf.Ln(8)
	pdf.SetFont(font, "", 10)
	pdf.Cell(0, 6, "Generated "+e.now().UTC().Format(time.DateOnly))
	pdf.Ln(10)

	pdf.SetFont(font, "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)
	pdf.SetFont(font, "", 10)
	for _, kv := range statisticsRows(stats) {
		pdf.Cell(50, 6, fmt.Sprint(kv[0]))
		pdf.Cell(20, 6, fmt.Sprint(kv[1]))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	widths := []float64{16, 32, 0, 40, 28, 60, 18, 22, 20, 0, 14}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(font, "B", 9)
	for i, header := range columns {
		if widths[i] == 0 {
			continue
		}
		pdf.CellFormat(widths[i], 7, header, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(font, "", 8)
	for _, record := range records {
		for i, value := range row(record) {
			if widths[i] == 0 {
				continue
			}
			pdf.CellFormat(widths[i], 6, tr(truncate(value, int(widths[i]/1.8))), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Engine) generateCSV(records []compliance.ComplianceRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := w.Write(row(record)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
