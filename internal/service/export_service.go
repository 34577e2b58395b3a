package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-finance-api/internal/billing"
	appErrors "github.com/noah-isme/sma-finance-api/pkg/errors"
	"github.com/noah-isme/sma-finance-api/pkg/export"
)

const notApplicableMark = "-"

type matrixSource interface {
	Matrix(ctx context.Context, q TuitionQuery) (*billing.Matrix, bool, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Enabled  bool
	PDFTitle string
}

// ExportFile is a rendered matrix ready to be served as an attachment.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders the tuition matrix into downloadable files.
type ExportService struct {
	matrices matrixSource
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(matrices matrixSource, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PDFTitle == "" {
		cfg.PDFTitle = "Tuition Payment Matrix"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{matrices: matrices, csv: csv, pdf: pdf, logger: logger, cfg: cfg}
}

// Export renders the matrix selected by q in the requested format.
func (s *ExportService) Export(ctx context.Context, q TuitionQuery, rawFormat string) (*ExportFile, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.ErrExportDisabled
	}
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedType, err.Error())
	}
	matrix, _, err := s.matrices.Matrix(ctx, q)
	if err != nil {
		return nil, err
	}

	dataset := BuildMatrixDataset(matrix)
	var body []byte
	switch format {
	case export.FormatPDF:
		body, err = s.pdf.Render(dataset, fmt.Sprintf("%s %d", s.cfg.PDFTitle, matrix.Year))
	default:
		body, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("tuition matrix exported",
		zap.Int("year", matrix.Year),
		zap.String("format", string(format)),
		zap.Int("rows", len(matrix.Rows)),
		zap.Int("bytes", len(body)),
	)
	return &ExportFile{
		Filename:    exportFilename(matrix, format),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}

// BuildMatrixDataset flattens a matrix into one line per student and one column per month.
// Months before enrollment are marked with a dash.
func BuildMatrixDataset(matrix *billing.Matrix) export.Dataset {
	headers := []string{"Student", "NIS", "Class"}
	headers = append(headers, matrix.Columns...)

	rows := make([]map[string]string, 0, len(matrix.Rows))
	for _, row := range matrix.Rows {
		line := map[string]string{
			"Student": row.Student.Name,
			"NIS":     deref(row.Student.NIS),
			"Class":   row.Student.ClassYear,
		}
		for idx, label := range matrix.Columns {
			line[label] = notApplicableMark
			if cell, ok := row.Cell(idx); ok {
				line[label] = string(cell.Status)
			}
		}
		rows = append(rows, line)
	}

	footer := []string{
		fmt.Sprintf("As of: %s", matrix.AsOf.Format("2006-01-02 15:04 MST")),
		fmt.Sprintf("Matching: %s", matrix.Strategy),
		fmt.Sprintf("Students: %d", len(matrix.Rows)),
	}
	var paid, overdue, pending int
	for _, row := range matrix.Rows {
		summary := row.Summary()
		paid += summary.PaidCount
		overdue += summary.OverdueCount
		pending += summary.PendingCount
	}
	footer = append(footer, fmt.Sprintf("Paid: %d  Overdue: %d  Pending: %d", paid, overdue, pending))
	if len(matrix.Errors) > 0 {
		footer = append(footer, fmt.Sprintf("Excluded students: %d", len(matrix.Errors)))
	}

	return export.Dataset{Headers: headers, Rows: rows, Footer: footer}
}

func exportFilename(matrix *billing.Matrix, format export.Format) string {
	return fmt.Sprintf("tuition_%d_%s.%s", matrix.Year, matrix.AsOf.Format("20060102"), strings.ToLower(string(format)))
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
