package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-finance-api/internal/billing"
	"github.com/noah-isme/sma-finance-api/internal/dto"
	"github.com/noah-isme/sma-finance-api/internal/service"
	appErrors "github.com/noah-isme/sma-finance-api/pkg/errors"
	"github.com/noah-isme/sma-finance-api/pkg/response"
)

type tuitionService interface {
	Matrix(ctx context.Context, q service.TuitionQuery) (*billing.Matrix, bool, error)
	Stats(ctx context.Context, q service.TuitionQuery, month int) (*dto.TuitionStatsResponse, bool, error)
	StudentCard(ctx context.Context, studentID string, q service.TuitionQuery) (*dto.StudentTuitionCard, bool, error)
	Location() *time.Location
}

type matrixExporter interface {
	Export(ctx context.Context, q service.TuitionQuery, format string) (*service.ExportFile, error)
}

// TuitionHandler serves the tuition status matrix and its derived views.
type TuitionHandler struct {
	tuition  tuitionService
	exporter matrixExporter
	now      func() time.Time
}

// NewTuitionHandler constructs the handler. exporter may be nil when exports are disabled.
func NewTuitionHandler(tuition tuitionService, exporter matrixExporter) *TuitionHandler {
	return &TuitionHandler{tuition: tuition, exporter: exporter, now: time.Now}
}

// Matrix godoc
// @Summary Tuition status matrix
// @Description One row per student, one cell per applicable month of the year.
// @Tags Tuition
// @Produce json
// @Param year query int false "Billing year. Defaults to the asOf year"
// @Param asOf query string false "Evaluation instant (RFC3339 or YYYY-MM-DD). Defaults to now"
// @Param search query string false "Filter rows by student name or NIS"
// @Success 200 {object} response.Envelope
// @Router /tuition/matrix [get]
func (h *TuitionHandler) Matrix(c *gin.Context) {
	start := time.Now()
	q, err := tuitionQuery(c, h.tuition.Location(), h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	matrix, hit, err := h.tuition.Matrix(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, matrix, nil, tuitionMeta(c, q, hit, start))
}

// Stats godoc
// @Summary Tuition collection cards for one month
// @Tags Tuition
// @Produce json
// @Param year query int false "Billing year. Defaults to the asOf year"
// @Param month query int false "Month 1-12. Defaults to the asOf month"
// @Param asOf query string false "Evaluation instant (RFC3339 or YYYY-MM-DD). Defaults to now"
// @Success 200 {object} response.Envelope
// @Router /tuition/stats [get]
func (h *TuitionHandler) Stats(c *gin.Context) {
	start := time.Now()
	loc := h.tuition.Location()
	q, err := tuitionQuery(c, loc, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	month, err := queryInt(c, "month", int(q.AsOf.In(loc).Month()))
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, hit, err := h.tuition.Stats(c.Request.Context(), q, month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil, tuitionMeta(c, q, hit, start))
}

// StudentCard godoc
// @Summary A single student's tuition row and yearly totals
// @Tags Tuition
// @Produce json
// @Param id path string true "Student ID"
// @Param year query int false "Billing year. Defaults to the asOf year"
// @Param asOf query string false "Evaluation instant (RFC3339 or YYYY-MM-DD). Defaults to now"
// @Success 200 {object} response.Envelope
// @Router /tuition/students/{id} [get]
func (h *TuitionHandler) StudentCard(c *gin.Context) {
	start := time.Now()
	q, err := tuitionQuery(c, h.tuition.Location(), h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	card, hit, err := h.tuition.StudentCard(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil, tuitionMeta(c, q, hit, start))
}

// Export godoc
// @Summary Download the tuition matrix
// @Tags Tuition
// @Produce text/csv
// @Produce application/pdf
// @Param year query int false "Billing year. Defaults to the asOf year"
// @Param asOf query string false "Evaluation instant (RFC3339 or YYYY-MM-DD). Defaults to now"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /tuition/matrix/export [get]
func (h *TuitionHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, appErrors.ErrExportDisabled)
		return
	}
	q, err := tuitionQuery(c, h.tuition.Location(), h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exporter.Export(c.Request.Context(), q, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
