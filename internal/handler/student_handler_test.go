package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-finance-api/internal/middleware"
	"github.com/noah-isme/sma-finance-api/internal/models"
	"github.com/noah-isme/sma-finance-api/internal/service"
	appErrors "github.com/noah-isme/sma-finance-api/pkg/errors"
)

type fakeStudentSrv struct {
	filter  models.StudentFilter
	created service.StudentRequest
	deleted string
	err     error
}

func (f *fakeStudentSrv) List(_ context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	f.filter = filter
	return []models.Student{{ID: "s-1", Name: "Alya"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, f.err
}

func (f *fakeStudentSrv) Get(_ context.Context, id string) (*models.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Student{ID: id}, nil
}

func (f *fakeStudentSrv) Create(_ context.Context, req service.StudentRequest) (*models.Student, error) {
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Student{ID: "s-new", Name: req.Name}, nil
}

func (f *fakeStudentSrv) Update(_ context.Context, id string, req service.StudentRequest) (*models.Student, error) {
	return &models.Student{ID: id, Name: req.Name}, f.err
}

func (f *fakeStudentSrv) Delete(_ context.Context, id string) error {
	f.deleted = id
	return f.err
}

func studentRouter(srv *fakeStudentSrv) *gin.Engine {
	router, _ := studentRouterWithAudit(srv)
	return router
}

func studentRouterWithAudit(srv *fakeStudentSrv) (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	handler := NewStudentHandler(srv)
	router := gin.New()
	var resourceID string
	router.GET("/students", handler.List)
	router.POST("/students", func(c *gin.Context) {
		c.Next()
		resourceID = c.GetString(middleware.ContextResourceIDKey)
	}, handler.Create)
	router.DELETE("/students/:id", handler.Delete)
	return router, &resourceID
}

func TestStudentHandlerListParsesFilters(t *testing.T) {
	srv := &fakeStudentSrv{}
	rec := httptest.NewRecorder()
	studentRouter(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/students?search=%20alya%20&status=active&classYear=XII&page=2&limit=50&sort=nis&order=desc", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alya", srv.filter.Search)
	assert.Equal(t, models.StudentStatusActive, srv.filter.Status)
	assert.Equal(t, "XII", srv.filter.ClassYear)
	assert.Equal(t, 2, srv.filter.Page)
	assert.Equal(t, 50, srv.filter.PageSize)
	assert.Equal(t, "nis", srv.filter.SortBy)
	assert.Contains(t, rec.Body.String(), `"total_count":1`)
}

func TestStudentHandlerCreate(t *testing.T) {
	srv := &fakeStudentSrv{}
	body := `{"name":"Citra","enrollment_date":"2024-07-15","base_fee":"450000.00","billing_due_day":5}`
	req := httptest.NewRequest(http.MethodPost, "/students", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router, resourceID := studentRouterWithAudit(srv)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Citra", srv.created.Name)
	assert.Equal(t, "450000", srv.created.BaseFee.String())
	assert.Equal(t, 5, srv.created.BillingDueDay)
	assert.Equal(t, "s-new", *resourceID)
}

func TestStudentHandlerCreateRejectsMalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/students", strings.NewReader(`{"name":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	studentRouter(&fakeStudentSrv{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestStudentHandlerDelete(t *testing.T) {
	srv := &fakeStudentSrv{}
	rec := httptest.NewRecorder()
	studentRouter(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/students/s-1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "s-1", srv.deleted)

	srv.err = appErrors.Clone(appErrors.ErrNotFound, "student not found")
	rec = httptest.NewRecorder()
	studentRouter(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/students/s-2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
