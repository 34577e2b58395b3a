package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-finance-api/internal/middleware"
	"github.com/noah-isme/sma-finance-api/internal/service"
	appErrors "github.com/noah-isme/sma-finance-api/pkg/errors"
)

// AsOfHeader lets clients pin the evaluation instant without a query parameter.
const AsOfHeader = "X-As-Of"

const dateLayout = "2006-01-02"

// parseAsOf reads asOf from the query string or the X-As-Of header. RFC3339 instants are
// taken as-is; bare dates mean the start of that day in loc. Absent means now.
func parseAsOf(c *gin.Context, loc *time.Location, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(c.Query("asOf"))
	if raw == "" {
		raw = strings.TrimSpace(c.GetHeader(AsOfHeader))
	}
	if raw == "" {
		return now.In(loc), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "asOf must be RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" must be a number")
	}
	return value, nil
}

// tuitionQuery builds the query shared by the tuition endpoints. The year defaults to the
// as-of year.
func tuitionQuery(c *gin.Context, loc *time.Location, now time.Time) (service.TuitionQuery, error) {
	asOf, err := parseAsOf(c, loc, now)
	if err != nil {
		return service.TuitionQuery{}, err
	}
	year, err := queryInt(c, "year", asOf.In(loc).Year())
	if err != nil {
		return service.TuitionQuery{}, err
	}
	return service.TuitionQuery{Year: year, AsOf: asOf, Search: strings.TrimSpace(c.Query("search"))}, nil
}

func tuitionMeta(c *gin.Context, q service.TuitionQuery, hit bool, start time.Time) map[string]interface{} {
	middleware.SetCacheHit(c, hit)
	middleware.SetMeta(c, "as_of", q.AsOf.Format(time.RFC3339))
	middleware.SetMeta(c, "processing_time_ms", time.Since(start).Milliseconds())
	return middleware.ExtractMeta(c)
}
