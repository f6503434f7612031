package gateway

import (
	"net/http"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"

	"rpcgate/internal/pkg/log"
)

const (
	formatCSV         = "csv"
	defaultStatsSince = 24 * time.Hour
)

func (g *gateway) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (g *gateway) endpointsHandler(c echo.Context) error {
	snapshot := g.dispatcher.Pool().Snapshot(time.Now())

	return respondFormatted(c, snapshot)
}

// statsHandler serves per-method aggregates from the sqlite stats db.
func (g *gateway) statsHandler(c echo.Context) error {
	if g.sqliteStorage == nil {
		return echo.NewHTTPError(http.StatusNotFound, "stats storage disabled")
	}

	since := defaultStatsSince
	if s := c.QueryParam("since"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid since")
		}
		since = d
	}

	res, err := g.sqliteStorage.MethodSummaries(c.Request().Context(), time.Now().Add(-since))
	if err != nil {
		log.Logger.Gateway.Errorf("MethodSummaries: %s", err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	return respondFormatted(c, res)
}

func respondFormatted[T any](c echo.Context, rows []T) error {
	if c.QueryParam("format") == formatCSV {
		return csvResp(c, rows)
	}
	if rows == nil {
		rows = []T{}
	}

	return c.JSON(http.StatusOK, rows)
}

func csvResp[T any](c echo.Context, rows []T) error {
	csvContent, err := gocsv.MarshalString(rows)
	if err != nil {
		log.Logger.Gateway.Errorf("gocsv.Marshal: %s", err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	return c.String(http.StatusOK, csvContent)
}
