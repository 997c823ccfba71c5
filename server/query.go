package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/gateway"
)

// QueryDocuments runs a filtered query. A failing query answers with no
// records, the same as the gateway does.
func (s *server) QueryDocuments(c echo.Context) error {
	collection, err := collectionParam(c)
	if err != nil {
		return err
	}

	var req api.QueryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	if req.Direction != "" && req.Direction != api.Asc && req.Direction != api.Desc {
		return echo.NewHTTPError(http.StatusBadRequest, "direction must be asc or desc")
	}
	if req.Limit < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "limit must not be negative")
	}

	recs := s.gw.Query(c.Request().Context(), collection, req.Filters, gateway.RequestOptions(req)...)
	return c.JSON(http.StatusOK, api.QueryResponse{Records: recs})
}
