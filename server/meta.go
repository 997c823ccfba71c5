package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/gateway"
)

// collectionParam returns the :collection path parameter. Names starting
// with an underscore belong to docgate itself.
func collectionParam(c echo.Context) (string, error) {
	collection := c.Param("collection")
	if strings.HasPrefix(collection, "_") {
		return "", echo.NewHTTPError(http.StatusBadRequest, "collection names starting with _ are reserved")
	}
	return collection, nil
}

func resultStatus(res api.Result) int {
	if res.Success {
		return http.StatusOK
	}
	if res.Code == gateway.CodeInvalidArgument {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeResult(c echo.Context, res api.Result) error {
	return c.JSON(resultStatus(res), res)
}

func badRequest(err error) error {
	if he, ok := err.(*echo.HTTPError); ok {
		return he
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
