package middlewares

import (
	"bytes"
	"io"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"

	"rpcgate/internal/dispatch"
	echo2 "rpcgate/internal/pkg/util/echo"
)

func NewValidatorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := c.(*echo2.CustomContext)
			mediaType, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
			if mediaType != echo.MIMEApplicationJSON {
				cc.SetUserError(true)
				return echo.NewHTTPError(http.StatusUnsupportedMediaType, invalidContentTypeErrorResponse)
			}

			// Request
			reqBody := []byte{}
			if c.Request().Body != nil { // Read
				reqBody, _ = io.ReadAll(c.Request().Body)
			}
			c.Request().Body = io.NopCloser(bytes.NewBuffer(reqBody)) // Reset

			reqBody = bytes.TrimSpace(reqBody)
			if len(reqBody) == 0 {
				cc.SetRpcErrors([]int{parseErrorResponse.Error.Code})
				cc.SetUserError(true)
				return echo.NewHTTPError(http.StatusOK, parseErrorResponse)
			}

			decoder := dispatch.NewJsonDecoder(reqBody, false)
			cc.SetReqBody(reqBody)

			var methodArray []string
			switch fs := reqBody[0]; {
			case fs == '{':
				parsedJson := dispatch.RPCRequest{}
				err := decoder.Decode(&parsedJson)
				if err != nil {
					cc.SetRpcErrors([]int{parseErrorResponse.Error.Code})
					cc.SetUserError(true)
					return echo.NewHTTPError(http.StatusOK, parseErrorResponse)
				}
				methodArray = append(methodArray, parsedJson.Method)
				cc.SetParsedRequest(&parsedJson, false)
			case fs == '[':
				parsedJson := dispatch.RPCRequests{}
				err := decoder.Decode(&parsedJson)
				if err != nil {
					cc.SetRpcErrors([]int{parseErrorResponse.Error.Code})
					cc.SetUserError(true)
					return echo.NewHTTPError(http.StatusOK, parseErrorResponse)
				}
				if len(parsedJson) == 0 {
					cc.SetRpcErrors([]int{emptyBatchErrorResponse.Error.Code})
					cc.SetUserError(true)
					return echo.NewHTTPError(http.StatusBadRequest, emptyBatchErrorResponse)
				}

				for _, r := range parsedJson {
					if r == nil {
						continue
					}
					methodArray = append(methodArray, r.Method)
				}
				cc.SetParsedRequest(parsedJson, true)
			default:
				cc.SetRpcErrors([]int{parseErrorResponse.Error.Code})
				cc.SetUserError(true)
				return echo.NewHTTPError(http.StatusOK, parseErrorResponse)
			}
			cc.SetReqMethods(methodArray)

			return next(c)
		}
	}
}
