package echo

import (
	"time"

	"github.com/labstack/echo/v4"
)

const MultipleValuesRequested = "multiple_values"

type CustomContext struct {
	echo.Context

	reqMethods  []string
	reqBody     []byte
	resBody     string
	rpcErrors   []int
	rpcUsed     string
	retries     int
	cached      bool
	userError   bool
	hasError    bool
	reqDuration time.Time
	batch       bool
	parsedReqs  any
}

func (c *CustomContext) SetReqMethods(reqMethods []string) {
	c.reqMethods = reqMethods
}

func (c *CustomContext) GetReqMethods() []string {
	return c.reqMethods
}

func (c *CustomContext) GetReqMethod() string {
	if len(c.reqMethods) == 1 {
		return c.reqMethods[0]
	}
	if len(c.reqMethods) > 1 {
		return MultipleValuesRequested
	}
	return ""
}

func (c *CustomContext) SetReqBody(reqBody []byte) {
	c.reqBody = reqBody
}

func (c *CustomContext) GetReqBody() string {
	return string(c.reqBody)
}

func (c *CustomContext) SetResBody(resBody string) {
	c.resBody = resBody
}

func (c *CustomContext) GetResBody() string {
	return c.resBody
}

func (c *CustomContext) SetRpcErrors(rpcErrors []int) {
	c.rpcErrors = rpcErrors
}

func (c *CustomContext) GetRpcErrors() []int {
	return c.rpcErrors
}

func (c *CustomContext) SetRpcUsed(rpcUsed string) {
	c.rpcUsed = rpcUsed
}

func (c *CustomContext) GetRpcUsed() string {
	return c.rpcUsed
}

func (c *CustomContext) SetRetries(retries int) {
	c.retries = retries
}

func (c *CustomContext) GetRetries() int {
	return c.retries
}

func (c *CustomContext) SetCached(cached bool) {
	c.cached = cached
}

func (c *CustomContext) GetCached() bool {
	return c.cached
}

func (c *CustomContext) SetUserError(userError bool) {
	c.userError = userError
}

func (c *CustomContext) GetUserError() bool {
	return c.userError
}

func (c *CustomContext) SetHasError(hasError bool) {
	c.hasError = hasError
}

func (c *CustomContext) GetHasError() bool {
	return c.hasError
}

func (c *CustomContext) SetReqDuration(reqDuration time.Time) {
	c.reqDuration = reqDuration
}

func (c *CustomContext) GetReqDuration() time.Time {
	return c.reqDuration
}

// SetParsedRequest stores the decoded body; batch is true for a JSON array.
func (c *CustomContext) SetParsedRequest(parsed any, batch bool) {
	c.parsedReqs = parsed
	c.batch = batch
}

func (c *CustomContext) GetParsedRequest() (parsed any, batch bool) {
	return c.parsedReqs, c.batch
}
