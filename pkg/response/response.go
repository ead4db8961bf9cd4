package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeUserNotFound           = 1001
	CodeReferralCodeNotFound   = 1002
	CodeBalanceNotEnough       = 1003
	CodeInvalidStateTransition = 1004
	CodeWithdrawalNotFound     = 1005
	CodeCycleDetected          = 1006
	CodeReconciliationMismatch = 1007
	CodeInvalidAmount          = 1008
	CodeSystemBusy             = 1009
	CodePartialDistribution    = 1010
	CodeWithdrawalConflict     = 1011
)

// Response 统一响应结构，业务错误也返回 HTTP 200，由 code 区分
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

// BusinessErrorWithData 业务错误同时返回数据，例如部分入账的佣金事件
func BusinessErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}
