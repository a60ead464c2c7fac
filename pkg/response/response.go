package response

import (
	"context"
	"errors"
	"net/http"

	appErr "ludo-service/pkg/errors"

	"github.com/gin-gonic/gin"
)

type Body struct {
	Code int         `json:"code"`
	Data interface{} `json:"data"`
	Msg  string      `json:"msg"`
}

func Success(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data, "")
}

func SuccessWithMsg(c *gin.Context, data interface{}, msg string) {
	JSON(c, http.StatusOK, data, msg)
}

func Error(c *gin.Context, status int, msg string) {
	JSON(c, status, gin.H{}, msg)
}

// Err writes err with its taxonomy code in data.code. Uncoded errors are
// reported as INTERNAL without their text.
func Err(c *gin.Context, err error) {
	status, code, msg := describe(err)
	data := gin.H{"code": code}
	if code != appErr.CodeDuplicateAction && errors.Is(err, appErr.ErrDuplicateAction) {
		data["warning"] = appErr.CodeDuplicateAction
	}
	JSON(c, status, data, msg)
}

func AbortError(c *gin.Context, err error) {
	status, code, msg := describe(err)
	c.AbortWithStatusJSON(status, Body{Code: status, Data: gin.H{"code": code}, Msg: msg})
}

func JSON(c *gin.Context, status int, data interface{}, msg string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Body{
		Code: status,
		Data: data,
		Msg:  msg,
	})
}

func describe(err error) (int, string, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		err = appErr.ErrTimeout
	}
	code := appErr.CodeOf(err)
	if code == appErr.CodeInternal {
		return http.StatusInternalServerError, code, "internal error"
	}
	return StatusFor(code), code, err.Error()
}

// StatusFor maps a taxonomy code to an HTTP status.
func StatusFor(code string) int {
	switch code {
	case appErr.CodeUnauthorized:
		return http.StatusUnauthorized
	case appErr.CodeMatchNotFound, appErr.CodeStakeNotFound:
		return http.StatusNotFound
	case appErr.CodeRateLimited, appErr.CodeActionTooFast:
		return http.StatusTooManyRequests
	case appErr.CodeNotYourTurn, appErr.CodeRollInProgress, appErr.CodeVersionConflict,
		appErr.CodeMatchFull, appErr.CodeInvalidState, appErr.CodeAlreadyJoined,
		appErr.CodeJoinInProgress, appErr.CodeDuplicateAction:
		return http.StatusConflict
	case appErr.CodeInvalidToken, appErr.CodeInvalidAction:
		return http.StatusBadRequest
	case appErr.CodeSameNetwork, appErr.CodeInsufficientBalance:
		return http.StatusForbidden
	case appErr.CodeTimeout:
		return http.StatusGatewayTimeout
	case appErr.CodeChannelError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
