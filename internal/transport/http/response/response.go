package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeInvalidFileType    = 40001
	CodeEmptyUpload        = 40002
	CodeMissingFile        = 40003
	CodeUnauthorized       = 40100
	CodeNotFound           = 40400
	CodePredictionNotFound = 40401
	CodeTooLarge           = 41300
	CodeImageTooLarge      = 41301
	CodeInvalidImage       = 42200
	CodeRateLimited        = 42900
	CodeInternalServer     = 50000
	CodePredictionFailed   = 50001
	CodeUnavailable        = 50300
	CodePredictionTimeout  = 50400
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse keeps both "error" and "detail" so the bundled frontend and
// older clients can read the message.
type ErrorResponse struct {
	Code   int    `json:"code"`
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, ErrorResponse{
		Code:   code,
		Error:  message,
		Detail: message,
	})
}
