// internal/api/response_helpers.go
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Corphon/AnimeStoryboard/internal/errors"
	"github.com/Corphon/AnimeStoryboard/internal/utils"
	"github.com/gin-gonic/gin"
)

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct {
	logger *utils.Logger
}

// NewResponseHelper 创建响应助手
func NewResponseHelper(logger *utils.Logger) *ResponseHelper {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &ResponseHelper{logger: logger}
}

func (rh *ResponseHelper) write(c *gin.Context, status int, data interface{}, message []string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(status, response)
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusOK, data, message)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	if len(message) == 0 {
		message = []string{"资源创建成功"}
	}
	rh.write(c, http.StatusCreated, data, message)
}

// Accepted 任务已在后台启动
func (rh *ResponseHelper) Accepted(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusAccepted, data, message)
}

// sanitizeErrorMessage 去掉可能带出密钥的错误信息
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, pattern := range []string{"api_key", "apikey", "key=", "secret", "token", "password"} {
		if strings.Contains(lower, pattern) {
			return "An internal error occurred"
		}
	}
	return message
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}
	if len(details) > 0 {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, resource string, details ...string) {
	rh.Error(c, http.StatusNotFound, rh.getResourceNotFoundCode(resource), resource+"不存在", details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// FromError 按 AppError 类型选择状态码与错误代码
func (rh *ResponseHelper) FromError(c *gin.Context, err error) {
	status, code := statusForError(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	if status >= http.StatusInternalServerError {
		rh.logger.Error("Request failed", map[string]interface{}{
			"path":   c.FullPath(),
			"status": status,
			"error":  err.Error(),
		})
	}
	rh.Error(c, status, code, message)
}

func statusForError(err error) (int, string) {
	switch {
	case apperrors.IsValidationError(err):
		return http.StatusBadRequest, ErrorBadRequest
	case apperrors.IsMalformedDataError(err):
		return http.StatusBadRequest, ErrorMalformedData
	case apperrors.IsNotFoundError(err):
		return http.StatusNotFound, ErrorNotFound
	case apperrors.IsConfirmationRequired(err):
		return http.StatusConflict, ErrorConfirmationRequired
	case apperrors.IsBatchInProgress(err):
		return http.StatusConflict, ErrorBatchInProgress
	case apperrors.IsConflictError(err):
		return http.StatusConflict, ErrorConflict
	case apperrors.IsGatewayError(err):
		return http.StatusBadGateway, gatewayErrorCode(err)
	default:
		return http.StatusInternalServerError, ErrorInternalError
	}
}

// gatewayErrorCode 网关错误按生成类型细分错误码
func gatewayErrorCode(err error) string {
	errType, _ := apperrors.TypeOf(err)
	switch errType {
	case apperrors.ErrorTypeAnalysis:
		return ErrorAnalysisFailed
	case apperrors.ErrorTypeImageGeneration:
		return ErrorImageFailed
	case apperrors.ErrorTypeVideoGeneration:
		return ErrorVideoFailed
	default:
		return ErrorSpeechFailed
	}
}

// DownloadResponse 下载响应（强制下载）
func (rh *ResponseHelper) DownloadResponse(c *gin.Context, content []byte, filename string, contentType string) {
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Data(http.StatusOK, contentType, content)
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// getResourceNotFoundCode 根据资源类型生成错误代码
func (rh *ResponseHelper) getResourceNotFoundCode(resource string) string {
	switch resource {
	case "场景", "scene":
		return ErrorSceneNotFound
	case "角色", "character":
		return ErrorCharacterNotFound
	case "设定", "setting":
		return ErrorSettingNotFound
	case "存档", "snapshot":
		return ErrorSnapshotNotFound
	default:
		return ErrorNotFound
	}
}
