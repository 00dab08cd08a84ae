// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeError      ErrorType = "processing_error"
	ErrorTypeConflict   ErrorType = "conflict"

	// 生成网关错误类型
	ErrorTypeAnalysis         ErrorType = "analysis_error"
	ErrorTypeImageGeneration  ErrorType = "image_generation_error"
	ErrorTypeVideoGeneration  ErrorType = "video_generation_error"
	ErrorTypeSpeechGeneration ErrorType = "speech_generation_error"

	// 数据与流程错误类型
	ErrorTypeMalformedData        ErrorType = "malformed_data"
	ErrorTypeConfirmationRequired ErrorType = "confirmation_required"
	ErrorTypeBatchInProgress      ErrorType = "batch_in_progress"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewAnalysisError 创建脚本分析错误
func NewAnalysisError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeAnalysis, message, originalError)
}

// NewImageGenerationError 创建图片生成错误
func NewImageGenerationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeImageGeneration, message, originalError)
}

// NewVideoGenerationError 创建视频生成错误
func NewVideoGenerationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeVideoGeneration, message, originalError)
}

// NewSpeechGenerationError 创建语音生成错误
func NewSpeechGenerationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeSpeechGeneration, message, originalError)
}

// NewMalformedDataError 创建数据格式错误（损坏的存档、非法导入文件）
func NewMalformedDataError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeMalformedData, message, originalError)
}

// NewConfirmationRequiredError 破坏性操作缺少用户确认
func NewConfirmationRequiredError(message string) *AppError {
	return NewAppError(ErrorTypeConfirmationRequired, message, nil)
}

// NewBatchInProgressError 同类批处理正在运行
func NewBatchInProgressError(message string) *AppError {
	return NewAppError(ErrorTypeBatchInProgress, message, nil)
}

// TypeOf 返回错误链中第一个 AppError 的类型
func TypeOf(err error) (ErrorType, bool) {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type, true
	}
	return "", false
}

// IsType 检查错误链中是否包含指定类型的 AppError
func IsType(err error, errType ErrorType) bool {
	t, ok := TypeOf(err)
	return ok && t == errType
}

// IsGatewayError 检查是否为生成网关错误
func IsGatewayError(err error) bool {
	t, ok := TypeOf(err)
	if !ok {
		return false
	}
	switch t {
	case ErrorTypeAnalysis, ErrorTypeImageGeneration, ErrorTypeVideoGeneration, ErrorTypeSpeechGeneration:
		return true
	}
	return false
}

// IsMalformedDataError 检查是否为数据格式错误
func IsMalformedDataError(err error) bool {
	return IsType(err, ErrorTypeMalformedData)
}

// IsConfirmationRequired 检查是否缺少确认
func IsConfirmationRequired(err error) bool {
	return IsType(err, ErrorTypeConfirmationRequired)
}

// IsBatchInProgress 检查是否为批处理冲突
func IsBatchInProgress(err error) bool {
	return IsType(err, ErrorTypeBatchInProgress)
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeAnalysis:
		return "ANALYSIS_FAILED"
	case ErrorTypeImageGeneration:
		return "IMAGE_GENERATION_FAILED"
	case ErrorTypeVideoGeneration:
		return "VIDEO_GENERATION_FAILED"
	case ErrorTypeSpeechGeneration:
		return "SPEECH_GENERATION_FAILED"
	case ErrorTypeMalformedData:
		return "MALFORMED_DATA"
	case ErrorTypeConfirmationRequired:
		return "CONFIRMATION_REQUIRED"
	case ErrorTypeBatchInProgress:
		return "BATCH_IN_PROGRESS"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	// 否则创建新的 AppError
	return NewAppError(errType, message, err)
}
