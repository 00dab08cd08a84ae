// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest      = "BAD_REQUEST"
	ErrorNotFound        = "NOT_FOUND"
	ErrorInternalError   = "INTERNAL_ERROR"
	ErrorConflict        = "CONFLICT"
	ErrorRateLimited     = "RATE_LIMIT_EXCEEDED"
	ErrorMalformedData   = "MALFORMED_DATA"
	ErrorUpstreamFailure = "UPSTREAM_FAILURE"

	// 场景相关错误
	ErrorSceneNotFound   = "SCENE_NOT_FOUND"
	ErrorSceneInvalid    = "SCENE_INVALID"
	ErrorFieldNotAllowed = "FIELD_NOT_ALLOWED"

	// 设定相关错误
	ErrorCharacterNotFound = "CHARACTER_NOT_FOUND"
	ErrorSettingNotFound   = "SETTING_NOT_FOUND"
	ErrorStyleInvalid      = "STYLE_INVALID"

	// 项目相关错误
	ErrorConfirmationRequired = "CONFIRMATION_REQUIRED"
	ErrorImportFailed         = "IMPORT_FAILED"
	ErrorSnapshotNotFound     = "SNAPSHOT_NOT_FOUND"

	// 生成相关错误
	ErrorBatchInProgress = "BATCH_IN_PROGRESS"
	ErrorAnalysisFailed  = "ANALYSIS_FAILED"
	ErrorImageFailed     = "IMAGE_GENERATION_FAILED"
	ErrorVideoFailed     = "VIDEO_GENERATION_FAILED"
	ErrorSpeechFailed    = "SPEECH_GENERATION_FAILED"
)
