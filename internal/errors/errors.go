package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrImageTooLarge     = &AppError{Code: "UPLOAD_001", Message: "too large"}
	ErrImageEmpty        = &AppError{Code: "UPLOAD_002", Message: "empty"}
	ErrUnsupportedFormat = &AppError{Code: "UPLOAD_003", Message: "unsupported format"}
	ErrInvalidExtension  = &AppError{Code: "UPLOAD_004", Message: "invalid extension"}

	ErrImageNotFound     = &AppError{Code: "STORE_001", Message: "image not found"}
	ErrIllegalTransition = &AppError{Code: "STORE_002", Message: "illegal status transition"}
	ErrStoreClosed       = &AppError{Code: "STORE_003", Message: "store is closed"}
	ErrNotReprocessable  = &AppError{Code: "STORE_004", Message: "record cannot be reprocessed"}

	ErrEngineUnavailable  = &AppError{Code: "OCR_001", Message: "recognition engine unavailable"}
	ErrRecognition        = &AppError{Code: "OCR_002", Message: "recognition failed"}
	ErrRecognitionTimeout = &AppError{Code: "OCR_003", Message: "recognition timed out"}

	ErrEnhanceNotConfigured = &AppError{Code: "ENHANCE_001", Message: "enhancement not configured"}
	ErrEnhanceRequest       = &AppError{Code: "ENHANCE_002", Message: "enhancement request failed"}

	ErrUnsupportedLanguage = &AppError{Code: "SETTINGS_001", Message: "unsupported language"}
	ErrInvalidSegMode      = &AppError{Code: "SETTINGS_002", Message: "invalid segmentation mode"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
