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

	// 领域错误类型
	ErrorTypeGeneration  ErrorType = "generation_error"   // 外部生成调用失败
	ErrorTypeStorage     ErrorType = "storage_error"      // 持久化存储读写失败
	ErrorTypeImportShape ErrorType = "import_shape_error" // 导入数据形状不合法
	ErrorTypeImportRead  ErrorType = "import_read_error"  // 导入文件无法读取
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

// NewGenerationError 创建生成失败错误
func NewGenerationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeGeneration, message, originalError)
}

// NewStorageError 创建存储失败错误
func NewStorageError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeStorage, message, originalError)
}

// NewImportShapeError 创建导入形状错误
func NewImportShapeError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeImportShape, message, originalError)
}

// NewImportReadError 创建导入读取错误
func NewImportReadError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeImportRead, message, originalError)
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsGenerationError 检查是否为生成失败错误
func IsGenerationError(err error) bool {
	return hasType(err, ErrorTypeGeneration)
}

// IsStorageError 检查是否为存储失败错误
func IsStorageError(err error) bool {
	return hasType(err, ErrorTypeStorage)
}

// IsImportShapeError 检查是否为导入形状错误
func IsImportShapeError(err error) bool {
	return hasType(err, ErrorTypeImportShape)
}

// AsAppError 从错误链中提取 AppError，不是 AppError 时返回 nil
func AsAppError(err error) *AppError {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError
	}
	return nil
}

func hasType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeGeneration:
		return "GENERATION_FAILED"
	case ErrorTypeStorage:
		return "STORAGE_FAILED"
	case ErrorTypeImportShape:
		return "IMPORT_INVALID_SHAPE"
	case ErrorTypeImportRead:
		return "IMPORT_UNREADABLE"
	default:
		return "PROCESSING_ERROR"
	}
}
