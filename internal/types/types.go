// Package types defines core data types and enums for the math-text editor.
package types

// Config 应用配置
type Config struct {
	OpenAIAPIKey  string `json:"openai_api_key"`
	OpenAIBaseURL string `json:"openai_base_url"` // OpenAI 兼容 API 的 Base URL
	OpenAIModel   string `json:"openai_model"`    // LaTeX 修复建议使用的模型
	// 数学输入框行为
	TypingWindowMs   int `json:"typing_window_ms"`   // 最后一次输入后保持 "typing" 状态的时长，默认 300
	BlurSettleMs     int `json:"blur_settle_ms"`     // blur 后等待焦点稳定再确认的时长
	EchoFrameMs      int `json:"echo_frame_ms"`      // 程序写入后忽略回声事件的时长（约一帧）
	WidgetLoadRetry  int `json:"widget_load_retry"`  // 编辑组件加载失败后的重试次数
	WidgetBackoffMs  int `json:"widget_backoff_ms"`  // 首次重试前的等待时长，之后每次翻倍
	// 预览服务
	PreviewAddr string `json:"preview_addr"` // 预览 HTTP 服务监听地址
	LogLevel    string `json:"log_level"`    // debug, info, warn, error
}

// SegmentType 片段类型
type SegmentType string

const (
	SegmentText SegmentType = "text"
	SegmentMath SegmentType = "math"
)

// Delimiter 数学片段的原始定界符
type Delimiter string

const (
	DelimNone    Delimiter = ""
	DelimInline  Delimiter = "$"
	DelimDisplay Delimiter = "$$"
)

// MathSegment 混合文本中的一个连续片段
type MathSegment struct {
	Type      SegmentType `json:"type"`
	Content   string      `json:"content"`   // 去掉定界符后的内容；环境块保留原文
	Start     int         `json:"start"`     // 原字符串中的字节偏移（含定界符）
	End       int         `json:"end"`
	Delimiter Delimiter   `json:"delimiter"`
	// Environment is the ENV name of a \begin{ENV}...\end{ENV} block. Such blocks
	// are tagged DelimDisplay for rendering but are written back verbatim.
	Environment string `json:"environment,omitempty"`
}

// IsMath reports whether the segment holds math content.
func (s MathSegment) IsMath() bool {
	return s.Type == SegmentMath
}

// ValidationResult LaTeX 校验结果（仅作提示，不阻止输入）
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidationOK is the result for input that passes every check.
var ValidationOK = ValidationResult{Valid: true}

// EditorFocusState 单个数学输入框的焦点状态快照
type EditorFocusState struct {
	IsFocused           bool   `json:"is_focused"`
	IsTyping            bool   `json:"is_typing"`
	LastNormalizedValue string `json:"last_normalized_value"`
}

// RenderResult 渲染结果
type RenderResult struct {
	HTML     string `json:"html"`
	Dense    bool   `json:"dense"`    // 含矩阵/环境时使用更紧凑的排版
	Fallback bool   `json:"fallback"` // 渲染失败，HTML 为转义后的原文
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrWidgetLoad   ErrorCode = "WIDGET_LOAD_ERROR"
	ErrAssist       ErrorCode = "ASSIST_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}
