package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/laptrack/internal/model"
)

// ErrCodeRateLimitExceeded はレート制限超過のエラーコード。
const ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

// ErrorResponseBody はAPIエラーレスポンスの本文。
// errorは利用者向けメッセージで、内部IDやスタックトレースは含めない。
type ErrorResponseBody struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse はAPIErrorをエラーレスポンスとして書き込む。
// apiErrがnil、またはstatusCodeがエラーを表さない場合は500として扱う。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr == nil || statusCode < http.StatusBadRequest {
		statusCode = http.StatusInternalServerError
		apiErr = internalServerError()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponseBody{
		Error:    apiErr.Message,
		Code:     apiErr.Code,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}); err != nil {
		slog.Warn("failed to write error response",
			slog.String("code", apiErr.Code),
			slog.String("error", err.Error()),
		)
	}
}

// WriteInternalServerError は詳細を伏せた500レスポンスを書き込む。
// 原因は呼び出し側でログに残すこと。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, internalServerError())
}

// WriteTooManyRequests は429レスポンスを書き込む。
// Retry-Afterには retryAfter を切り上げた秒数（最小1秒）を設定する。
func WriteTooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	sec := int(math.Ceil(retryAfter.Seconds()))
	if sec < 1 {
		sec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(sec))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "too many requests",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

func internalServerError() *model.APIError {
	return model.NewInternalError("internal server error")
}
