package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is the typed identifier of a specific failure category.
// Codes are grouped per module: COMMON_ for cross-cutting failures, MOL_ for
// the molecule domain, SCR_ for screening, TOX_ for the toxicity model, and
// EXT_ for external data providers.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_005"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_006"
	ErrCodeTimeout            ErrorCode = "COMMON_007"
	ErrCodeValidation         ErrorCode = "COMMON_008"
	ErrCodeSerialization      ErrorCode = "COMMON_009"
	ErrCodeDatabaseError      ErrorCode = "COMMON_010"
	ErrCodeCacheError         ErrorCode = "COMMON_011"
	ErrCodeStorageError       ErrorCode = "COMMON_012"
	ErrCodeMessagingError     ErrorCode = "COMMON_013"
	ErrCodeNotImplemented     ErrorCode = "COMMON_014"
)

// Molecule module error codes.
const (
	ErrCodeMoleculeInvalidSMILES   ErrorCode = "MOL_001"
	ErrCodeMoleculeNotFound        ErrorCode = "MOL_002"
	ErrCodeMoleculeAlreadyExists   ErrorCode = "MOL_003"
	ErrCodeFingerprintFailed       ErrorCode = "MOL_004"
	ErrCodeFingerprintUnsupported  ErrorCode = "MOL_005"
	ErrCodeFingerprintDimMismatch  ErrorCode = "MOL_006"
	ErrCodeDescriptorFailed        ErrorCode = "MOL_007"
	ErrCodeConformerEmbeddingFailed ErrorCode = "MOL_008"
	ErrCodeAlignmentIncompatible   ErrorCode = "MOL_009"
)

// Screening module error codes.
const (
	ErrCodeCorpusEmpty          ErrorCode = "SCR_001"
	ErrCodeCorpusParseFailed    ErrorCode = "SCR_002"
	ErrCodeScreeningFailed      ErrorCode = "SCR_003"
	ErrCodeThresholdInvalid     ErrorCode = "SCR_004"
	ErrCodeScreeningRunNotFound ErrorCode = "SCR_005"
)

// Toxicity model error codes.
const (
	ErrCodeModelNotTrained      ErrorCode = "TOX_001"
	ErrCodeTrainingDataInvalid  ErrorCode = "TOX_002"
	ErrCodeModelNotFound        ErrorCode = "TOX_003"
	ErrCodePredictionFailed     ErrorCode = "TOX_004"
	ErrCodeValidationFoldsInvalid ErrorCode = "TOX_005"
)

// External provider error codes.
const (
	ErrCodeProviderUnavailable ErrorCode = "EXT_001"
	ErrCodeProviderRateLimited ErrorCode = "EXT_002"
	ErrCodeProviderNotFound    ErrorCode = "EXT_003"
	ErrCodeProviderBadResponse ErrorCode = "EXT_004"
	ErrCodeProviderTimeout     ErrorCode = "EXT_005"
)

// errorCodeHTTPStatus maps each code to the HTTP status returned by the API.
var errorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeMessagingError:     http.StatusInternalServerError,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeMoleculeInvalidSMILES:    http.StatusBadRequest,
	ErrCodeMoleculeNotFound:         http.StatusNotFound,
	ErrCodeMoleculeAlreadyExists:    http.StatusConflict,
	ErrCodeFingerprintFailed:        http.StatusUnprocessableEntity,
	ErrCodeFingerprintUnsupported:   http.StatusBadRequest,
	ErrCodeFingerprintDimMismatch:   http.StatusBadRequest,
	ErrCodeDescriptorFailed:         http.StatusUnprocessableEntity,
	ErrCodeConformerEmbeddingFailed: http.StatusUnprocessableEntity,
	ErrCodeAlignmentIncompatible:    http.StatusUnprocessableEntity,

	ErrCodeCorpusEmpty:          http.StatusBadRequest,
	ErrCodeCorpusParseFailed:    http.StatusUnprocessableEntity,
	ErrCodeScreeningFailed:      http.StatusInternalServerError,
	ErrCodeThresholdInvalid:     http.StatusBadRequest,
	ErrCodeScreeningRunNotFound: http.StatusNotFound,

	ErrCodeModelNotTrained:        http.StatusConflict,
	ErrCodeTrainingDataInvalid:    http.StatusBadRequest,
	ErrCodeModelNotFound:          http.StatusNotFound,
	ErrCodePredictionFailed:       http.StatusInternalServerError,
	ErrCodeValidationFoldsInvalid: http.StatusBadRequest,

	ErrCodeProviderUnavailable: http.StatusBadGateway,
	ErrCodeProviderRateLimited: http.StatusTooManyRequests,
	ErrCodeProviderNotFound:    http.StatusNotFound,
	ErrCodeProviderBadResponse: http.StatusBadGateway,
	ErrCodeProviderTimeout:     http.StatusGatewayTimeout,
}

// errorCodeMessage maps each code to its default human-readable message.
var errorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeStorageError:       "object storage error",
	ErrCodeMessagingError:     "message broker error",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeMoleculeInvalidSMILES:    "invalid SMILES notation",
	ErrCodeMoleculeNotFound:         "molecule not found",
	ErrCodeMoleculeAlreadyExists:    "molecule already registered",
	ErrCodeFingerprintFailed:        "fingerprint calculation failed",
	ErrCodeFingerprintUnsupported:   "unsupported fingerprint type",
	ErrCodeFingerprintDimMismatch:   "fingerprint dimensions do not match",
	ErrCodeDescriptorFailed:         "descriptor calculation failed",
	ErrCodeConformerEmbeddingFailed: "conformer embedding failed",
	ErrCodeAlignmentIncompatible:    "conformers are incompatible for alignment",

	ErrCodeCorpusEmpty:          "candidate corpus is empty",
	ErrCodeCorpusParseFailed:    "failed to parse candidate corpus",
	ErrCodeScreeningFailed:      "screening run failed",
	ErrCodeThresholdInvalid:     "similarity threshold must be in [0, 1]",
	ErrCodeScreeningRunNotFound: "screening run not found",

	ErrCodeModelNotTrained:        "toxicity model has not been trained",
	ErrCodeTrainingDataInvalid:    "training data is invalid",
	ErrCodeModelNotFound:          "toxicity model not found",
	ErrCodePredictionFailed:       "toxicity prediction failed",
	ErrCodeValidationFoldsInvalid: "cross-validation fold count is invalid",

	ErrCodeProviderUnavailable: "external provider unavailable",
	ErrCodeProviderRateLimited: "external provider rate limited",
	ErrCodeProviderNotFound:    "identifier not found at external provider",
	ErrCodeProviderBadResponse: "external provider returned an unparsable response",
	ErrCodeProviderTimeout:     "external provider request timed out",
}

// HTTPStatusForCode returns the HTTP status an API response should carry for
// the given code. Unknown codes map to 500.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message registered for a code.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := errorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError reports whether the code maps to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError reports whether the code maps to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of a code (e.g. "MOL" for MOL_004).
func ModuleForCode(code ErrorCode) string {
	if i := strings.IndexByte(string(code), '_'); i > 0 {
		return string(code)[:i]
	}
	return "UNKNOWN"
}
