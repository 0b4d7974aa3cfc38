package events

import (
	"strings"

	domain "comparoo/internal/domain/comparison"
	"comparoo/pkg/errors"
)

// Result statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// CompareRequestMessage is the JSON body of a comparisons.requests message
type CompareRequestMessage struct {
	RunID       string `json:"run_id,omitempty"`
	Category    string `json:"category"`
	Constraints string `json:"constraints,omitempty"`
	UseCache    *bool  `json:"use_cache,omitempty"`
}

// Request converts the message into a compare request; use_cache defaults to true
func (m CompareRequestMessage) Request() domain.CompareRequest {
	useCache := true
	if m.UseCache != nil {
		useCache = *m.UseCache
	}
	return domain.CompareRequest{
		Category:    m.Category,
		Constraints: m.Constraints,
		UseCache:    useCache,
	}
}

// ResultEvent is published once per request on comparisons.results
type ResultEvent struct {
	RunID      string                   `json:"run_id"`
	Status     string                   `json:"status"`
	Result     *domain.ComparisonResult `json:"result,omitempty"`
	Error      string                   `json:"error,omitempty"`
	ErrorCode  string                   `json:"error_code,omitempty"`
	HTTPStatus int                      `json:"http_status,omitempty"`
}

// NewResultEvent builds the outcome of a run. A non-nil err wins over res.
func NewResultEvent(runID string, res *domain.ComparisonResult, err error) ResultEvent {
	if err != nil {
		return ResultEvent{
			RunID:      runID,
			Status:     StatusError,
			Error:      SanitizeUTF8(err.Error()),
			ErrorCode:  errors.Code(err),
			HTTPStatus: errors.HTTPStatus(err),
		}
	}
	if res != nil && runID == "" {
		runID = res.RunID.String()
	}
	return ResultEvent{RunID: runID, Status: StatusSuccess, Result: res}
}

// SanitizeUTF8 drops invalid UTF-8 sequences; upstream error bodies are not always clean
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
