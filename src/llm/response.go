package llm

import (
	"encoding/json"
	"fmt"
	"log"
)

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// ParseResponse extracts candidates[0].content.parts[0].text from a Gemini
// response. Anything that does not have that shape, malformed JSON
// included, is returned unchanged.
func ParseResponse(raw string) string {
	var resp generateContentResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		log.Printf("llm: JSON parsing error: %v", err)
		return raw
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return raw
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	if text == nil {
		return raw
	}
	return *text
}

// APIError is an error object returned by the Gemini API.
type APIError struct {
	StatusCode int
	Code       int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("API error: %s (status: %s, code: %d)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("API error: %s (HTTP %d)", e.Message, e.StatusCode)
}

func parseAPIError(raw string, statusCode int) *APIError {
	var body struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil || body.Error == nil || body.Error.Message == "" {
		return nil
	}
	return &APIError{
		StatusCode: statusCode,
		Code:       body.Error.Code,
		Status:     body.Error.Status,
		Message:    body.Error.Message,
	}
}
