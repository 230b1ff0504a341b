package handler

// Response is the envelope of every API response. Errors carry the HTTP
// status and the request id so callers can quote it.
type Response struct {
	Status  string      `json:"status"`
	Code    int         `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(code int, message, traceID string) *Response {
	return &Response{
		Status:  "error",
		Code:    code,
		Message: message,
		TraceID: traceID,
	}
}
