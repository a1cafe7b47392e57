package http

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"
)

// Response is the body of non-protocol endpoints.
type Response struct {
	Status Status `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}
