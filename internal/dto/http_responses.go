package dto

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	RemoteUnavailable = "REMOTE_UNAVAILABLE"
	RemoteQueryFailed = "REMOTE_QUERY_FAILED"
	RemoteWriteFailed = "REMOTE_WRITE_FAILED"
	NotFound          = "NOT_FOUND"
	EventFull         = "EVENT_FULL"
	SyncInProgress    = "SYNC_IN_PROGRESS"
	TooManyRequests   = "TOO_MANY_REQUESTS"
)

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

// ChangeMessage is broadcast to other instances after a successful write.
type ChangeMessage struct {
	Collection string    `json:"collection"`
	Origin     string    `json:"origin"`
	ChangedAt  time.Time `json:"changed_at"`
}

type ClearResponse struct {
	Deleted int `json:"deleted"`
}

func ErrorResponse(c *ginext.Context, status int, code, desc string) {
	c.AbortWithStatusJSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	ErrorResponse(c, http.StatusBadRequest, code, desc)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func NotFoundError(c *ginext.Context, desc string) {
	ErrorResponse(c, http.StatusNotFound, NotFound, desc)
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}
