package rtmp

import (
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/amf0"
)

// status codes.
const (
	CodeConnectSuccess       = "NetConnection.Connect.Success"
	CodeConnectRejected      = "NetConnection.Connect.Rejected"
	CodeCallFailed           = "NetConnection.Call.Failed"
	CodePublishStart         = "NetStream.Publish.Start"
	CodePublishBadName       = "NetStream.Publish.BadName"
	CodePublishRejected      = "NetStream.Publish.Rejected"
	CodePublishFailed        = "NetStream.Publish.Failed"
	CodeUnpublishSuccess     = "NetStream.Unpublish.Success"
	CodePlayReset            = "NetStream.Play.Reset"
	CodePlayStart            = "NetStream.Play.Start"
	CodePlayStop             = "NetStream.Play.Stop"
	CodePlayFailed           = "NetStream.Play.Failed"
	CodePlayStreamNotFound   = "NetStream.Play.StreamNotFound"
	CodePlayPublishNotify    = "NetStream.Play.PublishNotify"
	CodePlayUnpublishNotify  = "NetStream.Play.UnpublishNotify"
	CodeDataStart            = "NetStream.Data.Start"
	CodePauseNotify          = "NetStream.Pause.Notify"
	CodeUnpauseNotify        = "NetStream.Unpause.Notify"
	CodePauseFailed          = "NetStream.Pause.Failed"
	CodeSeekNotify           = "NetStream.Seek.Notify"
	CodeSeekFailed           = "NetStream.Seek.Failed"
	CodeNetStreamFailed      = "NetStream.Failed"
	codeLevelStatus          = "status"
	codeLevelError           = "error"
	defaultStatusDescription = "-"
)

// StatusError is an error that is reported to the peer with a status event.
type StatusError struct {
	Code        string
	Description string

	// optional cause, used as description when Description is empty.
	Err error
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return e.Code + ": " + e.description()
}

// Unwrap returns the cause.
func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) description() string {
	if e.Description == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Description
}

func statusObject(level string, code string, description string) amf0.Object {
	if description == "" {
		description = defaultStatusDescription
	}

	return amf0.Object{
		{Key: "level", Value: level},
		{Key: "code", Value: code},
		{Key: "description", Value: description},
	}
}

// StatusCode returns the code of a status event carried by a command.
func StatusCode(args []interface{}) (string, bool) {
	if len(args) < 1 {
		return "", false
	}

	o, ok := amf0.AsObject(args[0])
	if !ok {
		return "", false
	}

	return o.GetString("code")
}
