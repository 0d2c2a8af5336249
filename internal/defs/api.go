// Package defs contains shared definitions.
package defs

import (
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/rtmpcast/internal/broadcast"
)

// APIError is a generic error.
type APIError struct {
	Error string `json:"error"`
}

// APIInfo contains informations about the instance.
type APIInfo struct {
	Version  string    `json:"version"`
	Started  time.Time `json:"started"`
	Transfer uint64    `json:"transfer"`
}

// APIRTMPConnState is the state of a RTMP connection.
type APIRTMPConnState string

// states.
const (
	APIRTMPConnStateIdle    APIRTMPConnState = "idle"
	APIRTMPConnStateRead    APIRTMPConnState = "read"
	APIRTMPConnStatePublish APIRTMPConnState = "publish"
)

// APIRTMPConn is a RTMP connection.
type APIRTMPConn struct {
	ID            uuid.UUID        `json:"id"`
	Created       time.Time        `json:"created"`
	RemoteAddr    string           `json:"remoteAddr"`
	State         APIRTMPConnState `json:"state"`
	Stream        string           `json:"stream"`
	Query         string           `json:"query"`
	RTT           float64          `json:"rtt"`
	BytesReceived uint64           `json:"bytesReceived"`
	BytesSent     uint64           `json:"bytesSent"`
	FramesDropped uint64           `json:"framesDropped"`
}

// APIRTMPConnList is a list of RTMP connections.
type APIRTMPConnList struct {
	ItemCount int            `json:"itemCount"`
	PageCount int            `json:"pageCount"`
	Items     []*APIRTMPConn `json:"items"`
}

// APIStreamList is a list of published streams.
type APIStreamList struct {
	ItemCount int                         `json:"itemCount"`
	PageCount int                         `json:"pageCount"`
	Items     []broadcast.PublishedStream `json:"items"`
}

// APIRTMPServer contains methods used by the API.
type APIRTMPServer interface {
	APIConnsList() (*APIRTMPConnList, error)
	APIConnsGet(uuid.UUID) (*APIRTMPConn, error)
	APIConnsKick(uuid.UUID) error
}

// APISession contains methods used by the API.
type APISession interface {
	PublishedStreams() []broadcast.PublishedStream
	Subscribe() (<-chan broadcast.Event, func())
	Transfer() uint64
}
