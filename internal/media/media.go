// Package media contains the media frame, metadata and command units
// exchanged by streams.
package media

import (
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/amf0"
)

// MetaData is a metadata object (@setDataFrame / onMetaData).
type MetaData struct {
	Timestamp uint32
	Values    amf0.Data
}

// Clone returns a deep copy of the value list header.
// AMF values themselves are treated as immutable.
func (m *MetaData) Clone() *MetaData {
	return &MetaData{
		Timestamp: m.Timestamp,
		Values:    append(amf0.Data(nil), m.Values...),
	}
}

// Command is a command invocation carried by a stream.
type Command struct {
	Name          string
	TransactionID float64
	Object        interface{}
	Arguments     []interface{}
}
