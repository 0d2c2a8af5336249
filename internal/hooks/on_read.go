package hooks

import (
	"github.com/bluenviron/rtmpcast/internal/externalcmd"
	"github.com/bluenviron/rtmpcast/internal/logger"
)

// OnReadParams are the parameters of OnRead.
type OnReadParams struct {
	Logger          logger.Writer
	ExternalCmdPool *externalcmd.Pool
	RunOnRead       string
	RTMPAddress     string
	Stream          string
	ConnID          string
}

// OnRead is the OnRead hook.
// The command is never restarted.
func OnRead(params OnReadParams) func() {
	return run(
		params.Logger,
		"runOnRead",
		params.ExternalCmdPool,
		params.RunOnRead,
		false,
		environment(params.RTMPAddress, params.Stream, params.ConnID))
}
