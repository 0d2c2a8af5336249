package hooks

import (
	"github.com/bluenviron/rtmpcast/internal/externalcmd"
	"github.com/bluenviron/rtmpcast/internal/logger"
)

// OnPublishParams are the parameters of OnPublish.
type OnPublishParams struct {
	Logger              logger.Writer
	ExternalCmdPool     *externalcmd.Pool
	RunOnPublish        string
	RunOnPublishRestart bool
	RTMPAddress         string
	Stream              string
	ConnID              string
}

// OnPublish is the OnPublish hook.
// It returns a function that stops the command.
func OnPublish(params OnPublishParams) func() {
	return run(
		params.Logger,
		"runOnPublish",
		params.ExternalCmdPool,
		params.RunOnPublish,
		params.RunOnPublishRestart,
		environment(params.RTMPAddress, params.Stream, params.ConnID))
}
