// Package hooks contains the external commands launched on stream events.
package hooks

import (
	"net"

	"github.com/bluenviron/rtmpcast/internal/externalcmd"
	"github.com/bluenviron/rtmpcast/internal/logger"
)

func environment(rtmpAddress string, name string, connID string) externalcmd.Environment {
	_, port, _ := net.SplitHostPort(rtmpAddress)
	return externalcmd.Environment{
		"RTMP_PORT":   port,
		"RTC_STREAM":  name,
		"RTC_CONN_ID": connID,
	}
}

func run(
	l logger.Writer,
	hookName string,
	pool *externalcmd.Pool,
	cmdstr string,
	restart bool,
	env externalcmd.Environment,
) func() {
	if cmdstr == "" {
		return func() {}
	}

	l.Log(logger.Info, "%s command started", hookName)

	cmd := externalcmd.NewCmd(
		pool,
		cmdstr,
		restart,
		env,
		func(err error) {
			l.Log(logger.Info, "%s command exited: %v", hookName, err)
		})

	return func() {
		cmd.Close()
		l.Log(logger.Info, "%s command stopped", hookName)
	}
}
