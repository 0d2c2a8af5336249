// Package core contains the main struct of the software.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"

	"github.com/bluenviron/rtmpcast/internal/api"
	"github.com/bluenviron/rtmpcast/internal/auth"
	"github.com/bluenviron/rtmpcast/internal/broadcast"
	"github.com/bluenviron/rtmpcast/internal/conf"
	"github.com/bluenviron/rtmpcast/internal/confwatcher"
	"github.com/bluenviron/rtmpcast/internal/externalcmd"
	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/metrics"
	"github.com/bluenviron/rtmpcast/internal/pprof"
	"github.com/bluenviron/rtmpcast/internal/rlimit"
	"github.com/bluenviron/rtmpcast/internal/servers/rtmp"
)

var version = "v0.0.0"

var defaultConfPaths = []string{
	"rtmpcast.yml",
	"/usr/local/etc/rtmpcast.yml",
	"/usr/etc/rtmpcast.yml",
	"/etc/rtmpcast/rtmpcast.yml",
}

var cli struct {
	Version  bool   `help:"print version"`
	Confpath string `arg:"" default:""`
}

// Core is an instance of rtmpcast.
type Core struct {
	ctx             context.Context
	ctxCancel       func()
	confPath        string
	conf            *conf.Conf
	logger          *logger.Logger
	externalCmdPool *externalcmd.Pool
	authManager     *auth.Manager
	session         *broadcast.Session
	rtmpServer      *rtmp.Server
	api             *api.API
	metrics         *metrics.Metrics
	pprof           *pprof.PPROF
	confWatcher     *confwatcher.ConfWatcher
	started         time.Time

	// out
	done chan struct{}
}

// New allocates a Core.
func New(args []string) (*Core, bool) {
	parser, err := kong.New(&cli,
		kong.Description("rtmpcast "+version),
		kong.UsageOnError(),
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "confpath":
				return "path to a config file. The default is rtmpcast.yml."

			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	if cli.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		started:   time.Now(),
		done:      make(chan struct{}),
	}

	p.conf, p.confPath, err = conf.Load(cli.Confpath, defaultConfPaths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERR: %s\n", err)
		ctxCancel()
		return nil, false
	}

	err = p.createResources(true)
	if err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Fprintf(os.Stderr, "ERR: %s\n", err)
		}
		p.closeResources(nil)
		ctxCancel()
		return nil, false
	}

	go p.run()

	return p, true
}

// Close closes Core and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit.
func (p *Core) Wait() {
	<-p.done
}

// Log implements logger.Writer.
func (p *Core) Log(level logger.Level, format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Log(level, format, args...)
	}
}

func (p *Core) run() {
	defer close(p.done)

	confChanged := func() chan struct{} {
		if p.confWatcher != nil {
			return p.confWatcher.Watch()
		}
		return make(chan struct{})
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

outer:
	for {
		select {
		case <-confChanged:
			p.Log(logger.Info, "reloading configuration (file changed)")

			newConf, _, err := conf.Load(p.confPath, nil)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

			err = p.reloadConf(newConf)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

		case <-interrupt:
			p.Log(logger.Info, "shutting down gracefully")
			break outer

		case <-p.ctx.Done():
			break outer
		}
	}

	p.ctxCancel()

	p.closeResources(nil)
}

func (p *Core) createResources(initial bool) error {
	if p.logger == nil {
		l := &logger.Logger{
			Level:        logger.Level(p.conf.LogLevel),
			Destinations: p.conf.LogDestinations,
			File:         p.conf.LogFile,
			SysLogPrefix: "rtmpcast",
		}
		err := l.Initialize()
		if err != nil {
			return err
		}
		p.logger = l
	}

	if initial {
		p.Log(logger.Info, "rtmpcast %s", version)

		if p.confPath != "" {
			p.Log(logger.Debug, "configuration loaded from %s", p.confPath)
		} else {
			p.Log(logger.Warn, "configuration file not found (looked in %v), using an empty configuration",
				defaultConfPaths)
		}

		// on Linux, try to raise the number of file descriptors that can be opened
		// to allow the maximum possible number of clients
		// do not check for errors
		rlimit.Raise() //nolint:errcheck

		gin.SetMode(gin.ReleaseMode)

		p.externalCmdPool = &externalcmd.Pool{}
		p.externalCmdPool.Initialize()
	}

	if p.authManager == nil {
		p.authManager = &auth.Manager{
			PublishUser: p.conf.PublishUser,
			PublishPass: p.conf.PublishPass,
			ReadUser:    p.conf.ReadUser,
			ReadPass:    p.conf.ReadPass,
			JWTJWKS:     p.conf.AuthJWTJWKS,
			JWTClaimKey: p.conf.AuthJWTClaimKey,
			ReadTimeout: time.Duration(p.conf.ReadTimeout),
		}
	}

	if p.session == nil {
		p.session = &broadcast.Session{
			MaxConcurrent: p.conf.MaxConcurrent,
			MaxTransfer:   uint64(p.conf.MaxTransfer),
			GOPCache:      p.conf.GOPCache,
			Parent:        p,
		}
		p.session.Initialize()
	}

	if p.rtmpServer == nil {
		i := &rtmp.Server{
			Address:             p.conf.RTMPAddress,
			ReadTimeout:         p.conf.ReadTimeout,
			WriteTimeout:        p.conf.WriteTimeout,
			WriteQueueSize:      p.conf.WriteQueueSize,
			ChunkSize:           p.conf.ChunkSize,
			WindowAckSize:       p.conf.WindowAckSize,
			PeerBandwidth:       p.conf.PeerBandwidth,
			PingPeriod:          p.conf.PingPeriod,
			WaitIntra:           p.conf.WaitIntra,
			RewriteTimestamps:   p.conf.RewriteTimestamps,
			AuthManager:         p.authManager,
			RunOnPublish:        p.conf.RunOnPublish,
			RunOnPublishRestart: p.conf.RunOnPublishRestart,
			RunOnRead:           p.conf.RunOnRead,
			Transmitters:        p.conf.Transmitters,
			ExternalCmdPool:     p.externalCmdPool,
			Session:             p.session,
			Parent:              p,
		}

		// set before the server starts accepting publishers
		p.session.Transmit = i.Transmit

		err := i.Initialize()
		if err != nil {
			return err
		}
		p.rtmpServer = i
	}

	if p.conf.API &&
		p.api == nil {
		i := &api.API{
			Version:      version,
			Started:      p.started,
			Address:      p.conf.APIAddress,
			ReadTimeout:  p.conf.ReadTimeout,
			WriteTimeout: p.conf.WriteTimeout,
			RTMPServer:   p.rtmpServer,
			Session:      p.session,
			Parent:       p,
		}
		err := i.Initialize()
		if err != nil {
			return err
		}
		p.api = i
	}

	if p.conf.Metrics &&
		p.metrics == nil {
		i := &metrics.Metrics{
			Address:         p.conf.MetricsAddress,
			ReadTimeout:     p.conf.ReadTimeout,
			WriteTimeout:    p.conf.WriteTimeout,
			RTMPServer:      p.rtmpServer,
			Session:         p.session,
			ExternalCmdPool: p.externalCmdPool,
			Parent:          p,
		}
		err := i.Initialize()
		if err != nil {
			return err
		}
		p.metrics = i
	}

	if p.conf.PPROF &&
		p.pprof == nil {
		i := &pprof.PPROF{
			Address:      p.conf.PPROFAddress,
			ReadTimeout:  p.conf.ReadTimeout,
			WriteTimeout: p.conf.WriteTimeout,
			Parent:       p,
		}
		err := i.Initialize()
		if err != nil {
			return err
		}
		p.pprof = i
	}

	if initial && p.confPath != "" {
		cf := &confwatcher.ConfWatcher{FilePath: p.confPath}
		err := cf.Initialize()
		if err != nil {
			return err
		}
		p.confWatcher = cf
	}

	return nil
}

func (p *Core) closeResources(newConf *conf.Conf) {
	closeLogger := newConf == nil ||
		newConf.LogLevel != p.conf.LogLevel ||
		!reflect.DeepEqual(newConf.LogDestinations, p.conf.LogDestinations) ||
		newConf.LogFile != p.conf.LogFile

	closeSession := newConf == nil ||
		newConf.MaxConcurrent != p.conf.MaxConcurrent ||
		newConf.MaxTransfer != p.conf.MaxTransfer ||
		newConf.GOPCache != p.conf.GOPCache ||
		closeLogger

	closeAuthManager := newConf == nil ||
		newConf.PublishUser != p.conf.PublishUser ||
		newConf.PublishPass != p.conf.PublishPass ||
		newConf.ReadUser != p.conf.ReadUser ||
		newConf.ReadPass != p.conf.ReadPass ||
		newConf.AuthJWTJWKS != p.conf.AuthJWTJWKS ||
		newConf.AuthJWTClaimKey != p.conf.AuthJWTClaimKey ||
		newConf.ReadTimeout != p.conf.ReadTimeout

	closeRTMPServer := newConf == nil ||
		newConf.RTMPAddress != p.conf.RTMPAddress ||
		newConf.ReadTimeout != p.conf.ReadTimeout ||
		newConf.WriteTimeout != p.conf.WriteTimeout ||
		newConf.WriteQueueSize != p.conf.WriteQueueSize ||
		newConf.ChunkSize != p.conf.ChunkSize ||
		newConf.WindowAckSize != p.conf.WindowAckSize ||
		newConf.PeerBandwidth != p.conf.PeerBandwidth ||
		newConf.PingPeriod != p.conf.PingPeriod ||
		newConf.WaitIntra != p.conf.WaitIntra ||
		newConf.RewriteTimestamps != p.conf.RewriteTimestamps ||
		newConf.RunOnPublish != p.conf.RunOnPublish ||
		newConf.RunOnPublishRestart != p.conf.RunOnPublishRestart ||
		newConf.RunOnRead != p.conf.RunOnRead ||
		!reflect.DeepEqual(newConf.Transmitters, p.conf.Transmitters) ||
		closeAuthManager ||
		closeSession

	closeAPI := newConf == nil ||
		newConf.API != p.conf.API ||
		newConf.APIAddress != p.conf.APIAddress ||
		newConf.ReadTimeout != p.conf.ReadTimeout ||
		newConf.WriteTimeout != p.conf.WriteTimeout ||
		closeRTMPServer

	closeMetrics := newConf == nil ||
		newConf.Metrics != p.conf.Metrics ||
		newConf.MetricsAddress != p.conf.MetricsAddress ||
		newConf.ReadTimeout != p.conf.ReadTimeout ||
		newConf.WriteTimeout != p.conf.WriteTimeout ||
		closeRTMPServer

	closePPROF := newConf == nil ||
		newConf.PPROF != p.conf.PPROF ||
		newConf.PPROFAddress != p.conf.PPROFAddress ||
		newConf.ReadTimeout != p.conf.ReadTimeout ||
		newConf.WriteTimeout != p.conf.WriteTimeout ||
		closeLogger

	if newConf == nil && p.confWatcher != nil {
		p.confWatcher.Close()
		p.confWatcher = nil
	}

	if closePPROF && p.pprof != nil {
		p.pprof.Close()
		p.pprof = nil
	}

	if closeMetrics && p.metrics != nil {
		p.metrics.Close()
		p.metrics = nil
	}

	if closeAPI && p.api != nil {
		p.api.Close()
		p.api = nil
	}

	if closeRTMPServer && p.rtmpServer != nil {
		p.rtmpServer.Close()
		p.rtmpServer = nil
	}

	if closeAuthManager && p.authManager != nil {
		p.authManager = nil
	}

	if closeSession && p.session != nil {
		p.session.Close()
		p.session = nil
	}

	if newConf == nil && p.externalCmdPool != nil {
		p.Log(logger.Info, "waiting for running hooks")
		p.externalCmdPool.Close()
		p.externalCmdPool = nil
	}

	if closeLogger && p.logger != nil {
		p.logger.Close()
		p.logger = nil
	}
}

func (p *Core) reloadConf(newConf *conf.Conf) error {
	p.closeResources(newConf)
	p.conf = newConf
	return p.createResources(false)
}
