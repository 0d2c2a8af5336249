// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/bluenviron/rtmpcast/internal/conf/decrypt"
	"github.com/bluenviron/rtmpcast/internal/conf/env"
	"github.com/bluenviron/rtmpcast/internal/conf/yamlwrapper"
	"github.com/bluenviron/rtmpcast/internal/logger"
)

const (
	minChunkSize = 128
	maxChunkSize = 0xFFFFFF
)

func firstThatExists(paths []string) string {
	for _, pa := range paths {
		_, err := os.Stat(pa)
		if err == nil {
			return pa
		}
	}
	return ""
}

// Conf is a configuration.
type Conf struct {
	// General
	LogLevel        LogLevel        `json:"logLevel"`
	LogDestinations LogDestinations `json:"logDestinations"`
	LogFile         string          `json:"logFile"`
	ReadTimeout     Duration        `json:"readTimeout"`
	WriteTimeout    Duration        `json:"writeTimeout"`
	WriteQueueSize  int             `json:"writeQueueSize"`

	// API
	API        bool   `json:"api"`
	APIAddress string `json:"apiAddress"`

	// Metrics
	Metrics        bool   `json:"metrics"`
	MetricsAddress string `json:"metricsAddress"`

	// PPROF
	PPROF        bool   `json:"pprof"`
	PPROFAddress string `json:"pprofAddress"`

	// RTMP server
	RTMPAddress       string     `json:"rtmpAddress"`
	ChunkSize         uint32     `json:"chunkSize"`
	WindowAckSize     uint32     `json:"windowAckSize"`
	PeerBandwidth     uint32     `json:"peerBandwidth"`
	PingPeriod        Duration   `json:"pingPeriod"`
	WaitIntra         bool       `json:"waitIntra"`
	RewriteTimestamps bool       `json:"rewriteTimestamps"`
	GOPCache          bool       `json:"gopCache"`
	MaxConcurrent     int        `json:"maxConcurrent"`
	MaxTransfer       StringSize `json:"maxTransfer"`

	// Authentication
	PublishUser Credential `json:"publishUser"`
	PublishPass Credential `json:"publishPass"`
	ReadUser    Credential `json:"readUser"`
	ReadPass    Credential `json:"readPass"`

	AuthJWTJWKS     string `json:"authJWTJWKS"`
	AuthJWTClaimKey string `json:"authJWTClaimKey"`

	// Hooks
	RunOnPublish        string `json:"runOnPublish"`
	RunOnPublishRestart bool   `json:"runOnPublishRestart"`
	RunOnRead           string `json:"runOnRead"`

	// Transmitters
	Transmitters []string `json:"transmitters"`
}

func (conf *Conf) setDefaults() {
	// General
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{logger.DestinationStdout}
	conf.LogFile = "rtmpcast.log"
	conf.ReadTimeout = Duration(10 * time.Second)
	conf.WriteTimeout = Duration(10 * time.Second)
	conf.WriteQueueSize = 512

	// API
	conf.APIAddress = "127.0.0.1:9997"

	// Metrics
	conf.MetricsAddress = "127.0.0.1:9998"

	// Authentication
	conf.AuthJWTClaimKey = "rtmpcast_permissions"

	// PPROF
	conf.PPROFAddress = "127.0.0.1:9999"

	// RTMP server
	conf.RTMPAddress = ":1935"
	conf.ChunkSize = 4096
	conf.WindowAckSize = 2500000
	conf.PeerBandwidth = 2500000
	conf.PingPeriod = Duration(30 * time.Second)
	conf.RewriteTimestamps = true
	conf.GOPCache = true
	conf.Transmitters = []string{}
}

// Load loads a Conf.
// When fpath is empty, the first existing path of defaultConfPaths is used;
// if none exists, the file is optional.
func Load(fpath string, defaultConfPaths []string) (*Conf, string, error) {
	conf := &Conf{}

	fpath, err := conf.loadFromFile(fpath, defaultConfPaths)
	if err != nil {
		return nil, "", err
	}

	err = env.Load("RTC", conf)
	if err != nil {
		return nil, "", err
	}

	err = conf.Validate()
	if err != nil {
		return nil, "", err
	}

	return conf, fpath, nil
}

func (conf *Conf) loadFromFile(fpath string, defaultConfPaths []string) (string, error) {
	conf.setDefaults()

	if fpath == "" {
		fpath = firstThatExists(defaultConfPaths)
		if fpath == "" {
			return "", nil
		}
	}

	byts, err := os.ReadFile(fpath)
	if err != nil {
		return "", err
	}

	if key, ok := os.LookupEnv("RTC_CONFKEY"); ok {
		byts, err = decrypt.Decrypt(key, byts)
		if err != nil {
			return "", err
		}
	}

	err = yamlwrapper.Unmarshal(byts, conf)
	if err != nil {
		return "", err
	}

	return fpath, nil
}

// Clone clones the configuration.
func (conf Conf) Clone() *Conf {
	enc, err := json.Marshal(conf)
	if err != nil {
		panic(err)
	}

	var dest Conf
	err = json.Unmarshal(enc, &dest)
	if err != nil {
		panic(err)
	}

	return &dest
}

// Validate checks the configuration for errors.
func (conf *Conf) Validate() error {
	// General

	if slices.Contains(conf.LogDestinations, logger.DestinationFile) && conf.LogFile == "" {
		return fmt.Errorf("'logFile' is required when 'file' is a log destination")
	}
	if conf.ReadTimeout <= 0 {
		return fmt.Errorf("'readTimeout' must be greater than zero")
	}
	if conf.WriteTimeout <= 0 {
		return fmt.Errorf("'writeTimeout' must be greater than zero")
	}
	if conf.WriteQueueSize <= 0 || (conf.WriteQueueSize&(conf.WriteQueueSize-1)) != 0 {
		return fmt.Errorf("'writeQueueSize' must be a power of two")
	}

	// API

	if conf.API && conf.APIAddress == "" {
		return fmt.Errorf("'apiAddress' is required when the API is enabled")
	}

	// Metrics

	if conf.Metrics && conf.MetricsAddress == "" {
		return fmt.Errorf("'metricsAddress' is required when metrics are enabled")
	}

	// PPROF

	if conf.PPROF && conf.PPROFAddress == "" {
		return fmt.Errorf("'pprofAddress' is required when pprof is enabled")
	}

	// RTMP server

	if conf.RTMPAddress == "" {
		return fmt.Errorf("'rtmpAddress' is required")
	}
	if conf.ChunkSize < minChunkSize || conf.ChunkSize > maxChunkSize {
		return fmt.Errorf("'chunkSize' must be between %d and %d", minChunkSize, maxChunkSize)
	}
	if conf.WindowAckSize == 0 {
		return fmt.Errorf("'windowAckSize' must be greater than zero")
	}
	if conf.PeerBandwidth == 0 {
		return fmt.Errorf("'peerBandwidth' must be greater than zero")
	}
	if conf.PingPeriod < 0 {
		return fmt.Errorf("'pingPeriod' must not be negative")
	}
	if conf.MaxConcurrent < 0 {
		return fmt.Errorf("'maxConcurrent' must not be negative")
	}

	// Authentication

	if conf.PublishUser.IsEmpty() != conf.PublishPass.IsEmpty() {
		return fmt.Errorf("'publishUser' and 'publishPass' must be both filled or both empty")
	}
	if conf.ReadUser.IsEmpty() != conf.ReadPass.IsEmpty() {
		return fmt.Errorf("'readUser' and 'readPass' must be both filled or both empty")
	}

	if conf.AuthJWTJWKS != "" {
		if !conf.PublishUser.IsEmpty() || !conf.ReadUser.IsEmpty() {
			return fmt.Errorf("'authJWTJWKS' cannot be used together with 'publishUser' or 'readUser'")
		}
		u, err := url.Parse(conf.AuthJWTJWKS)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("'authJWTJWKS' must be a HTTP URL")
		}
		if conf.AuthJWTClaimKey == "" {
			return fmt.Errorf("'authJWTClaimKey' is required when 'authJWTJWKS' is set")
		}
	}

	// Hooks

	if conf.RunOnPublishRestart && conf.RunOnPublish == "" {
		return fmt.Errorf("'runOnPublishRestart' requires 'runOnPublish'")
	}

	// Transmitters

	for _, t := range conf.Transmitters {
		u, err := url.Parse(t)
		if err != nil {
			return fmt.Errorf("invalid transmitter '%s': %w", t, err)
		}
		if u.Scheme != "rtmp" || u.Host == "" {
			return fmt.Errorf("invalid transmitter '%s': must be a rtmp:// URL", t)
		}
		if u.Path == "" || u.Path == "/" {
			return fmt.Errorf("invalid transmitter '%s': application is missing", t)
		}
	}

	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (conf *Conf) UnmarshalJSON(b []byte) error {
	conf.setDefaults()

	type alias Conf
	d := json.NewDecoder(bytes.NewReader(b))
	d.DisallowUnknownFields()
	return d.Decode((*alias)(conf))
}
