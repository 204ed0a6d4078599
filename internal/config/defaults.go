package config

const (
	defaultUploadDir          = "~/.local/share/rendition/uploads"
	defaultOutputDir          = "~/.local/share/rendition/outputs"
	defaultLogDir             = "~/.local/share/rendition/logs"
	defaultAPIBind            = "127.0.0.1:7311"
	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 5
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultMaxUploadMiB       = 200
	defaultFFmpegBinary       = "ffmpeg"
	defaultEncodeTimeout      = 1800
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir: defaultUploadDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Ingest: Ingest{
			MaxUploadMiB: defaultMaxUploadMiB,
		},
		FFmpeg: FFmpeg{
			Binary:               defaultFFmpegBinary,
			EncodeTimeoutSeconds: defaultEncodeTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
