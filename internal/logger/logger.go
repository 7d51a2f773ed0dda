// Package logger builds the zap loggers used by the beatset binaries.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects where logs go and how verbose they are.
type Config struct {
	// Path is stderr, stdout, /dev/null or a file path.
	Path string `json:"path" yaml:"path"`
	// Mode applies when Path is a file. FileModeAppend is the default.
	Mode    FileMode      `json:"mode,omitempty" yaml:"mode,omitempty"`
	Level   zapcore.Level `json:"level" yaml:"level"`
	DevMode bool          `json:"devmode" yaml:"devmode"`
}

// DefaultConfig logs at info level to stderr.
func DefaultConfig() Config {
	return Config{Path: "stderr", Mode: FileModeAppend, Level: zapcore.InfoLevel}
}

// New returns a JSON logger writing to conf.Path.
func New(conf Config) (*zap.Logger, error) {
	if conf.Path == "" {
		conf.Path = "stderr"
	}
	w, err := OpenFile(conf.Path, conf.Mode)
	if err != nil {
		return nil, err
	}
	encConf := zap.NewProductionEncoderConfig()
	encConf.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encConf), w, conf.Level)
	opts := []zap.Option{zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if conf.DevMode {
		opts = append(opts, zap.Development(), zap.AddCaller())
	}
	return zap.New(core, opts...), nil
}

// FileMode controls how an existing log file is treated.
type FileMode string

const (
	// FileModeAppend appends to an existing log file.
	FileModeAppend FileMode = "append"
	// FileModeTruncate truncates an existing log file.
	FileModeTruncate FileMode = "truncate"
	// FileModeRotate rotates log files by size.
	FileModeRotate FileMode = "rotate"
)

// Set implements flag.Value.
func (m *FileMode) Set(s string) error {
	switch FileMode(s) {
	case FileModeAppend, "":
		*m = FileModeAppend
	case FileModeTruncate:
		*m = FileModeTruncate
	case FileModeRotate:
		*m = FileModeRotate
	default:
		return fmt.Errorf("invalid log file mode: %s", s)
	}
	return nil
}

func (m FileMode) String() string {
	return string(m)
}

// OpenFile returns a WriteSyncer for path.
func OpenFile(path string, mode FileMode) (zapcore.WriteSyncer, error) {
	switch path {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	case "/dev/null":
		return zapcore.AddSync(io.Discard), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	switch mode {
	case FileModeRotate:
		// lumberjack serializes its own writes
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    5, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}), nil
	case FileModeTruncate:
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
		if err != nil {
			return nil, err
		}
		return zapcore.Lock(f), nil
	default:
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return nil, err
		}
		return zapcore.Lock(f), nil
	}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
