package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"studybot/internal/transport"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	OpsChat OpsChatConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// OpsChatConfig mirrors warnings and errors into the operators' chat.
type OpsChatConfig struct {
	Enabled    bool
	ChatID     int64
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// TextSender is the part of the transport adapter the ops sink needs.
type TextSender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// Service owns the sinks. Loggers derived from it follow Apply() changes.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	root atomic.Value // zerolog.Logger
	file *os.File

	sender  TextSender
	ops     *opsSink
	opsOnce sync.Once
}

// New applies cfg immediately and returns the service with its root logger.
// sender may be nil until the transport is built; see SetSender.
func New(cfg Config, sender TextSender) (*Service, Logger) {
	setGlobals()
	s := &Service{sender: sender}
	s.root.Store(consoleRoot(ParseLevel(cfg.Level, LevelInfo)))
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if zl, ok := s.root.Load().(zerolog.Logger); ok {
		return zl
	}
	return zerolog.Nop()
}

// SetSender attaches the transport used by the ops chat sink.
func (s *Service) SetSender(sender TextSender) {
	s.mu.Lock()
	s.sender = sender
	if s.ops != nil {
		s.ops.setSender(sender)
	}
	s.mu.Unlock()
}

// Apply swaps outputs and levels at runtime. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, consoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./studybot.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.OpsChat.Enabled {
		s.opsOnce.Do(func() {
			s.ops = newOpsSink(s.sender)
			s.ops.start()
		})
		s.ops.configure(cfg.OpsChat)
		writers = append(writers, s.ops)
		if cfg.OpsChat.ChatID == 0 {
			fmt.Fprintln(os.Stderr, "logx: ops chat logging enabled but telegram.ops_chat_id is not set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, consoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level, LevelInfo)).
		With().Timestamp().Logger()
	s.root.Store(zl)
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	ops := s.ops
	s.mu.Unlock()

	if ops != nil {
		ops.stop()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

func consoleRoot(lvl Level) zerolog.Logger {
	return zerolog.New(consoleWriter(os.Stdout)).Level(lvl).With().Timestamp().Logger()
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: timeFormat,
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}

// rate limiter shared by the ops sink; burst equals the per-second rate.
func newLimiter(rps int) *rate.Limiter {
	if rps < 1 {
		rps = 1
	}
	return rate.NewLimiter(rate.Limit(rps), rps)
}
