package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/server/mcp"
	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/config"
)

// ReadySentinel is printed on stdout once the stdio server is fully started,
// so test harnesses know when to begin sending traffic.
const ReadySentinel = "MCP_STDIO_SERVER_READY_FOR_TESTING"

// Stdio serves a single implicit session over newline-delimited JSON-RPC.
// Each inbound line must be a complete JSON object; lines that fail to parse
// are discarded with a log entry.
type Stdio struct {
	sessionManager mcp.ISessionManager
	logger         *zap.Logger
	config         *config.Config
	in             io.Reader
	out            io.Writer
}

// NewStdio creates the stdio transport over the given streams.
func NewStdio(sessionManager mcp.ISessionManager, cfg *config.Config, logger *zap.Logger, in io.Reader, out io.Writer) (*Stdio, error) {
	if sessionManager == nil {
		return nil, errors.New("session manager cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stdio{
		sessionManager: sessionManager,
		logger:         logger.Named("stdio"),
		config:         cfg,
		in:             in,
		out:            out,
	}, nil
}

// Serve runs the read loop until EOF on the input stream or ctx cancellation.
// The readiness sentinel is written once before any traffic is read.
func (s *Stdio) Serve(ctx context.Context) error {
	session := s.sessionManager.CreateSession(nil)
	defer s.sessionManager.CloseSession(session.GetID())

	output, ok := session.AcquireOutput()
	if !ok {
		return errors.New("failed to acquire session output channel")
	}
	defer session.ReleaseOutput()

	// One writer goroutine serializes all outbound frames.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-output:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				data, err := json.Marshal(msg)
				if err != nil {
					s.logger.Error("Failed to marshal outbound frame", zap.Error(err))
					continue
				}
				if _, err := fmt.Fprintf(s.out, "%s\n", data); err != nil {
					s.logger.Error("Failed to write outbound frame", zap.Error(err))
					return
				}
			}
		}
	}()

	if _, err := fmt.Fprintln(s.out, ReadySentinel); err != nil {
		return fmt.Errorf("failed to write readiness sentinel: %w", err)
	}
	s.logger.Info("Stdio server ready", zap.String("sessionID", session.GetID()))

	maxRequestSize := s.config.MaxRequestSize()
	reader := bufio.NewReader(s.in)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			s.handleLine(ctx, session, bytes.TrimSpace(line), maxRequestSize)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("Input stream closed")
				return nil
			}
			return fmt.Errorf("failed to read input stream: %w", err)
		}
	}
}

func (s *Stdio) handleLine(ctx context.Context, session shared.ISession, line []byte, maxRequestSize int64) {
	if len(line) == 0 {
		return
	}
	if int64(len(line)) > maxRequestSize {
		s.logger.Warn("Inbound line exceeds size limit", zap.Int("size", len(line)))
		session.SendResponse(nil, nil, shared.NewServerError(shared.ErrMsgPayloadTooLarge, nil))
		return
	}

	msgs, err := shared.ParseMessages(session, line)
	if err != nil {
		s.logger.Warn("Discarding unparseable input line", zap.Error(err))
		return
	}

	session.UpdateLastActivity()
	for _, msg := range msgs {
		msg.Session = session
		msg.Timestamp = time.Now()
		msg.Ctx = ctx

		if err := session.Input().Put(msg); err != nil {
			s.logger.Error("Failed to admit message", zap.Error(err), zap.Any("msgId", msg.ID))
		}
	}
}
