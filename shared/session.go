package shared

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/shared/schema"
)

// SessionStatus represents the current state of a session.
type SessionStatus int

const (
	StatusNew SessionStatus = iota
	StatusConnecting
	StatusConnected
)

// ISession is the server-side view of one client connection.
type ISession interface {
	GetID() string

	AcquireOutput() (<-chan *Message, bool)
	ReleaseOutput()
	Input() *Input

	SendResponse(msgId *schema.RequestID, result interface{}, err error)
	SendNotification(method string, params interface{})

	SetNegotiatedVersion(version string)
	GetNegotiatedVersion() string

	GetLastActivity() time.Time
	UpdateLastActivity()

	GetStatus() SessionStatus
	SetStatus(status SessionStatus)
	Close() error

	Inflight() *InflightRegistry
	GetParams() *sync.Map
	GetLogger() *zap.Logger
}

var _ ISession = (*BaseSession)(nil)

// BaseSession provides the common session fields and output plumbing.
type BaseSession struct {
	Mu                sync.RWMutex
	ID                string
	CreatedAt         time.Time
	LastActivity      atomic.Value
	status            SessionStatus
	Params            *sync.Map
	inflight          *InflightRegistry
	output            chan *Message
	isOutputAcquired  bool
	Logger            *zap.Logger
	negotiatedVersion string
	inputProcessor    *Input
}

const sessionOutputBuffer = 100

// NewBaseSession creates a new session with a freshly generated id.
func NewBaseSession(logger *zap.Logger, inputProcessor *Input, params *sync.Map) *BaseSession {
	if params == nil {
		params = &sync.Map{}
	}
	sessionID := RandomID()
	sessionLogger := logger.With(zap.String("sessionID", sessionID))
	sessionLogger.Debug("Creating new session")
	s := &BaseSession{
		Logger:         sessionLogger,
		ID:             sessionID,
		CreatedAt:      time.Now(),
		status:         StatusNew,
		Params:         params,
		inflight:       NewInflightRegistry(sessionLogger),
		output:         make(chan *Message, sessionOutputBuffer),
		inputProcessor: inputProcessor,
	}
	s.UpdateLastActivity()
	return s
}

// RandomID returns 32 random bytes base64url-encoded, sufficiently
// unguessable to serve as a session identifier.
func RandomID() string {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	return base64.URLEncoding.EncodeToString(key)
}

// GetID returns the unique session identifier.
func (s *BaseSession) GetID() string {
	return s.ID
}

func (s *BaseSession) GetParams() *sync.Map {
	return s.Params
}

// GetStatus returns the current status of the session.
func (s *BaseSession) GetStatus() SessionStatus {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.status
}

// SetStatus updates the status of the session.
func (s *BaseSession) SetStatus(status SessionStatus) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.status = status
}

// UpdateLastActivity refreshes the last activity timestamp.
func (s *BaseSession) UpdateLastActivity() {
	s.LastActivity.Store(time.Now())
}

func (s *BaseSession) GetLastActivity() time.Time {
	return s.LastActivity.Load().(time.Time)
}

// Inflight returns the in-flight request registry of this session.
func (s *BaseSession) Inflight() *InflightRegistry {
	return s.inflight
}

// Close cancels every in-flight request and closes the output channel.
func (s *BaseSession) Close() error {
	s.inflight.CancelAll(ErrSessionClosed)

	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.status = StatusNew
	if s.output == nil {
		s.Logger.Error("Double close of session")
		return nil
	}
	close(s.output)
	s.isOutputAcquired = false
	s.output = nil
	return nil
}

// ErrSessionClosed is the cancellation cause used when a session is torn down.
var ErrSessionClosed = &JSONRPCError{Code: JSONRPCErrorServerError, Message: ErrMsgSessionInvalid}

// AcquireOutput hands the output channel to exactly one consumer at a time.
func (s *BaseSession) AcquireOutput() (<-chan *Message, bool) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.isOutputAcquired || s.output == nil {
		s.Logger.Debug("Output channel is not available",
			zap.Bool("outputAcquired", s.isOutputAcquired),
			zap.Bool("outputIsNil", s.output == nil),
		)
		return nil, false
	}
	s.isOutputAcquired = true
	return s.output, true
}

func (s *BaseSession) ReleaseOutput() {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.isOutputAcquired = false
}

// SetNegotiatedVersion stores the protocol version agreed upon during initialization.
func (s *BaseSession) SetNegotiatedVersion(version string) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.negotiatedVersion = version
}

// GetNegotiatedVersion retrieves the negotiated protocol version for the session.
func (s *BaseSession) GetNegotiatedVersion() string {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.negotiatedVersion
}

// SendNotification sends a notification (a message without an id) to the
// output channel. The params value must be JSON-serializable.
func (s *BaseSession) SendNotification(method string, params interface{}) {
	var jsonParams *json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			s.Logger.Error("failed to marshal notification params", zap.Error(err))
			return
		}
		raw := json.RawMessage(data)
		jsonParams = &raw
	}

	s.Mu.RLock()
	outputChan := s.output
	s.Mu.RUnlock()

	if outputChan == nil {
		s.Logger.Warn("Cannot send notification, session closed", zap.String("method", method))
		return
	}

	s.UpdateLastActivity()
	select {
	case outputChan <- &Message{
		Session:   s,
		Timestamp: time.Now(),
		Method:    &method,
		Params:    jsonParams,
	}:
	default:
		s.Logger.Error("Failed to send notification, output channel full", zap.String("method", method))
	}
}

// SendResponse sends a terminal response to the output channel (thread-safe).
// Go errors are converted to JSON-RPC error objects.
func (s *BaseSession) SendResponse(msgId *schema.RequestID, result interface{}, err error) {
	if result == nil && err == nil {
		s.Logger.Error("SendResponse called with nil result and nil error", zap.Any("msgId", msgId))
		return
	}

	var jsonResult *json.RawMessage
	var jsonRpcError *JSONRPCError

	if err != nil {
		jsonRpcError = NewJSONRPCError(err)
	} else {
		data, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			s.Logger.Error("Failed to marshal response result", zap.Error(marshalErr), zap.Any("msgId", msgId))
			jsonRpcError = &JSONRPCError{
				Code:    JSONRPCErrorInternal,
				Message: "Failed to marshal result",
				Data:    marshalErr.Error(),
			}
		} else {
			raw := json.RawMessage(data)
			jsonResult = &raw
		}
	}

	msg := &Message{
		Session:   s,
		Timestamp: time.Now(),
		ID:        msgId,
		Result:    jsonResult,
		Error:     jsonRpcError,
	}

	s.Mu.RLock()
	outputChan := s.output
	s.Mu.RUnlock()

	if outputChan == nil {
		s.Logger.Warn("Cannot send response, session closed", zap.Any("msgId", msgId))
		return
	}

	select {
	case outputChan <- msg:
		s.UpdateLastActivity()
	default:
		s.Logger.Error("Failed to send response, output channel full", zap.Any("msgId", msgId))
	}
}

func (s *BaseSession) Input() *Input {
	return s.inputProcessor
}

func (s *BaseSession) GetLogger() *zap.Logger {
	return s.Logger
}
