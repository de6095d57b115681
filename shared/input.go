package shared

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/shared/schema"
)

// Input validates inbound messages and dispatches them to method handlers.
// Each message is processed in its own goroutine; the terminal response is
// sent through the originating session's output channel.
type Input struct {
	Mu             sync.RWMutex
	input          chan *Message
	logger         *zap.Logger
	validators     []MessageValidator
	methodHandlers sync.Map // method name -> MethodHandler
	capabilities   []ICapability
	observer       DispatchObserver
}

// DispatchObserver is invoked once per dispatched message, after the handler
// returns. Used to feed metrics without coupling this package to a backend.
type DispatchObserver func(method string, failed bool, elapsed time.Duration)

const inputQueueBuffer = 100

func NewInput(logger *zap.Logger) *Input {
	return &Input{
		validators: []MessageValidator{},
		logger:     logger,
	}
}

// MessageValidator inspects an inbound message before it is queued.
type MessageValidator interface {
	Validate(*Message) error
}

// Put validates and enqueues a message for processing.
func (i *Input) Put(msg *Message) error {
	i.Mu.RLock()
	copyOfValidators := make([]MessageValidator, len(i.validators))
	copy(copyOfValidators, i.validators)
	input := i.input
	i.Mu.RUnlock()

	for _, validator := range copyOfValidators {
		if err := validator.Validate(msg); err != nil {
			return err
		}
	}
	msg.Session.UpdateLastActivity()

	if input == nil {
		return errors.New("input processor not running")
	}

	select {
	case input <- msg:
		i.logger.Debug("Message queued",
			zap.String("sessionID", msg.Session.GetID()),
			zap.Any("messageID", msg.ID),
			zap.Stringp("method", msg.Method),
		)
	default:
		i.logger.Error("Input channel full, dropping message",
			zap.String("sessionID", msg.Session.GetID()),
			zap.Any("messageID", msg.ID),
			zap.Stringp("method", msg.Method),
		)
		if !msg.ID.IsEmpty() {
			go msg.Session.SendResponse(msg.ID, nil, errors.New("message processor busy, message dropped"))
		}
		return errors.New("input processor busy, input channel full")
	}
	return nil
}

// Process runs the dispatch loop until Stop closes the queue.
func (i *Input) Process() {
	i.logger.Debug("Input - message processing loop started")
	i.Mu.Lock()
	i.input = make(chan *Message, inputQueueBuffer)
	input := i.input
	i.Mu.Unlock()
	defer i.logger.Info("Input - message processing loop stopped")

	for msg := range input {
		if msg.Session == nil {
			i.logger.Error("Received message with nil session in processing queue")
			continue
		}
		logger := i.logger.With(zap.String("sessionID", msg.Session.GetID()))

		if msg.Method == nil && msg.ID.IsEmpty() {
			logger.Error("Received invalid message (no method or id)")
			continue
		}
		if msg.Method == nil {
			// A bare response frame: this server issues no client-bound
			// requests, so there is nothing to correlate it with.
			logger.Warn("Received unexpected response frame", zap.String("responseID", msg.ID.String()))
			continue
		}

		// Process each message in its own goroutine so a slow handler cannot
		// block the queue. The per-request ordering guarantee lives in the
		// progress sink, not here.
		go i.dispatch(msg, logger)
	}
}

// Stop closes the processing queue.
func (i *Input) Stop() {
	i.Mu.Lock()
	defer i.Mu.Unlock()
	if i.input != nil {
		close(i.input)
		i.input = nil
	}
}

func (i *Input) dispatch(msg *Message, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered during message processing", zap.Any("panic", r), zap.Any("msgId", msg.ID))
			if !msg.ID.IsEmpty() {
				msg.Session.SendResponse(msg.ID, nil, &JSONRPCError{
					Code:    JSONRPCErrorInternal,
					Message: "internal server error during processing",
					Data:    fmt.Sprint(r),
				})
			}
		}
	}()

	method := *msg.Method
	started := time.Now()
	handler, exists := i.getHandler(method)
	if !exists {
		logger.Error("Handler not found for method", zap.String("method", method))
		if !msg.ID.IsEmpty() {
			msg.Session.SendResponse(msg.ID, nil, &JSONRPCError{
				Code:    JSONRPCErrorMethodNotFound,
				Message: fmt.Sprintf("Method not found: %s", method),
			})
		}
		return
	}

	response, err := handler(msg)

	i.Mu.RLock()
	observer := i.observer
	i.Mu.RUnlock()
	if observer != nil {
		observer(method, err != nil, time.Since(started))
	}

	if !msg.ID.IsEmpty() && !isNotificationMethod(msg.Method) {
		// A handler that already delivered its terminal outcome through a
		// progress sink returns (nil, nil); sending again would violate the
		// one-terminal rule.
		if response != nil || err != nil {
			msg.Session.SendResponse(msg.ID, response, err)
		}
	} else if err != nil {
		logger.Error("Error handling notification", zap.String("method", method), zap.Error(err))
	}
	msg.Processed = true
}

func isNotificationMethod(method *string) bool {
	return method != nil && strings.HasPrefix(*method, "notifications/")
}

func (i *Input) getHandler(method string) (MethodHandler, bool) {
	handler, exists := i.methodHandlers.Load(method)
	if !exists {
		return nil, false
	}
	return handler.(MethodHandler), true
}

// SetObserver installs the dispatch observer. Pass nil to remove it.
func (i *Input) SetObserver(observer DispatchObserver) {
	i.Mu.Lock()
	defer i.Mu.Unlock()
	i.observer = observer
}

// AddValidator adds custom message validators.
func (i *Input) AddValidator(validators ...MessageValidator) {
	i.Mu.Lock()
	defer i.Mu.Unlock()
	i.validators = append(i.validators, validators...)
}

// AddCapability registers the handlers of one or more capabilities.
func (i *Input) AddCapability(capabilities ...ICapability) {
	for _, capability := range capabilities {
		i.capabilities = append(i.capabilities, capability)
		for method, handler := range capability.GetHandlers() {
			i.methodHandlers.Store(method, handler)
			i.logger.Debug("Registered handler from capability",
				zap.String("capability", fmt.Sprintf("%T", capability)),
				zap.String("method", method))
		}
	}
}

// ServerCapabilities collects the capability flags advertised on initialize.
func (i *Input) ServerCapabilities() schema.ServerCapabilities {
	var caps schema.ServerCapabilities
	for _, capability := range i.capabilities {
		capability.SetCapabilities(&caps)
	}
	return caps
}
