// Package session implements the master-side worker session of spec §4.3
// (component C3): a synchronous handle to one remote worker that opens a
// fresh socket per call, sends a request, and optionally waits for a reply.
package session

import (
	"fmt"

	"github.com/nidzo732/fleetwork/pkg/log"
	"github.com/nidzo732/fleetwork/pkg/protocol"
	"github.com/nidzo732/fleetwork/pkg/types"
	"github.com/nidzo732/fleetwork/pkg/wire"
)

// DeadWorkerError is raised when any outbound request to a worker fails
// with a transport error. It carries the worker id so the dispatcher can
// translate it into a WORKER_DIED follow-up (spec §4.5).
type DeadWorkerError struct {
	WorkerID types.WorkerID
	Cause    error
}

func (e *DeadWorkerError) Error() string {
	return fmt.Sprintf("session: worker %d is dead: %v", e.WorkerID, e.Cause)
}

func (e *DeadWorkerError) Unwrap() error { return e.Cause }

// Session is a synchronous handle to one remote worker. It does not retry
// on failure — spec §4.3 makes retry/salvage the dispatcher's
// responsibility, not the session's.
type Session struct {
	workerID types.WorkerID
	addr     string
	wireCfg  *wire.Config
}

// New builds a session addressed at addr for worker id, using wireCfg's
// security variant for every socket it opens.
func New(workerID types.WorkerID, addr string, wireCfg *wire.Config) *Session {
	return &Session{workerID: workerID, addr: addr, wireCfg: wireCfg}
}

// SendRequest connects, sends kind/body, waits for and discards the reply,
// then closes the socket (spec §4.3 "sendRequest").
func (s *Session) SendRequest(kind protocol.Kind, body protocol.Body) error {
	_, err := s.call(kind, body)
	return err
}

// SendRequestWithResponse is SendRequest but returns the decoded reply
// (spec §4.3 "sendRequestWithResponse").
func (s *Session) SendRequestWithResponse(kind protocol.Kind, body protocol.Body) (*protocol.Response, error) {
	return s.call(kind, body)
}

func (s *Session) call(kind protocol.Kind, body protocol.Body) (*protocol.Response, error) {
	logger := log.WithWorkerID(int(s.workerID))

	conn, err := wire.Dial(s.addr, s.wireCfg)
	if err != nil {
		logger.Debug().Err(err).Str("kind", string(kind)).Msg("dial failed, marking worker dead")
		return nil, &DeadWorkerError{WorkerID: s.workerID, Cause: err}
	}
	defer conn.Close()

	payload, err := protocol.EncodeMessage(kind, body)
	if err != nil {
		return nil, fmt.Errorf("session: encode request: %w", err)
	}
	if err := conn.Send(payload); err != nil {
		logger.Debug().Err(err).Str("kind", string(kind)).Msg("send failed, marking worker dead")
		return nil, &DeadWorkerError{WorkerID: s.workerID, Cause: err}
	}

	raw, err := conn.Receive()
	if err != nil {
		logger.Debug().Err(err).Str("kind", string(kind)).Msg("receive failed, marking worker dead")
		return nil, &DeadWorkerError{WorkerID: s.workerID, Cause: err}
	}
	resp, err := protocol.DecodeResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("session: decode response: %w", err)
	}
	return resp, nil
}
