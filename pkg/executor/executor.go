package executor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/nidzo732/fleetwork/pkg/log"
	"github.com/nidzo732/fleetwork/pkg/types"
)

// ChildEnvVar, when set to "1" in the process environment, tells a
// fleetwork worker binary to become a task runner (RunChild) instead of
// starting its normal server loop. Execution sets this on every child
// process it spawns.
const ChildEnvVar = "FLEETWORK_TASK_RUNNER"

type childRequest struct {
	Target string
	Args   []any
	Kwargs map[string]any
}

type childResponse struct {
	Result          any
	Exception       any
	ExceptionRaised bool
}

// Execution owns one task's OS process and the shared status block the
// session handlers read from (spec §3 "Task-execution record"). The
// block is written only by the goroutine draining the child's stdout and
// read by whatever calls Running/Done/Result/Exception/ExceptionRaised.
//
// Stdin/stdout stay open for the process's whole lifetime rather than
// closing after one round trip: a task may interleave any number of
// primitive calls (dispatchCall, relayed through relay) with its single
// final result (spec §4.7's "as if they lived in one address space").
type Execution struct {
	mu     sync.Mutex
	status types.ExecutionStatus

	cmd        *exec.Cmd
	stdin      io.WriteCloser
	terminated atomic.Bool
	done       chan struct{}
}

// Start spawns a fresh OS process to run task, begins draining its result
// in the background, and relays any primitive call the task issues to
// relay (spec §4.4 steps 1-5; spec §4.7 primitive access). relay may be
// nil for a deployment with no coordination primitives in use; a task
// that then attempts one fails with an explicit error instead of
// deadlocking.
func Start(task *types.Task, relay PrimitiveClient) (*Execution, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("executor: resolve worker binary: %w", err)
	}

	cmd := exec.Command(exePath)
	cmd.Env = append(os.Environ(), ChildEnvVar+"=1")
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("executor: start task process: %w", err)
	}

	e := &Execution{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	e.status.Running = true

	taskReq := childRequest{Target: task.Target, Args: task.Args, Kwargs: task.Kwargs}
	if err := sendEnvelope(stdin, envelope{Kind: ipcTask, Task: &taskReq}); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("executor: send task request: %w", err)
	}

	go e.drain(task.ID, stdout, relay)

	return e, nil
}

// drain reads envelopes from the child's stdout until it sees ipcDone or
// the pipe closes, relaying every ipcCall to relay and writing its
// response back over stdin before reading the next frame (spec §4.7: a
// task blocks on its own primitive call, so only one is ever in flight
// per task at a time).
func (e *Execution) drain(taskID types.TaskID, stdout io.Reader, relay PrimitiveClient) {
	logger := log.WithTaskID(int(taskID))
	defer close(e.done)

	var final *childResponse
	var ipcErr error

loop:
	for {
		env, err := recvEnvelope(stdout)
		if err != nil {
			ipcErr = err
			break loop
		}
		switch env.Kind {
		case ipcCall:
			resp := dispatchCall(relay, env.Call)
			if werr := sendEnvelope(e.stdin, envelope{Kind: ipcReply, Reply: resp}); werr != nil {
				ipcErr = werr
				break loop
			}
		case ipcDone:
			final = env.Done
			break loop
		default:
			ipcErr = fmt.Errorf("executor: unexpected ipc frame %q from task process", env.Kind)
			break loop
		}
	}

	_ = e.stdin.Close()
	waitErr := e.cmd.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Running = false

	if e.terminated.Load() {
		// Killed on purpose via Terminate; spec §4.4 only requires
		// running to flip false, not done/result/exception.
		return
	}

	if final == nil {
		e.status.Done = true
		e.status.ExceptionRaised = true
		e.status.Exception = fmt.Sprintf("task process failed: ipc=%v wait=%v", ipcErr, waitErr)
		logger.Warn().Err(waitErr).Msg("task process exited abnormally")
		return
	}

	e.status.Done = true
	e.status.Result = final.Result
	e.status.Exception = final.Exception
	e.status.ExceptionRaised = final.ExceptionRaised
}

// Wait returns a channel closed once the execution has finished (result,
// exception, or terminated), for a handler that must block until a task's
// outcome is known (spec §4.8 "getResult"/"getException" block).
func (e *Execution) Wait() <-chan struct{} {
	return e.done
}

// Running reports whether the task's process is still executing (spec
// §4.4 "taskRunning").
func (e *Execution) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.Running
}

// Done reports whether the executor has finished and the result slot is
// now meaningful (spec §4.4 "A result is meaningful only once done is
// observed").
func (e *Execution) Done() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.Done
}

// Result returns the task's return value (spec §4.4 "getResult").
func (e *Execution) Result() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.Result
}

// Exception returns the task's captured exception, if any (spec §4.4
// "getException").
func (e *Execution) Exception() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.Exception
}

// ExceptionRaised reports whether the task raised (spec §4.4
// "exceptionRaised").
func (e *Execution) ExceptionRaised() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.ExceptionRaised
}

// Terminate kills the task's process and marks it no longer running
// (spec §4.4 "terminate"). It does not mark the task done; there is no
// result to retrieve after a terminate.
func (e *Execution) Terminate() error {
	e.terminated.Store(true)
	e.mu.Lock()
	e.status.Running = false
	e.mu.Unlock()
	if e.cmd.Process == nil {
		return nil
	}
	return e.cmd.Process.Kill()
}

// RunChild is the entry point a worker binary switches to when
// ChildEnvVar is set: read the task request envelope, invoke it against
// Default with a PrimitiveClient bound to this same pipe, and write the
// final result envelope back (spec §4.4 steps 1-4; spec §4.7 primitive
// access). It never touches the network directly — every primitive call
// is relayed through the parent worker process that spawned it.
func RunChild(stdin io.Reader, stdout io.Writer) error {
	env, err := recvEnvelope(stdin)
	if err != nil {
		return fmt.Errorf("executor: read task request: %w", err)
	}
	if env.Kind != ipcTask || env.Task == nil {
		return fmt.Errorf("executor: expected task request, got %q", env.Kind)
	}

	client := &pipeClient{in: stdin, out: stdout}
	resp := invoke(*env.Task, client)

	return sendEnvelope(stdout, envelope{Kind: ipcDone, Done: &resp})
}

// invoke runs req's target, capturing a panic the same way spec §4.4
// step 3 captures a BaseException: into the exception slot, never
// silently discarded.
func invoke(req childRequest, client PrimitiveClient) childResponse {
	fn, ok := Default.Lookup(req.Target)
	if !ok {
		return childResponse{Exception: fmt.Sprintf("executor: unregistered task target %q", req.Target), ExceptionRaised: true}
	}

	var resp childResponse
	func() {
		defer func() {
			if r := recover(); r != nil {
				resp = childResponse{Exception: fmt.Sprintf("%v", r), ExceptionRaised: true}
			}
		}()
		result, err := fn(req.Args, req.Kwargs, client)
		if err != nil {
			resp = childResponse{Exception: err.Error(), ExceptionRaised: true}
			return
		}
		resp = childResponse{Result: result}
	}()
	return resp
}
