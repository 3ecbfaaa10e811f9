/*
Package types defines the core data structures shared across fleetwork's
master and worker processes.

This package contains the domain model described in spec §3: workers,
tasks, worker-side execution status blocks, and the identifiers used to
address them. These types are used by pkg/protocol for wire encoding, by
pkg/dispatch and pkg/coordination for master-side state, and by pkg/executor
on the worker side.

# Core Types

Worker identity and liveness:

	worker := &types.Worker{
		ID:   0,
		Addr: "10.0.0.5:32151",
		Live: true,
	}

Task placement:

	task := &types.Task{
		ID:     42,
		Target: "render_frame",
		Args:   []any{1, 2, 3},
		Worker: worker.ID,
	}

# Ownership

Worker and Task are owned by the dispatcher (pkg/dispatch); callers outside
the dispatcher goroutine must use Clone to obtain a snapshot rather than
mutate the live record directly, reinforcing invariants I1/I2 of spec §3.

# See Also

  - pkg/protocol for the wire envelope these types travel in
  - pkg/dispatch for the single-writer discipline over Worker/Task state
  - pkg/coordination for the primitive records built on top of PrimitiveID
*/
package types
