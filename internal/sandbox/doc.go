/*
Package sandbox runs extension bundles in isolated goja runtimes.

# Overview

Each extension gets its own runtime with a single loop goroutine. Every
piece of extension code runs as a job on that loop under a watchdog, so a sandbox never touches the VM
from two goroutines and a runaway script is interrupted after
ScriptTimeout.

Two kinds share one contract:

  - worker: the bundle is evaluated as a script with no document global
  - iframe: the payload is an HTML document; the bridge bootstrap is
    injected as the first element of head, then the inline scripts run
    in document order against a DOM proxy backed by goquery

# Bridge

The embedded bootstrap defines the openldr SDK and talks to the host with
JSON envelopes. Calls that expect a result carry an id and open a future
in the sandbox's correlator; the host's reply, a Timeout or a Disposed
rejection settles it and is delivered back on the loop.

# Security Model

Sandboxed code cannot:
  - Access filesystem or network directly
  - Reach require, process or eval
  - Block the host; output is a buffered channel and jobs are bounded

Uncaught exceptions and watchdog interrupts surface as Message.Fault with
kind RuntimeFault.

# Usage Example

	adapter := sandbox.NewAdapter(sandbox.DefaultConfig(), logger, metrics)
	h, err := adapter.Start(ctx, manifest, payload, sandbox.BridgeInit{ExtID: manifest.ID})
	if err != nil {
		return err
	}
	defer adapter.Stop(h)

	for msg := range h.Messages() {
		// dispatch msg.Data, post replies with h.Post
	}
*/
package sandbox
