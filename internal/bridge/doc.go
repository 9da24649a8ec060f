/*
Package bridge implements the message protocol between a sandboxed extension
and the host.

Every message is an Envelope:

	{"direction":"out","extId":"lab.monitor","event":"data.query","args":["lab","requests",{}],"ts":12,"id":"c1"}

direction "out" is extension to host, "in" is host to extension and "host" is
an audit-only record that never crosses the boundary. Capability calls carry
positional args. A call that wants a result sets id; the reply reuses the
event and id with args {"result": ...} or {"error": {"code", "message"}}.

The Dispatcher is the single table every inbound message goes through. For a
capability call it checks the permission, validates the arguments, delegates
to the Host and logs the outcome, in that order. Malformed or unknown
messages are logged and dropped and never reach the Host.

The Correlator runs on the extension side of the boundary and matches
replies to pending calls, failing them with Timeout after the response
window or Disposed when the sandbox is torn down.
*/
package bridge
