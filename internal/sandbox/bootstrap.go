package sandbox

import (
	_ "embed"
	"sync"

	"github.com/dop251/goja"
)

// bootstrapSource defines the openldr SDK inside a sandbox. It expects
// __extId, __kind and __post on the global object and leaves __receive and
// __activate behind for the host to collect.
//
//go:embed bootstrap.js
var bootstrapSource string

var (
	bootstrapOnce sync.Once
	bootstrapProg *goja.Program
	bootstrapErr  error
)

func bootstrapProgram() (*goja.Program, error) {
	bootstrapOnce.Do(func() {
		bootstrapProg, bootstrapErr = goja.Compile("openldr-bridge.js", bootstrapSource, false)
	})
	return bootstrapProg, bootstrapErr
}
