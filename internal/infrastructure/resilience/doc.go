/*
Package resilience provides the circuit breaker that guards every outbound
collaborator of the extension host: the registry, the install-state API and
the data capability backend.

An open breaker fails fast. During activation that surfaces as a FetchFailure;
for a data.query call it becomes a rejected reply to the extension, never a
blocked sandbox.

# Usage

	breaker := resilience.New("registry", resilience.Settings{
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker", zap.String("name", name), zap.Stringer("to", to))
		},
	})

	manifest, err := resilience.Call(breaker, func() (*manifest.Manifest, error) {
		return fetch(ctx, id)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           v
	                                         Open
*/
package resilience
