package services

import (
	"sync"

	"github.com/lifetravel/cartguard/pkg/logger"
)

// Action hook names fired by the security subsystem. External integrations
// (IP blockers, pager bridges) subscribe to these by name.
const (
	HookEventLogged      = "life_travel_security_event_logged"
	HookCriticalAlert    = "life_travel_security_critical_alert"
	HookTokenBruteForce  = "life_travel_security_token_brute_force"
	HookSuspiciousIP     = "life_travel_security_suspicious_ip"
	HookBruteForce       = "life_travel_security_brute_force_detected"
	HookCartManipulation = "life_travel_security_cart_manipulation"
	HookUnusualRecovery  = "life_travel_security_unusual_recovery"
)

// HookFunc receives the payload of a fired action hook.
type HookFunc func(payload map[string]interface{})

// HookRegistry is an in-process action hook dispatcher. Callbacks run
// synchronously in registration order; a panicking callback is recovered
// and logged so it cannot take down the caller.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[string][]HookFunc
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[string][]HookFunc)}
}

// Register adds a callback for the named action.
func (r *HookRegistry) Register(name string, fn HookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[name] = append(r.hooks[name], fn)
}

// Do fires the named action with the given payload.
func (r *HookRegistry) Do(name string, payload map[string]interface{}) {
	r.mu.RLock()
	fns := r.hooks[name]
	r.mu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Str("hook", name).
						Interface("panic", rec).
						Msg("hook callback panicked")
				}
			}()
			fn(payload)
		}()
	}
}

// Count returns the number of callbacks registered for the named action.
func (r *HookRegistry) Count(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[name])
}
