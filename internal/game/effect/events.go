package effect

// Event names published by the engine. Payloads are positional:
//
//	effect_applied(effect_name string, entity Entity, details map[string]any)
//	effect_expired(effect_name string, entity Entity, details map[string]any)
//	dot_tick(attacker Entity, target Entity, damage int, name string, details map[string]any)
//	hot_tick(healer Entity, target Entity, healing int, name string, details map[string]any)
//	dot_kill(attacker Entity, target Entity, damage int, name string, details map[string]any)
//
// attacker and healer may be nil.
const (
	EventEffectApplied = "effect_applied"
	EventEffectExpired = "effect_expired"
	EventDOTTick       = "dot_tick"
	EventHOTTick       = "hot_tick"
	EventDOTKill       = "dot_kill"
)
