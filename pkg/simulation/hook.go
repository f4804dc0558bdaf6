package simulation

// HookPos defines the enum of possible hooking positions
type HookPos struct {
	Name string
}

// HookCtx is the context that holds all the information about the site that a
// hook is triggered
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable defines an object that accept Hooks
type Hookable interface {
	AcceptHook(hook Hook)
}

var (
	// HookPosBeforeTask triggers before a task body runs. Item is a TaskInfo.
	HookPosBeforeTask = &HookPos{Name: "BeforeTask"}

	// HookPosAfterTask triggers after a task body returned or panicked. Item
	// is a TaskInfo, Detail the *TaskError if the body panicked.
	HookPosAfterTask = &HookPos{Name: "AfterTask"}

	// HookPosClockAdvance triggers when the virtual clock moves. Item is the
	// new VTime.
	HookPosClockAdvance = &HookPos{Name: "ClockAdvance"}

	// HookPosRecord triggers for every record appended to the trace.
	HookPosRecord = &HookPos{Name: "Record"}
)

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	Func(ctx HookCtx)
}

// HookableBase provides the hook bookkeeping for hookable types.
type HookableBase struct {
	Hooks []Hook
}

// AcceptHook registers a hook
func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

// NumHooks returns the number of registered hooks
func (h *HookableBase) NumHooks() int {
	return len(h.Hooks)
}

// InvokeHook triggers the registered Hooks
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
