package heartbeat

// DefaultDebuggerOracle is the conservative, platform-agnostic debugger
// detector: it always reports false. No syscall-level ptrace-attached check
// is available without per-platform code, and runtime/debug exposes no
// portable attached-debugger signal either. It behaves exactly like the
// nil oracle that Config.fillDefaults substitutes, which is what the silo
// uses.
func DefaultDebuggerOracle() bool {
	return false
}
