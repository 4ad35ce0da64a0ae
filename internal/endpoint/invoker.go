package endpoint

// Invoker is the contract a hosted servant's subject must satisfy so an
// incoming Call frame can be dispatched to it (spec §4.4 Servant.invoke).
// Stub generation for user interfaces is out of scope (spec §1); this is the
// narrow seam any such generated stub plugs into.
type Invoker interface {
	Invoke(interfaceName, methodName string, args []byte) (result []byte, isFault bool, err error)
}
