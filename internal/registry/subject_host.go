package registry

import (
	"bytes"
	"sync"

	"github.com/carlosrabelo/sharpremote/internal/grain"
	"github.com/carlosrabelo/sharpremote/internal/serializer"
	apperrors "github.com/carlosrabelo/sharpremote/pkg/errors"
)

const methodInstantiateByTypeName = "InstantiateByTypeName"

// subjectHost is the built-in servant living at grain.SubjectHost. Its one
// remote operation, instantiate-by-type-name, is expressed as an
// interpreted dispatch over a small registered-constructor table, since
// this module has no IL/reflection-based activator to lean on (spec §9
// option (b)). Instantiation by implementation type is not offered.
type subjectHost struct {
	registry *Registry

	mu    sync.RWMutex
	ctors map[string]func() any
}

func newSubjectHost(r *Registry) *subjectHost {
	return &subjectHost{registry: r, ctors: make(map[string]func() any)}
}

// RegisterType adds a named constructor to the instantiation table. Call
// this once per user type during endpoint setup, before any peer-initiated
// InstantiateByTypeName call can reference it.
func (h *subjectHost) RegisterType(name string, ctor func() any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctors[name] = ctor
}

// InstantiateByTypeName runs the named constructor and registers the result
// as a new servant, returning its grain id for the caller to turn into a
// proxy.
func (h *subjectHost) InstantiateByTypeName(name string) (grain.ID, error) {
	h.mu.RLock()
	ctor, ok := h.ctors[name]
	h.mu.RUnlock()
	if !ok {
		return 0, apperrors.New(apperrors.NoSuchServant, "no type registered under name "+name)
	}
	subject := ctor()
	s := h.registry.CreateServant(name, subject)
	return s.GrainID, nil
}

// Invoke implements endpoint.Invoker for the built-in SubjectHost servant,
// exposing InstantiateByTypeName as its sole remote operation (spec §4.4:
// "it exposes remote operations to instantiate further servants by type
// name or by implementation type"; the latter has no meaning without
// runtime reflection over user assemblies and is therefore not offered).
func (h *subjectHost) Invoke(interfaceName, methodName string, args []byte) ([]byte, bool, error) {
	if methodName != methodInstantiateByTypeName {
		return nil, true, apperrors.New(apperrors.NoSuchServant, "SubjectHost has no method "+methodName)
	}

	codec := serializer.NewBinaryCodec()
	r := bytes.NewReader(args)
	name, err := codec.ReadString(r)
	if err != nil {
		return nil, true, err
	}

	id, err := h.InstantiateByTypeName(name)
	if err != nil {
		return nil, true, err
	}

	var buf bytes.Buffer
	if err := codec.WriteU64(&buf, uint64(id)); err != nil {
		return nil, true, err
	}
	return buf.Bytes(), false, nil
}
