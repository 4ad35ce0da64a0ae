// Package registry implements the object registry: the proxy and servant
// tables keyed by grain id that give remote calls their identity (spec §4.4).
package registry

import (
	"sync"

	"github.com/carlosrabelo/sharpremote/internal/grain"
	"github.com/carlosrabelo/sharpremote/internal/metrics"
	apperrors "github.com/carlosrabelo/sharpremote/pkg/errors"
)

// Servant is a locally hosted object that a remote peer may invoke.
type Servant struct {
	GrainID             grain.ID
	InterfaceFingerprint string
	Subject             any
}

// Proxy is a local stand-in for an object hosted by the peer.
type Proxy struct {
	GrainID             grain.ID
	InterfaceFingerprint string
	// endpoint is a weak back-reference in spirit: the registry never owns
	// the endpoint's lifetime, it only needs to ask it to forward calls.
	endpoint CallForwarder
}

// Invoke forwards a method call through the owning endpoint.
func (p *Proxy) Invoke(interfaceName, methodName string, args []byte) ([]byte, bool, error) {
	return p.endpoint.InvokeRemote(p.GrainID, interfaceName, methodName, args)
}

// CallForwarder is the narrow slice of endpoint behavior a Proxy needs; the
// real implementation lives in internal/endpoint, which avoids an import
// cycle by satisfying this interface rather than registry importing it.
type CallForwarder interface {
	InvokeRemote(servantID grain.ID, interfaceName, methodName string, args []byte) ([]byte, bool, error)
}

// Registry holds one endpoint's servant and proxy tables behind a single
// RW-lock (spec §4.4: "single RW-lock guards both maps"). GetOrCreateProxy
// never adds a grain id that already names a servant to the proxy table.
// CreateProxy and GetOrCreateServant do not check the other table, so an id
// passed to them directly can end up registered as both a servant and a
// proxy.
type Registry struct {
	allocator *grain.Allocator
	forwarder CallForwarder
	metrics   *metrics.Collector

	mu       sync.RWMutex
	servants map[grain.ID]*Servant
	proxies  map[grain.ID]*Proxy

	host *subjectHost
}

// New returns an empty registry. forwarder is consulted by proxies created
// through GetOrCreateProxy to route calls back to the peer.
func New(forwarder CallForwarder) *Registry {
	r := &Registry{
		allocator: grain.NewAllocator(),
		forwarder: forwarder,
		servants:  make(map[grain.ID]*Servant),
		proxies:   make(map[grain.ID]*Proxy),
	}
	r.host = newSubjectHost(r)
	r.servants[grain.SubjectHost] = &Servant{
		GrainID: grain.SubjectHost,
		Subject: r.host,
	}
	return r
}

// SetMetrics attaches a metrics collector; registry size is reported after
// every mutation from then on.
func (r *Registry) SetMetrics(m *metrics.Collector) {
	r.metrics = m
	r.reportSize()
}

func (r *Registry) reportSize() {
	if r.metrics == nil {
		return
	}
	r.mu.RLock()
	servants, proxies := len(r.servants), len(r.proxies)
	r.mu.RUnlock()
	r.metrics.SetRegistrySize(int64(servants), int64(proxies))
}

// CreateServant registers subject under a freshly allocated grain id.
func (r *Registry) CreateServant(interfaceFingerprint string, subject any) *Servant {
	id := r.allocator.Next()
	s := &Servant{GrainID: id, InterfaceFingerprint: interfaceFingerprint, Subject: subject}

	r.mu.Lock()
	r.servants[id] = s
	r.mu.Unlock()
	r.reportSize()
	return s
}

// CreateProxy registers a new proxy for a grain id the peer told us about.
func (r *Registry) CreateProxy(id grain.ID, interfaceFingerprint string) *Proxy {
	p := &Proxy{GrainID: id, InterfaceFingerprint: interfaceFingerprint, endpoint: r.forwarder}

	r.mu.Lock()
	r.proxies[id] = p
	r.mu.Unlock()
	r.reportSize()
	return p
}

// GetOrCreateProxy returns the existing proxy for id, or creates one. If id
// already names a local servant, no wire proxy is allocated at all: the
// servant's own subject is returned as a pass-through handle, so a grain id
// never ends up in both tables (spec §4.4, §3 invariant).
func (r *Registry) GetOrCreateProxy(id grain.ID, interfaceFingerprint string) any {
	r.mu.RLock()
	if s, ok := r.servants[id]; ok {
		r.mu.RUnlock()
		return s.Subject
	}
	p, ok := r.proxies[id]
	r.mu.RUnlock()
	if ok {
		return p
	}
	return r.CreateProxy(id, interfaceFingerprint)
}

// GetOrCreateServant returns the existing servant for id, or wraps subject
// as a new one (used when a by-value argument turns out to be a local
// object the registry hasn't seen before).
func (r *Registry) GetOrCreateServant(id grain.ID, interfaceFingerprint string, subject any) *Servant {
	r.mu.Lock()
	if s, ok := r.servants[id]; ok {
		r.mu.Unlock()
		return s
	}
	s := &Servant{GrainID: id, InterfaceFingerprint: interfaceFingerprint, Subject: subject}
	r.servants[id] = s
	r.mu.Unlock()
	r.reportSize()
	return s
}

// RetrieveSubject returns the underlying subject of the servant at id.
func (r *Registry) RetrieveSubject(id grain.ID) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servants[id]
	if !ok {
		return nil, apperrors.New(apperrors.NoSuchServant, "no servant for grain id")
	}
	return s.Subject, nil
}

// LookupServant returns the Servant registered at id, if any.
func (r *Registry) LookupServant(id grain.ID) (*Servant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servants[id]
	return s, ok
}

// RemoveServant unregisters id. A servant is destroyed only after this call
// removes it from the table; callers must not dispatch to a subject after
// removal (spec §3 invariant).
func (r *Registry) RemoveServant(id grain.ID) {
	r.mu.Lock()
	delete(r.servants, id)
	r.mu.Unlock()
	r.reportSize()
}

// ServantCount reports the number of live servants, SubjectHost included.
func (r *Registry) ServantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servants)
}

// ProxyCount reports the number of live proxies.
func (r *Registry) ProxyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.proxies)
}

// ResolveProxy satisfies serializer.Resolver: get-or-create a proxy for a
// by-reference value that named itself as remote.
func (r *Registry) ResolveProxy(id grain.ID, interfaceName string) (any, error) {
	return r.GetOrCreateProxy(id, interfaceName), nil
}

// ResolveSubject satisfies serializer.Resolver: look up the local subject
// for a by-reference value that named itself as ours.
func (r *Registry) ResolveSubject(id grain.ID) (any, error) {
	return r.RetrieveSubject(id)
}

// RegisterType adds name to SubjectHost's instantiation table.
func (r *Registry) RegisterType(name string, ctor func() any) {
	r.host.RegisterType(name, ctor)
}
