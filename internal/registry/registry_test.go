package registry

import (
	"bytes"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/carlosrabelo/sharpremote/internal/grain"
	"github.com/carlosrabelo/sharpremote/internal/serializer"
)

type stubForwarder struct {
	calls int
}

func (f *stubForwarder) InvokeRemote(servantID grain.ID, interfaceName, methodName string, args []byte) ([]byte, bool, error) {
	f.calls++
	return []byte("forwarded"), false, nil
}

func TestNewRegistrySeedsSubjectHost(t *testing.T) {
	r := New(&stubForwarder{})
	s, ok := r.LookupServant(grain.SubjectHost)
	if !ok {
		t.Fatal("expected SubjectHost servant to be seeded")
	}
	if _, ok := s.Subject.(*subjectHost); !ok {
		t.Fatalf("SubjectHost subject has wrong type: %T", s.Subject)
	}
	if r.ServantCount() != 1 {
		t.Fatalf("expected exactly one servant at construction, got %d", r.ServantCount())
	}
}

func TestCreateServantAllocatesDistinctIDs(t *testing.T) {
	r := New(&stubForwarder{})
	s1 := r.CreateServant("IFoo", "subject-1")
	s2 := r.CreateServant("IFoo", "subject-2")
	if s1.GrainID == s2.GrainID {
		t.Fatal("expected distinct grain ids for distinct servants")
	}
	if s1.GrainID == grain.SubjectHost || s2.GrainID == grain.SubjectHost {
		t.Fatal("user servants must not collide with the reserved SubjectHost id")
	}
}

func TestGetOrCreateProxyIsIdempotent(t *testing.T) {
	r := New(&stubForwarder{})
	id := grain.ID(123)
	p1 := r.GetOrCreateProxy(id, "IFoo")
	p2 := r.GetOrCreateProxy(id, "IFoo")
	if p1.(*Proxy) != p2.(*Proxy) {
		t.Fatal("expected GetOrCreateProxy to return the same proxy instance for the same id")
	}
	if r.ProxyCount() != 1 {
		t.Fatalf("expected exactly one proxy, got %d", r.ProxyCount())
	}
}

func TestGetOrCreateServantIsIdempotent(t *testing.T) {
	r := New(&stubForwarder{})
	id := grain.ID(456)
	s1 := r.GetOrCreateServant(id, "IFoo", "first")
	s2 := r.GetOrCreateServant(id, "IFoo", "second")
	if s1 != s2 {
		t.Fatal("expected GetOrCreateServant to return the same servant instance for the same id")
	}
	if s1.Subject != "first" {
		t.Fatalf("second call must not overwrite the existing subject, got %v", s1.Subject)
	}
}

func TestRetrieveSubjectUnknownIDFails(t *testing.T) {
	r := New(&stubForwarder{})
	if _, err := r.RetrieveSubject(grain.ID(999)); err == nil {
		t.Fatal("expected an error retrieving an unregistered grain id")
	}
}

func TestRemoveServantThenLookupFails(t *testing.T) {
	r := New(&stubForwarder{})
	s := r.CreateServant("IFoo", "subject")
	r.RemoveServant(s.GrainID)
	if _, ok := r.LookupServant(s.GrainID); ok {
		t.Fatal("expected servant to be gone after RemoveServant")
	}
}

func TestProxyInvokeForwardsThroughEndpoint(t *testing.T) {
	fwd := &stubForwarder{}
	r := New(fwd)
	p := r.CreateProxy(grain.ID(1), "IEcho")

	result, isFault, err := p.Invoke("IEcho", "Echo", []byte("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if isFault {
		t.Fatal("unexpected fault")
	}
	if string(result) != "forwarded" {
		t.Fatalf("got %q", result)
	}
	if fwd.calls != 1 {
		t.Fatalf("expected exactly one forwarded call, got %d", fwd.calls)
	}
}

func TestResolveProxyAndSubjectSatisfyResolver(t *testing.T) {
	r := New(&stubForwarder{})
	var _ serializer.Resolver = r

	any1, err := r.ResolveProxy(grain.ID(7), "IFoo")
	if err != nil {
		t.Fatal(err)
	}
	if any1.(*Proxy).GrainID != 7 {
		t.Fatal("ResolveProxy must get-or-create a proxy for the given id")
	}

	s := r.CreateServant("IFoo", "the-subject")
	subj, err := r.ResolveSubject(s.GrainID)
	if err != nil {
		t.Fatal(err)
	}
	if subj != "the-subject" {
		t.Fatalf("got %v", subj)
	}
}

func TestSubjectHostInstantiateByTypeNameRoundTrip(t *testing.T) {
	r := New(&stubForwarder{})
	r.RegisterType("Widget", func() any { return "a widget instance" })

	host, _ := r.LookupServant(grain.SubjectHost)
	invoker := host.Subject.(*subjectHost)

	codec := serializer.NewBinaryCodec()
	var argBuf bytes.Buffer
	if err := codec.WriteString(&argBuf, "Widget"); err != nil {
		t.Fatal(err)
	}

	result, isFault, err := invoker.Invoke("SubjectHost", methodInstantiateByTypeName, argBuf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if isFault {
		t.Fatal("unexpected fault")
	}

	id, err := codec.ReadU64(bytes.NewReader(result))
	if err != nil {
		t.Fatal(err)
	}

	subject, err := r.RetrieveSubject(grain.ID(id))
	if err != nil {
		t.Fatal(err)
	}
	if subject != "a widget instance" {
		t.Fatalf("got %v", subject)
	}
}

// TestRegistryUniquenessGomega checks the registry-uniqueness property with
// gomega's ConsistOf: repeated GetOrCreate calls for the same set of ids must
// never grow the table beyond the distinct id set, regardless of call order.
func TestRegistryUniquenessGomega(t *testing.T) {
	g := NewWithT(t)
	r := New(&stubForwarder{})

	ids := []grain.ID{10, 20, 30, 10, 20, 10}
	for _, id := range ids {
		r.GetOrCreateProxy(id, "IFoo")
	}

	g.Expect(r.ProxyCount()).To(Equal(3))

	var seen []grain.ID
	for _, id := range []grain.ID{10, 20, 30} {
		p := r.GetOrCreateProxy(id, "IFoo")
		seen = append(seen, p.(*Proxy).GrainID)
	}
	g.Expect(seen).To(ConsistOf(grain.ID(10), grain.ID(20), grain.ID(30)))
}

// TestGetOrCreateProxyPrefersLocalServant exercises spec §4.4's
// servant-local pass-through path: when a grain id already names a local
// servant, GetOrCreateProxy must return the servant's own subject instead of
// allocating a wire proxy, so the id never appears in both tables (spec §3
// invariant, §8 registry-uniqueness property).
func TestGetOrCreateProxyPrefersLocalServant(t *testing.T) {
	g := NewWithT(t)
	r := New(&stubForwarder{})

	s := r.CreateServant("IFoo", "local-subject")

	got := r.GetOrCreateProxy(s.GrainID, "IFoo")
	g.Expect(got).To(Equal("local-subject"))
	g.Expect(r.ProxyCount()).To(Equal(0))

	_, isServant := r.LookupServant(s.GrainID)
	g.Expect(isServant).To(BeTrue())
}

func TestSubjectHostInstantiateUnknownTypeFails(t *testing.T) {
	r := New(&stubForwarder{})
	host, _ := r.LookupServant(grain.SubjectHost)
	invoker := host.Subject.(*subjectHost)

	codec := serializer.NewBinaryCodec()
	var argBuf bytes.Buffer
	_ = codec.WriteString(&argBuf, "NoSuchType")

	_, isFault, err := invoker.Invoke("SubjectHost", methodInstantiateByTypeName, argBuf.Bytes())
	if err == nil || !isFault {
		t.Fatal("expected an error instantiating an unregistered type")
	}
}
