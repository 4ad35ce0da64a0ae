package serializer

import (
	"bytes"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/carlosrabelo/sharpremote/internal/grain"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	c := NewBinaryCodec()
	var buf bytes.Buffer

	if err := c.WriteI8(&buf, -7); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteU8(&buf, 250); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteI16(&buf, -1000); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteU32(&buf, 4000000000); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteI64(&buf, -9000000000000); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteF32(&buf, 3.5); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteF64(&buf, 2.71828); err != nil {
		t.Fatal(err)
	}

	i8, err := c.ReadI8(&buf)
	if err != nil || i8 != -7 {
		t.Fatalf("ReadI8: got %d, err %v", i8, err)
	}
	u8, err := c.ReadU8(&buf)
	if err != nil || u8 != 250 {
		t.Fatalf("ReadU8: got %d, err %v", u8, err)
	}
	i16, err := c.ReadI16(&buf)
	if err != nil || i16 != -1000 {
		t.Fatalf("ReadI16: got %d, err %v", i16, err)
	}
	u32, err := c.ReadU32(&buf)
	if err != nil || u32 != 4000000000 {
		t.Fatalf("ReadU32: got %d, err %v", u32, err)
	}
	i64, err := c.ReadI64(&buf)
	if err != nil || i64 != -9000000000000 {
		t.Fatalf("ReadI64: got %d, err %v", i64, err)
	}
	f32, err := c.ReadF32(&buf)
	if err != nil || f32 != 3.5 {
		t.Fatalf("ReadF32: got %v, err %v", f32, err)
	}
	f64, err := c.ReadF64(&buf)
	if err != nil || f64 != 2.71828 {
		t.Fatalf("ReadF64: got %v, err %v", f64, err)
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	c := NewBinaryCodec()
	var buf bytes.Buffer
	original := Decimal{Unscaled: 123456789, Scale: 4}
	if err := c.WriteDecimal(&buf, original); err != nil {
		t.Fatal(err)
	}
	got, err := c.ReadDecimal(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != original {
		t.Fatalf("decimal round trip mismatch: got %+v, want %+v", got, original)
	}
}

func TestStringRoundTrip(t *testing.T) {
	c := NewBinaryCodec()
	var buf bytes.Buffer
	if err := c.WriteString(&buf, "hello, sharpremote"); err != nil {
		t.Fatal(err)
	}
	got, err := c.ReadString(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello, sharpremote" {
		t.Fatalf("got %q", got)
	}
}

func TestNullFlagRoundTrip(t *testing.T) {
	c := NewBinaryCodec()
	for _, present := range []bool{true, false} {
		var buf bytes.Buffer
		if err := c.WriteNullFlag(&buf, present); err != nil {
			t.Fatal(err)
		}
		got, err := c.ReadNullFlag(&buf)
		if err != nil || got != present {
			t.Fatalf("NullFlag(%v): got %v, err %v", present, got, err)
		}
	}
}

type stubResolver struct {
	proxies  map[grain.ID]any
	subjects map[grain.ID]any
}

func (s *stubResolver) ResolveProxy(id grain.ID, interfaceName string) (any, error) {
	return s.proxies[id], nil
}

func (s *stubResolver) ResolveSubject(id grain.ID) (any, error) {
	return s.subjects[id], nil
}

func TestByReferenceRoundTrip(t *testing.T) {
	c := NewBinaryCodec()
	resolver := &stubResolver{
		proxies:  map[grain.ID]any{5: "proxy-for-5"},
		subjects: map[grain.ID]any{9: "subject-for-9"},
	}

	var buf bytes.Buffer
	if err := c.WriteByReference(&buf, CreateProxy, grain.ID(5)); err != nil {
		t.Fatal(err)
	}
	got, err := c.ReadByReference(&buf, "IWhatever", resolver)
	if err != nil {
		t.Fatal(err)
	}
	if got != "proxy-for-5" {
		t.Fatalf("got %v", got)
	}

	buf.Reset()
	if err := c.WriteByReference(&buf, RetrieveSubject, grain.ID(9)); err != nil {
		t.Fatal(err)
	}
	got, err = c.ReadByReference(&buf, "IWhatever", resolver)
	if err != nil {
		t.Fatal(err)
	}
	if got != "subject-for-9" {
		t.Fatalf("got %v", got)
	}
}

// TestByReferenceRoundTripGomega checks the same scenario 6 round trip with
// gomega matchers, which read better for "eventually this resolves to" style
// assertions than a hand rolled if/Fatal pair.
func TestByReferenceRoundTripGomega(t *testing.T) {
	g := NewWithT(t)
	c := NewBinaryCodec()
	resolver := &stubResolver{
		proxies:  map[grain.ID]any{5: "proxy-for-5"},
		subjects: map[grain.ID]any{9: "subject-for-9"},
	}

	var buf bytes.Buffer
	g.Expect(c.WriteByReference(&buf, CreateProxy, grain.ID(5))).To(Succeed())

	got, err := c.ReadByReference(&buf, "IWhatever", resolver)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got).To(Equal("proxy-for-5"))

	buf.Reset()
	g.Expect(c.WriteByReference(&buf, RetrieveSubject, grain.ID(9))).To(Succeed())

	got, err = c.ReadByReference(&buf, "IWhatever", resolver)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(got).To(Equal("subject-for-9"))
}
