package wire

import "testing"

func TestMessageTypeValid(t *testing.T) {
	valid := []MessageType{Call, Return, Return | Exception, Goodbye, Heartbeat}
	for _, v := range valid {
		if !v.Valid() {
			t.Errorf("%v should be valid", v)
		}
	}

	invalid := []MessageType{0, Call | Return, Exception, Call | Heartbeat, Goodbye | Heartbeat}
	for _, v := range invalid {
		if v.Valid() {
			t.Errorf("%v should not be valid", v)
		}
	}
}

func TestMessageTypeIsCall(t *testing.T) {
	if !Call.IsCall() {
		t.Error("Call.IsCall() should be true")
	}
	for _, v := range []MessageType{Return, Return | Exception, Goodbye, Heartbeat} {
		if v.IsCall() {
			t.Errorf("%v.IsCall() should be false", v)
		}
	}
}
