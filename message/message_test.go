package message

import (
	"testing"

	"github.com/gozwave/core/zwmsg"
)

func TestFinalizeIsCachedAndStable(t *testing.T) {
	m := NewControllerRequest(zwmsg.GetVersion)

	first, err := m.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	second, err := m.Finalize()
	if err != nil {
		t.Fatalf("Finalize (again): %v", err)
	}

	if &first[0] != &second[0] {
		t.Fatal("expected Finalize to return the same cached buffer on retry")
	}
}

func TestNewSendDataBodyLayout(t *testing.T) {
	m := NewSendData(5, zwmsg.CommandClassBasic, []uint8{0x02}, zwmsg.DefaultTransmitOptions, 0x0a)

	want := []uint8{5, 2, zwmsg.CommandClassBasic, 0x02, zwmsg.DefaultTransmitOptions, 0x0a}
	if len(m.Payload) != len(want) {
		t.Fatalf("payload length = %d, want %d (%v)", len(m.Payload), len(want), m.Payload)
	}
	for i := range want {
		if m.Payload[i] != want[i] {
			t.Fatalf("payload[%d] = 0x%02x, want 0x%02x", i, m.Payload[i], want[i])
		}
	}
	if m.ExpectedCallbackID != 0x0a {
		t.Fatalf("ExpectedCallbackID = 0x%02x, want 0x0a", m.ExpectedCallbackID)
	}
}

func TestIsWakeUpNoMoreInformation(t *testing.T) {
	m := NewSendData(7, zwmsg.CommandClassWakeUp, []uint8{zwmsg.WakeUpCommandNoMoreInfo}, zwmsg.DefaultTransmitOptions, 1)
	if !m.IsWakeUpNoMoreInformation() {
		t.Fatal("expected WakeUp No More Information to be recognised")
	}

	other := NewSendData(7, zwmsg.CommandClassBasic, []uint8{0x02}, zwmsg.DefaultTransmitOptions, 1)
	if other.IsWakeUpNoMoreInformation() {
		t.Fatal("did not expect a Basic Get to be recognised as WakeUp No More Information")
	}
}
