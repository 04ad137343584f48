package bacstack

import "github.com/bacgopher/bacstack/npdu"

// dccStateKind mirrors ASHRAE 135's DeviceCommunicationControl states.
type dccStateKind int

const (
	dccEnabled dccStateKind = iota
	dccDisabled
	dccDisabledInitiation
)

// dccState is Device Communication Control's runtime state: while
// disabled, only Who-Is and the handler's own DCC/reinitialize
// requests are allowed through; "disable initiation" still permits
// inbound requests but suppresses this device's own unconfirmed
// broadcasts (I-Am, COV notifications).
type dccState struct {
	state        dccStateKind
	remainingSec int // 0 means "until re-enabled", per ASHRAE 135
}

func newDCCState() *dccState { return &dccState{state: dccEnabled} }

// Disable puts the device into Disabled or DisabledInitiation for
// durationMinutes (0 means indefinite).
func (d *dccState) Disable(initiationOnly bool, durationMinutes int) {
	if initiationOnly {
		d.state = dccDisabledInitiation
	} else {
		d.state = dccDisabled
	}
	d.remainingSec = durationMinutes * 60
}

func (d *dccState) Enable() {
	d.state = dccEnabled
	d.remainingSec = 0
}

func (d *dccState) tick(elapsedSeconds int) {
	if d.state == dccEnabled || d.remainingSec == 0 {
		return
	}
	d.remainingSec -= elapsedSeconds
	if d.remainingSec <= 0 {
		d.Enable()
	}
}

// blocks reports whether an outbound send described by meta must be
// suppressed under the current DCC state. Only unconfirmed,
// non-network-layer sends are ever suppressed: DeviceCommunicationControl
// semantics apply to application-layer traffic, not to routing.
func (d *dccState) blocks(meta npdu.Meta) bool {
	return d.state == dccDisabledInitiation && meta.NetworkMessage == nil
}

// blocksInbound reports whether an inbound confirmed service request
// (other than DeviceCommunicationControl itself) must be rejected while
// fully Disabled.
func (d *dccState) blocksInbound(service byte, dccServiceChoice byte) bool {
	return d.state == dccDisabled && service != dccServiceChoice
}
