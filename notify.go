package slsi

import (
	"github.com/google/gopacket/layers"
	"github.com/soypat/slsi/fapi"
)

// Notifier receives events destined to the upper networking stack. Notify
// is called from the RX worker or from the goroutine issuing a request,
// possibly with vif locks held, and must not call back into the Device.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

// Event is one of the concrete event types in this file.
type Event interface {
	// VIF returns the interface number the event refers to, 0 for the device.
	VIF() uint16
	event()
}

type vifEvent struct{ Ifnum uint16 }

func (e vifEvent) VIF() uint16 { return e.Ifnum }
func (vifEvent) event()        {}

// ConnectResult ends a connection attempt. Status is
// layers.Dot11StatusSuccess on success.
type ConnectResult struct {
	vifEvent
	BSSID    [6]byte
	Status   layers.Dot11Status
	ReqIEs   []byte
	RespIEs  []byte
	TimedOut bool
}

// Roamed reports a completed roam or reassociation.
type Roamed struct {
	vifEvent
	BSSID   [6]byte
	Freq    uint16
	ReqIEs  []byte
	RespIEs []byte
}

// Disconnected reports the loss of the station's connection.
type Disconnected struct {
	vifEvent
	BSSID            [6]byte
	Reason           uint16
	LocallyGenerated bool
}

// ConnectionRejected reports an AP refusing a station because it is full.
type ConnectionRejected struct {
	vifEvent
	Peer   [6]byte
	Reason uint16
}

// NewStation reports a station associated to an AP vif.
type NewStation struct {
	vifEvent
	Peer      [6]byte
	PeerIndex uint16
	AssocIEs  []byte
}

// DelStation reports a station leaving an AP vif.
type DelStation struct {
	vifEvent
	Peer   [6]byte
	Reason uint16
}

// BSSFound delivers one scan result. Frame is the beacon or probe response
// and is owned by the receiver.
type BSSFound struct {
	vifEvent
	BSSID     [6]byte
	Freq      uint16
	RSSI      int16
	ProbeResp bool
	Frame     []byte
}

// ScanDone ends a scan on Slot.
type ScanDone struct {
	vifEvent
	Slot    ScanSlot
	Aborted bool
}

// SchedScanResults reports that a scheduled scan produced results.
type SchedScanResults struct{ vifEvent }

// MgmtRx delivers a management frame to user space.
type MgmtRx struct {
	vifEvent
	Freq  uint16
	RSSI  int16
	Frame []byte
}

// MgmtTxStatus reports the outcome of SendMgmtFrame.
type MgmtTxStatus struct {
	vifEvent
	Cookie uint64
	Ack    bool
}

// RemainOnChannelExpired ends a RemainOnChannel listen.
type RemainOnChannelExpired struct {
	vifEvent
	Cookie uint64
}

// MICFailure reports a Michael MIC failure.
type MICFailure struct {
	vifEvent
	Peer    [6]byte
	KeyType fapi.KeyType
	KeyID   uint16
}

// TDLSPeer reports a TDLS peer event.
type TDLSPeer struct {
	vifEvent
	Peer  [6]byte
	Event fapi.TDLSEvent
}

// NANEvent carries NAN discovery, service match and follow up indications.
type NANEvent struct {
	vifEvent
	Signal     fapi.SignalID
	Kind       uint16
	Identifier uint16
	MatchID    uint16
	Peer       [6]byte
	Data       []byte
}

// RangeResult carries RTT measurements. Done marks the last result of RTTID.
type RangeResult struct {
	vifEvent
	RTTID uint16
	Done  bool
	Data  []byte
}

// ChannelSwitched reports the operating channel changed.
type ChannelSwitched struct {
	vifEvent
	Channel fapi.Channel
}

// PortControl opens or closes the controlled port of a peer.
type PortControl struct {
	vifEvent
	Peer [6]byte
	Open bool
}
