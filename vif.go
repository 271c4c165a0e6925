package slsi

import (
	"bytes"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soypat/slsi/fapi"
	"github.com/soypat/slsi/internal/lockorder"
)

// ConnState is the connection state of a station vif.
type ConnState uint8

const (
	StaDisconnected ConnState = iota
	StaConnecting
	StaConnected
)

func (s ConnState) String() string {
	switch s {
	case StaDisconnected:
		return "disconnected"
	case StaConnecting:
		return "connecting"
	case StaConnected:
		return "connected"
	}
	return "connstate(?)"
}

const (
	// Peer index of a station's access point.
	staPeerIndex = 0
	maxTDLSPeers = 4
	maxPeerIndex = 32
)

// VIF is one virtual interface. Operations on a VIF are serialized by its
// vif mutex: at most one request is outstanding per VIF.
type VIF struct {
	d     *Device
	ifnum uint16
	// Lock order is mu, scanMu, scanResultMu.
	mu           lockorder.Mutex
	scanMu       lockorder.Mutex
	scanResultMu lockorder.Mutex
	wait         *sigWait

	typ       fapi.VifType
	addr      [6]byte
	activated bool
	channel   fapi.Channel

	sta staInfo
	// peers is indexed by firmware peer index. Entries change with both mu
	// and peersMu held so the data path may read them under peersMu alone.
	peers   []*peer
	peersMu sync.RWMutex
	// bss mirrors the results delivered upstream, keyed by BSSID.
	bss map[[6]byte]*BSS

	scan [numScanSlots]scanSlot
	// connectScanInd is the latest scan indication of a firmware connect
	// or roam scan. Guarded by scanResultMu.
	connectScanInd *fapi.Signal

	p2p p2pInfo
	ap  apInfo
	nan nanInfo

	// Data path state, read without mu.
	portOpen atomic.Bool
	m4Tag    atomic.Uint32
	eapTag   atomic.Uint32

	mgmtTx     map[uint16]uint64 // Host tag to cookie of pending SendMgmtFrame.
	nextCookie uint64
}

type staInfo struct {
	state   ConnState
	bssid   [6]byte
	ssid    []byte
	secured bool
	isWPS   bool
	// pending is the response deferred until the 4-way handshake completes.
	pending fapi.SignalID
	// roamAssocReq stashes the procedure started indication of a roam.
	roamAssocReq *fapi.Signal
	acm          uint8
	uapsd        uint8
}

type apInfo struct {
	ssid         []byte
	beaconPeriod uint16
	aclPolicy    uint16
	acl          [][6]byte
}

// BSS is an entry of the vif's BSS table.
type BSS struct {
	BSSID [6]byte
	SSID  []byte
	Freq  uint16
	RSSI  int16
	IEs   []byte
	Seen  time.Time
}

func newVIF(d *Device, ifnum uint16, typ fapi.VifType, addr [6]byte) *VIF {
	n := maxTDLSPeers + 1
	if typ.IsAPLike() {
		n = d.cfg.MaxAPClients + 1
	}
	v := &VIF{
		d:      d,
		ifnum:  ifnum,
		wait:   newSigWait(),
		typ:    typ,
		addr:   addr,
		peers:  make([]*peer, n),
		bss:    make(map[[6]byte]*BSS),
		mgmtTx: make(map[uint16]uint64),
	}
	for i := range v.scan {
		v.scan[i].slot = ScanSlot(i)
	}
	if typ.IsAPLike() {
		v.portOpen.Store(true)
	}
	return v
}

func (v *VIF) Ifnum() uint16 { return v.ifnum }
func (v *VIF) Type() fapi.VifType { return v.typ }
func (v *VIF) Addr() [6]byte { return v.addr }
func (v *VIF) Device() *Device { return v.d }

// State returns the station connection state.
func (v *VIF) State() ConnState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sta.state
}

// Channel returns the operating channel of the vif.
func (v *VIF) Channel() fapi.Channel {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.channel
}

// BSSID returns the BSS the station is connected or connecting to.
func (v *VIF) BSSID() (bssid [6]byte, ssid []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sta.bssid, bytes.Clone(v.sta.ssid)
}

// Activated reports whether the firmware accepted the vif.
func (v *VIF) Activated() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.activated
}

// LookupBSS returns a copy of the BSS table entry for bssid.
func (v *VIF) LookupBSS(bssid [6]byte) (BSS, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, ok := v.bss[bssid]
	if !ok {
		return BSS{}, false
	}
	return *b, true
}

func (v *VIF) requireActivated(op string) error {
	v.mu.AssertHeld()
	if !v.activated {
		v.warn(op+":not-activated", slog.String("type", v.typ.String()))
		return errNotActivated
	}
	return nil
}

// setStaState moves the station state machine.
func (v *VIF) setStaState(s ConnState) {
	v.mu.AssertHeld()
	if v.sta.state == s {
		return
	}
	v.info("sta:state", slog.String("from", v.sta.state.String()), slog.String("to", s.String()))
	v.sta.state = s
}

// resetSta clears all station bookkeeping after a disconnection.
func (v *VIF) resetSta() {
	v.mu.AssertHeld()
	v.sta.roamAssocReq.Free()
	v.sta = staInfo{}
	v.portOpen.Store(false)
	v.m4Tag.Store(0)
	v.eapTag.Store(0)
	v.scanResultMu.Lock()
	v.connectScanInd.Free()
	v.connectScanInd = nil
	v.scanResultMu.Unlock()
}

// teardownLocal releases everything the vif owns without talking to the firmware.
func (v *VIF) teardownLocal() {
	v.mu.AssertHeld()
	v.scanMu.Lock()
	for i := range v.scan {
		v.scan[i].stopTimer()
		v.scan[i].active = false
	}
	v.scanResultMu.Lock()
	for i := range v.scan {
		v.scan[i].purge()
	}
	v.scanResultMu.Unlock()
	v.scanMu.Unlock()
	for _, p := range v.peers {
		if p != nil {
			v.removePeer(p)
		}
	}
	v.p2p.stopTimers()
	v.resetSta()
	v.activated = false
}
