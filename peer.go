package slsi

import (
	"log/slog"
	"sync/atomic"

	"github.com/soypat/slsi/fapi"
)

// PeerState gates traffic to a peer.
type PeerState uint8

const (
	PeerDisconnected PeerState = iota
	PeerConnecting
	// PeerDoingKeyConfig blocks traffic until the 4-way handshake completes.
	PeerDoingKeyConfig
	PeerConnected
)

func (s PeerState) String() string {
	switch s {
	case PeerDisconnected:
		return "disconnected"
	case PeerConnecting:
		return "connecting"
	case PeerDoingKeyConfig:
		return "doing-key-config"
	case PeerConnected:
		return "connected"
	}
	return "peerstate(?)"
}

type PeerStats struct {
	TxFrames uint64
	TxFailed uint64
	RxFrames uint64
}

// PeerInfo is a snapshot of a peer record.
type PeerInfo struct {
	Addr  [6]byte
	Index uint16
	State PeerState
	TDLS  bool
	Stats PeerStats
	// BlockAck is a bitmap of TIDs with an active block ack session.
	BlockAck uint8
}

// peer is the bookkeeping of one associated station, access point or
// TDLS peer. Guarded by the owning vif's mu except where noted.
type peer struct {
	addr  [6]byte
	index uint16
	// state is written with both mu and peersMu held.
	state PeerState
	tdls  bool
	// Owned association frames, freed on replacement and on removal.
	assocReq  *fapi.Signal
	assocResp *fapi.Signal
	ba        uint8

	// Updated by the data path.
	txFrames atomic.Uint64
	txFailed atomic.Uint64
	rxFrames atomic.Uint64
}

// setAssocReq takes ownership of s, freeing the previous request.
func (p *peer) setAssocReq(s *fapi.Signal) {
	p.assocReq.Free()
	p.assocReq = s
}

// setAssocResp takes ownership of s, freeing the previous response.
func (p *peer) setAssocResp(s *fapi.Signal) {
	p.assocResp.Free()
	p.assocResp = s
}

func (p *peer) info() PeerInfo {
	return PeerInfo{
		Addr:  p.addr,
		Index: p.index,
		State: p.state,
		TDLS:  p.tdls,
		Stats: PeerStats{
			TxFrames: p.txFrames.Load(),
			TxFailed: p.txFailed.Load(),
			RxFrames: p.rxFrames.Load(),
		},
		BlockAck: p.ba,
	}
}

// addPeer records a peer at index, replacing whatever was there.
func (v *VIF) addPeer(addr [6]byte, index uint16) (*peer, error) {
	v.mu.AssertHeld()
	if int(index) >= len(v.peers) {
		v.warn("peer:index", macAttr("addr", addr), slog.Int("index", int(index)))
		return nil, errBadPeerIndex
	}
	if old := v.peers[index]; old != nil {
		v.debug("peer:replace", macAttr("old", old.addr), macAttr("addr", addr))
		v.removePeer(old)
	}
	p := &peer{addr: addr, index: index, state: PeerConnecting}
	v.peersMu.Lock()
	v.peers[index] = p
	v.peersMu.Unlock()
	v.d.metrics.setPeers(v.ifnum, v.peerCount())
	v.debug("peer:add", macAttr("addr", addr), slog.Int("index", int(index)))
	return p, nil
}

func (v *VIF) removePeer(p *peer) {
	v.mu.AssertHeld()
	v.peersMu.Lock()
	if int(p.index) < len(v.peers) && v.peers[p.index] == p {
		v.peers[p.index] = nil
	}
	p.state = PeerDisconnected
	v.peersMu.Unlock()
	p.setAssocReq(nil)
	p.setAssocResp(nil)
	v.d.metrics.setPeers(v.ifnum, v.peerCount())
	v.debug("peer:remove", macAttr("addr", p.addr), slog.Int("index", int(p.index)))
}

func (v *VIF) peerByAddr(addr [6]byte) *peer {
	v.mu.AssertHeld()
	for _, p := range v.peers {
		if p != nil && p.addr == addr {
			return p
		}
	}
	return nil
}

// dataPeer returns the peer at index and its state for the data path.
func (v *VIF) dataPeer(index uint16) (*peer, PeerState) {
	v.peersMu.RLock()
	defer v.peersMu.RUnlock()
	if int(index) >= len(v.peers) || v.peers[index] == nil {
		return nil, PeerDisconnected
	}
	p := v.peers[index]
	return p, p.state
}

// dataPeerByAddr is the data path variant of peerByAddr.
func (v *VIF) dataPeerByAddr(addr [6]byte) (*peer, PeerState) {
	v.peersMu.RLock()
	defer v.peersMu.RUnlock()
	for _, p := range v.peers {
		if p != nil && p.addr == addr {
			return p, p.state
		}
	}
	return nil, PeerDisconnected
}

func (v *VIF) staPeer() *peer {
	v.mu.AssertHeld()
	return v.peers[staPeerIndex]
}

func (v *VIF) peerCount() (n int) {
	for _, p := range v.peers {
		if p != nil {
			n++
		}
	}
	return n
}

// Peers returns a snapshot of all peer records.
func (v *VIF) Peers() []PeerInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []PeerInfo
	for _, p := range v.peers {
		if p != nil {
			out = append(out, p.info())
		}
	}
	return out
}

// Peer returns a snapshot of the peer with addr.
func (v *VIF) Peer(addr [6]byte) (PeerInfo, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p := v.peerByAddr(addr); p != nil {
		return p.info(), true
	}
	return PeerInfo{}, false
}

// setPeerState moves p and keeps the data path port in sync for stations.
func (v *VIF) setPeerState(p *peer, s PeerState) {
	v.mu.AssertHeld()
	if p.state == s {
		return
	}
	v.debug("peer:state", macAttr("addr", p.addr), slog.String("from", p.state.String()), slog.String("to", s.String()))
	v.peersMu.Lock()
	p.state = s
	v.peersMu.Unlock()
	if p.index == staPeerIndex && v.typ.IsStationLike() {
		open := s == PeerConnected
		if v.portOpen.Swap(open) != open {
			v.d.notify(PortControl{vifEvent: vifEvent{v.ifnum}, Peer: p.addr, Open: open})
		}
	}
}
