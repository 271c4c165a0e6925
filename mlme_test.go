package slsi

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/soypat/slsi/dot11"
	"github.com/soypat/slsi/fapi"
	"github.com/soypat/slsi/fwsim"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

// mibData encodes entries the way the firmware returns them.
func mibData(t *testing.T, entries ...fapi.MIBEntry) []byte {
	t.Helper()
	b := fapi.NewBuilder(fapi.MLME_SET_REQ, 0)
	for _, e := range entries {
		b.AppendMIB(e)
	}
	sig, err := b.Seal()
	require.NoError(t, err)
	defer sig.Free()
	return append([]byte(nil), sig.Data()...)
}

func TestSetCountry(t *testing.T) {
	tb := newTestbed(t)
	require.NoError(t, tb.d.SetCountry("kr"))
	req := tb.lastRequest(t, fapi.MLME_SET_REQ)
	defer req.Free()
	require.Zero(t, req.VIF())
	entries, err := fapi.DecodeMIB(req.Data())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, fapi.PSIDCountryCode, entries[0].PSID)
	require.Equal(t, []byte("KR "), entries[0].Octets)

	require.ErrorIs(t, tb.d.SetCountry("KOR"), ErrInvalidArgument)
	require.ErrorIs(t, tb.d.SetBand(7), ErrInvalidArgument)
}

func TestSetMIBRejected(t *testing.T) {
	tb := newTestbed(t)
	rejected := mibData(t, fapi.MIBGetEntry(fapi.PSIDRoamScanPeriod))
	tb.fw.Handle(fapi.MLME_SET_REQ, func(req *fapi.Signal) []*fapi.Signal {
		return []*fapi.Signal{fwsim.ConfirmData(req, fapi.SUCCESS, rejected)}
	})
	err := tb.d.SetMIB(
		fapi.MIBUintEntry(fapi.PSIDRoamScanPeriod, 10),
		fapi.MIBIntEntry(fapi.PSIDRSSIRoamTrigger, -75),
	)
	var me *MIBError
	require.ErrorAs(t, err, &me)
	require.Len(t, me.Entries, 1)
	require.Equal(t, fapi.PSIDRoamScanPeriod, me.Entries[0].PSID)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.False(t, tb.d.Failed())

	// Nothing to send.
	require.NoError(t, tb.d.SetMIB())
	require.Equal(t, 1, tb.fw.Count(fapi.MLME_SET_REQ))
}

func TestSetMIBUndecodableRejection(t *testing.T) {
	tb := newTestbed(t)
	valid := mibData(t, fapi.MIBGetEntry(fapi.PSIDRoamScanPeriod))
	for _, payload := range [][]byte{
		{0x01, 0x02, 0x03},
		append(bytes.Clone(valid), 0xff, 0xff, 0x09),
	} {
		tb.fw.Handle(fapi.MLME_SET_REQ, func(req *fapi.Signal) []*fapi.Signal {
			return []*fapi.Signal{fwsim.ConfirmData(req, fapi.SUCCESS, payload)}
		})
		err := tb.d.SetMIB(fapi.MIBUintEntry(fapi.PSIDRoamScanPeriod, 10))
		require.ErrorIs(t, err, ErrIO, "payload % x", payload)
		var me *MIBError
		require.False(t, errors.As(err, &me))
	}
}

func TestGetMIB(t *testing.T) {
	tb := newTestbed(t)
	tb.fw.Handle(fapi.MLME_GET_REQ, func(req *fapi.Signal) []*fapi.Signal {
		data := mibData(t, fapi.MIBUintEntry(fapi.PSIDLinkSpeed, 433))
		return []*fapi.Signal{fwsim.ConfirmData(req, fapi.SUCCESS, data)}
	})
	speed, err := tb.d.GetMIBUint(fapi.PSIDLinkSpeed)
	require.NoError(t, err)
	require.Equal(t, uint32(433), speed)

	_, err = tb.d.GetMIBUint(fapi.PSIDStationRSSI)
	require.ErrorIs(t, err, ErrIO)

	tb.fw.Handle(fapi.MLME_GET_REQ, fwsim.Fail(fapi.NOT_SUPPORTED))
	_, err = tb.d.GetMIB(fapi.PSIDLinkSpeed)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSetCachedChannels(t *testing.T) {
	tb := newTestbed(t)
	require.NoError(t, tb.d.SetCachedChannels([]fapi.Channel{ch2412, {Freq: 5180, Width: fapi.Width20}}))
	req := tb.lastRequest(t, fapi.MLME_SET_CACHED_CHANNELS_REQ)
	defer req.Free()
	ie, ok := dot11.FindVendor(req.Data(), []byte{fapi.OUISamsung[0], fapi.OUISamsung[1], fapi.OUISamsung[2], fapi.VendorTypeFAPI})
	require.True(t, ok)
	// Element header, OUI, type, subtype and two channels.
	require.Len(t, ie, 2+5+2*4)
}

func TestAddVIF(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	require.Equal(t, uint16(1), v.Ifnum())
	require.Same(t, v, tb.d.VIF(1))
	require.True(t, v.Activated())

	req := tb.lastRequest(t, fapi.MLME_ADD_VIF_REQ)
	require.Equal(t, staAddr, req.Addr(fapi.AddVifReqAddress))
	require.Equal(t, uint16(fapi.VifStation), req.U16(fapi.AddVifReqType))
	require.Equal(t, uint16(4824), req.U16(fapi.AddVifReqFreq))
	require.Equal(t, uint16(1), req.VIF())
	req.Free()

	for i := 2; i <= MaxVIFs; i++ {
		tb.addVIF(t, fapi.VifStation, staAddr)
	}
	_, err := tb.d.AddVIF(fapi.VifStation, staAddr, ch2412)
	require.ErrorIs(t, err, ErrBusy)
}

func TestAddVIFRejected(t *testing.T) {
	tb := newTestbed(t)
	tb.fw.Handle(fapi.MLME_ADD_VIF_REQ, fwsim.Fail(fapi.NOT_SUPPORTED))
	_, err := tb.d.AddVIF(fapi.VifAP, apAddr, ch2412)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Nil(t, tb.d.VIF(1))
}

func TestDelVIFCombinesErrors(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	tb.connect(t, v, bssidA, nil)
	tb.fw.Handle(fapi.MLME_DISCONNECT_REQ, fwsim.Fail(fapi.UNSPECIFIED_FAILURE))
	tb.fw.Handle(fapi.MLME_DEL_VIF_REQ, fwsim.Fail(fapi.UNSPECIFIED_FAILURE))

	err := tb.d.DelVIF(v)
	require.Len(t, multierr.Errors(err), 2)
	require.Nil(t, tb.d.VIF(v.Ifnum()))
	require.False(t, v.Activated())
	ev := waitEvent[Disconnected](t, tb.ev)
	require.True(t, ev.LocallyGenerated)
	require.ErrorIs(t, tb.d.DelVIF(v), ErrInvalidArgument)
}

func TestDelVIFAbortsScans(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	require.NoError(t, v.Scan(ScanRequest{Channels: []fapi.Channel{ch2412}}))
	require.NoError(t, tb.d.DelVIF(v))
	done := waitEvent[ScanDone](t, tb.ev)
	require.True(t, done.Aborted)
	require.Equal(t, 1, tb.fw.Count(fapi.MLME_DEL_SCAN_REQ))
}

func TestDelVIFReportsStations(t *testing.T) {
	tb := newTestbed(t)
	v := startAP(t, tb)
	tb.associate(t, v, clientA, 1)
	require.NoError(t, tb.d.DelVIF(v))
	del := waitEvent[DelStation](t, tb.ev)
	require.Equal(t, clientA, del.Peer)
	require.Equal(t, fapi.ReasonDeauthLeaving, del.Reason)
}

func TestPacketFilters(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	err := v.SetPacketFilters([]PacketFilter{{ID: 1, Pattern: []byte{1, 2}, Mask: []byte{0xff}}})
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Zero(t, tb.fw.Count(fapi.MLME_SET_PACKET_FILTER_REQ))

	require.NoError(t, v.SetPacketFilters([]PacketFilter{
		{ID: 1, Mode: FilterPassMatching, Offset: 12, Pattern: []byte{0x08, 0x06}},
		{ID: 2, Mode: FilterDropMatching | FilterFlagSuspended, Pattern: []byte{0xff}, Mask: []byte{0x01}},
	}))
	req := tb.lastRequest(t, fapi.MLME_SET_PACKET_FILTER_REQ)
	defer req.Free()
	require.Equal(t, uint16(2), req.U16(fapi.SetPacketFilterReqCount))
	require.NoError(t, dot11.Validate(req.Data()))
}

func TestRemainOnChannel(t *testing.T) {
	tb := newTestbed(t, func(c *Config) { c.P2PUnsyncVifLinger = 20 * time.Millisecond })
	v := tb.addVIF(t, fapi.VifUnsync, staAddr)
	require.Equal(t, P2PIdleVIFActive, v.P2PState())

	_, err := v.RemainOnChannel(ch2412, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
	cookie, err := v.RemainOnChannel(ch2412, 200*time.Millisecond)
	require.NoError(t, err)
	require.NotZero(t, cookie)
	require.Equal(t, P2PListening, v.P2PState())
	req := tb.lastRequest(t, fapi.MLME_SET_CHANNEL_REQ)
	require.Equal(t, uint16(200), req.U16(fapi.SetChannelReqDuration))
	req.Free()

	tb.inject(t, fwsim.ListenEndInd(v.Ifnum()))
	require.Equal(t, cookie, waitEvent[RemainOnChannelExpired](t, tb.ev).Cookie)

	// The idle unsynchronised vif is removed once it lingered.
	require.Eventually(t, func() bool { return tb.d.VIF(v.Ifnum()) == nil }, waitEvery, 5*time.Millisecond)
	require.Equal(t, 1, tb.fw.Count(fapi.MLME_DEL_VIF_REQ))
}

func TestCancelRemainOnChannel(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifUnsync, staAddr)
	cookie, err := v.RemainOnChannel(ch2412, time.Second)
	require.NoError(t, err)
	require.ErrorIs(t, v.CancelRemainOnChannel(cookie+1), ErrInvalidArgument)
	require.NoError(t, v.CancelRemainOnChannel(cookie))
	req := tb.lastRequest(t, fapi.MLME_SET_CHANNEL_REQ)
	require.Zero(t, req.U16(fapi.SetChannelReqDuration))
	req.Free()
	require.Equal(t, cookie, waitEvent[RemainOnChannelExpired](t, tb.ev).Cookie)
	require.NoError(t, tb.d.DelVIF(v))

	st := tb.addVIF(t, fapi.VifStation, staAddr)
	_, err = st.RemainOnChannel(ch2412, time.Second)
	require.ErrorIs(t, err, errWrongVifType)
}

// p2pAction returns a Wi-Fi Direct public action frame of subtype.
func p2pAction(da, sa [6]byte, subtype byte) []byte {
	frame := dot11.NewMgmtHeader(layers.Dot11TypeMgmtAction, da, sa, da)
	return append(frame, dot11.CategoryPublic, 9, 0x50, 0x6f, 0x9a, 0x09, subtype, 1)
}

func TestP2PNegotiation(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifUnsync, staAddr)
	_, err := v.RemainOnChannel(ch2412, time.Second)
	require.NoError(t, err)

	cookie, err := v.SendMgmtFrame(p2pAction(clientA, staAddr, dot11.P2PGONegReq), ch2412, 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, P2PActionFrameTxRx, v.P2PState())
	req := tb.lastRequest(t, fapi.MLME_SEND_FRAME_REQ)
	tag := req.U16(fapi.SendFrameReqHostTag)
	require.Equal(t, uint16(fapi.DescriptorIEEE80211), req.U16(fapi.SendFrameReqDescriptor))
	require.Equal(t, uint32(100000), req.U32(fapi.SendFrameReqDwellTime))
	req.Free()

	tb.inject(t, fwsim.FrameTransmissionInd(v.Ifnum(), tag, fapi.TxSuccessful))
	st := waitEvent[MgmtTxStatus](t, tb.ev)
	require.Equal(t, cookie, st.Cookie)
	require.True(t, st.Ack)
	// A request stays on channel waiting for the response.
	require.Equal(t, P2PActionFrameTxRx, v.P2PState())

	tb.inject(t,
		fwsim.ReceivedFrameInd(v.Ifnum(), fapi.DescriptorIEEE80211, 2412, -30, p2pAction(staAddr, clientA, dot11.P2PGONegResp)),
		fwsim.ReceivedFrameInd(v.Ifnum(), fapi.DescriptorIEEE80211, 2412, -30, p2pAction(staAddr, clientA, dot11.P2PGONegConf)),
	)
	rx := all[MgmtRx](tb.ev)
	require.Len(t, rx, 2)
	require.Equal(t, uint16(2412), rx[0].Freq)
	require.Equal(t, int16(-30), rx[0].RSSI)
	require.Equal(t, P2PListening, v.P2PState())
}

func TestSendMgmtFrameFailure(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifUnsync, staAddr)
	_, err := v.SendMgmtFrame([]byte{0x08, 0, 0}, ch2412, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	tb.fw.Handle(fapi.MLME_SEND_FRAME_REQ, fwsim.Fail(fapi.TRANSMISSION_FAILURE))
	_, err = v.SendMgmtFrame(p2pAction(clientA, staAddr, dot11.P2PProvDiscReq), ch2412, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Equal(t, P2PIdleVIFActive, v.P2PState())
	require.NoError(t, tb.d.DelVIF(v))
}

func TestTDLSPeer(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	peer := [6]byte{0x02, 0x44, 0, 0, 0, 1}
	require.ErrorIs(t, v.TDLSAction(peer, fapi.TDLSActionSetup), ErrInvalidArgument)

	tb.connect(t, v, bssidA, nil)
	require.NoError(t, v.TDLSAction(peer, fapi.TDLSActionSetup))
	require.ErrorIs(t, v.TDLSAction(peer, fapi.TDLSActionChannelSwitch), ErrInvalidArgument)
	require.ErrorIs(t, v.SetTDLSChannelSwitch(peer, ch2412), errNoPeer)

	tb.inject(t, fwsim.TDLSPeerInd(v.Ifnum(), peer, fapi.TDLSEventConnected, 2))
	ev := waitEvent[TDLSPeer](t, tb.ev)
	require.Equal(t, fapi.TDLSEventConnected, ev.Event)
	res := tb.lastRequest(t, fapi.MLME_TDLS_PEER_RES)
	require.Equal(t, uint16(2), res.U16(fapi.TDLSPeerResPeerIndex))
	res.Free()
	info, ok := v.Peer(peer)
	require.True(t, ok)
	require.True(t, info.TDLS)
	require.Equal(t, PeerConnected, info.State)

	// Direct link traffic bypasses the access point.
	require.NoError(t, tb.d.SendData(v.Ifnum(), ethFrame(peer, 0x0800)))
	data := tb.lastRequest(t, fapi.MA_UNITDATA_REQ)
	require.Equal(t, uint16(2), data.U16(fapi.UnitdataReqPeerIndex))
	data.Free()
	require.NoError(t, v.SetTDLSChannelSwitch(peer, fapi.Channel{Freq: 5180, Width: fapi.Width20}))

	// A teardown of the direct link keeps the station connected.
	tb.inject(t, fwsim.DisconnectInd(fapi.MLME_DISCONNECT_IND, v.Ifnum(), peer, fapi.ReasonUnspecified))
	require.Equal(t, fapi.TDLSEventDisconnected, waitEvent[TDLSPeer](t, tb.ev).Event)
	require.Equal(t, StaConnected, v.State())
	_, ok = v.Peer(peer)
	require.False(t, ok)
}

func TestTDLSTrafficFollowsPeer(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	peer := [6]byte{0x02, 0x44, 0, 0, 0, 1}
	tb.connect(t, v, bssidA, nil)
	sentOn := func(dst [6]byte) uint16 {
		t.Helper()
		require.NoError(t, tb.d.SendData(v.Ifnum(), ethFrame(dst, 0x0800)))
		data := tb.lastRequest(t, fapi.MA_UNITDATA_REQ)
		defer data.Free()
		return data.U16(fapi.UnitdataReqPeerIndex)
	}
	require.Equal(t, uint16(staPeerIndex), sentOn(peer))

	tb.inject(t, fwsim.TDLSPeerInd(v.Ifnum(), peer, fapi.TDLSEventConnected, 1))
	require.Equal(t, fapi.TDLSEventConnected, waitEvent[TDLSPeer](t, tb.ev).Event)
	require.Equal(t, uint16(1), sentOn(peer))
	require.Equal(t, uint16(staPeerIndex), sentOn(bssidB), "other destinations stay on the access point")

	tb.inject(t, fwsim.TDLSPeerInd(v.Ifnum(), peer, fapi.TDLSEventDisconnected, 1))
	require.Equal(t, fapi.TDLSEventDisconnected, waitEvent[TDLSPeer](t, tb.ev).Event)
	require.Equal(t, 2, tb.fw.Count(fapi.MLME_TDLS_PEER_RES))
	require.Equal(t, uint16(staPeerIndex), sentOn(peer))
	require.Len(t, v.Peers(), 1)
}

func TestTDLSPeerIndAlwaysAnswered(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	peer := [6]byte{0x02, 0x44, 0, 0, 0, 1}
	tb.inject(t, fwsim.TDLSPeerInd(v.Ifnum(), peer, fapi.TDLSEventConnected, 1))
	require.Equal(t, 1, tb.fw.Count(fapi.MLME_TDLS_PEER_RES))
	_, ok := take[TDLSPeer](tb.ev)
	require.False(t, ok)
	require.Empty(t, v.Peers())
}

func TestNANSessions(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifNAN, staAddr)
	_, err := v.NANPublish(NANService{Name: []byte("svc")})
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.ErrorIs(t, v.NANConfigure(NANConfig{}), ErrInvalidArgument)

	require.NoError(t, v.NANEnable(NANConfig{MasterPreference: 2, ClusterLow: 0, ClusterHigh: 0xffff}))
	require.NoError(t, v.NANConfigure(NANConfig{MasterPreference: 4}))
	tb.fw.Handle(fapi.MLME_NAN_PUBLISH_REQ, func(req *fapi.Signal) []*fapi.Signal {
		return []*fapi.Signal{fwsim.ConfirmAux(req, fapi.SUCCESS, 7)}
	})
	id, err := v.NANPublish(NANService{Name: []byte("svc"), Info: []byte{1, 2}})
	require.NoError(t, err)
	require.Equal(t, uint16(7), id)
	require.NoError(t, v.NANFollowup(7, 1, []byte("hi")))
	require.ErrorIs(t, v.NANFollowup(8, 1, nil), ErrInvalidArgument)

	peer := [6]byte{0x02, 0x55, 0, 0, 0, 1}
	tb.inject(t,
		fwsim.Indication(fapi.MLME_NAN_SERVICE_IND, v.Ifnum(), func(b *fapi.Builder) {
			b.PutU16(fapi.NANServiceIndID, 7)
			b.PutU16(fapi.NANServiceIndMatchID, 3)
			b.PutAddr(fapi.NANServiceIndPeer, peer)
		}),
		fwsim.Indication(fapi.MLME_NAN_EVENT_IND, v.Ifnum(), func(b *fapi.Builder) {
			b.PutU16(fapi.NANEventIndEvent, fapi.NANEventPublishTerminated)
			b.PutU16(fapi.NANEventIndIdentifier, 7)
		}),
	)
	evs := all[NANEvent](tb.ev)
	require.Len(t, evs, 2)
	require.Equal(t, fapi.MLME_NAN_SERVICE_IND, evs[0].Signal)
	require.Equal(t, peer, evs[0].Peer)
	require.Equal(t, uint16(3), evs[0].MatchID)
	require.Equal(t, fapi.NANEventPublishTerminated, evs[1].Kind)
	// Terminated sessions no longer accept follow ups.
	require.ErrorIs(t, v.NANFollowup(7, 1, nil), ErrInvalidArgument)

	require.NoError(t, v.NANDisable())
	req := tb.lastRequest(t, fapi.MLME_NAN_START_REQ)
	require.Empty(t, req.Data())
	req.Free()
	require.NoError(t, v.NANDisable())
	require.Equal(t, 2, tb.fw.Count(fapi.MLME_NAN_START_REQ))
}

func TestNANWrongVIF(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	require.ErrorIs(t, v.NANEnable(NANConfig{}), errWrongVifType)
	tb.inject(t, fwsim.Indication(fapi.MLME_NAN_EVENT_IND, v.Ifnum(), nil))
	_, ok := take[NANEvent](tb.ev)
	require.False(t, ok)
}

func TestRange(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	_, err := v.AddRange(1, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	tb.fw.Handle(fapi.MLME_ADD_RANGE_REQ, func(req *fapi.Signal) []*fapi.Signal {
		return []*fapi.Signal{fwsim.ConfirmAux(req, fapi.SUCCESS, 3)}
	})
	rtt, err := v.AddRange(1, []RangePeer{{Addr: bssidA, Channel: ch2412, Burst: 8}, {Addr: bssidB, Channel: ch2412}})
	require.NoError(t, err)
	require.Equal(t, uint16(3), rtt)
	req := tb.lastRequest(t, fapi.MLME_ADD_RANGE_REQ)
	require.Equal(t, uint16(2), req.U16(fapi.AddRangeReqEntries))
	req.Free()

	tb.inject(t,
		fwsim.Indication(fapi.MLME_RANGE_IND, v.Ifnum(), func(b *fapi.Builder) {
			b.PutU16(fapi.RangeIndRTTID, 3)
			b.PutU16(fapi.RangeIndEntries, 1)
			b.Append([]byte{1, 2, 3, 4})
		}),
		fwsim.Indication(fapi.MLME_RANGE_DONE_IND, v.Ifnum(), func(b *fapi.Builder) {
			b.PutU16(fapi.RangeDoneIndRTTID, 3)
		}),
	)
	res := all[RangeResult](tb.ev)
	require.Len(t, res, 2)
	require.Equal(t, []byte{1, 2, 3, 4}, res[0].Data)
	require.False(t, res[0].Done)
	require.True(t, res[1].Done)
	require.NoError(t, v.DelRange(3, [][6]byte{bssidA}))
}

func TestSetKey(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	err := v.SetKey(Key{Type: fapi.KeyPairwise, Seq: make([]byte, 9)})
	require.ErrorIs(t, err, ErrInvalidArgument)

	k := Key{
		Type:     fapi.KeyPairwise,
		ID:       1,
		Addr:     bssidA,
		Seq:      []byte{1, 0, 0, 0, 0, 0},
		Cipher:   0x000fac04,
		Material: make([]byte, 16),
	}
	require.NoError(t, v.SetKey(k))
	req := tb.lastRequest(t, fapi.MLME_SETKEYS_REQ)
	defer req.Free()
	require.Equal(t, uint16(128), req.U16(fapi.SetKeysReqLength))
	require.Equal(t, uint16(1), req.U16(fapi.SetKeysReqKeyID))
	require.Equal(t, bssidA, req.Addr(fapi.SetKeysReqAddress))
	require.Equal(t, uint32(0x000fac04), req.U32(fapi.SetKeysReqCipher))
	require.Len(t, req.Data(), 16)
	// Installing keys leaves the port alone.
	require.False(t, v.portOpen.Load())
}

func TestKeySequence(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	tb.fw.Handle(fapi.MLME_GET_KEY_SEQUENCE_REQ, func(req *fapi.Signal) []*fapi.Signal {
		cfm := fwsim.ConfirmAux(req, fapi.SUCCESS, 6)
		defer cfm.Free()
		return []*fapi.Signal{cfm.WithData([]byte{1, 2, 3, 4, 5, 6, 0, 0})}
	})
	seq, err := v.KeySequence(fapi.KeyGroup, 2, [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, seq)

	tb.fw.Handle(fapi.MLME_GET_KEY_SEQUENCE_REQ, fwsim.Fail(fapi.NOT_PRESENT))
	_, err = v.KeySequence(fapi.KeyGroup, 2, [6]byte{})
	var rerr *ResultError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, fapi.NOT_PRESENT, rerr.Result)
}

func TestReassociate(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	require.ErrorIs(t, v.Reassociate([6]byte{}), ErrInvalidArgument)
	require.Zero(t, tb.fw.Count(fapi.MLME_REASSOCIATE_REQ))

	tb.connect(t, v, bssidA, nil)
	require.NoError(t, v.Reassociate([6]byte{}))
	req := tb.lastRequest(t, fapi.MLME_REASSOCIATE_REQ)
	defer req.Free()
	require.Equal(t, bssidA, req.Addr(fapi.ReassociateReqBSSID))
}

func TestSetPMK(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)
	require.ErrorIs(t, v.SetPMK(make([]byte, 16)), ErrInvalidArgument)
	pmk := make([]byte, 32)
	pmk[0] = 0x5a
	require.NoError(t, v.SetPMK(pmk))
	req := tb.lastRequest(t, fapi.MLME_SET_PMK_REQ)
	defer req.Free()
	require.Equal(t, pmk, req.Data())
}

func TestSetACL(t *testing.T) {
	tb := newTestbed(t)
	sta := tb.addVIF(t, fapi.VifStation, staAddr)
	require.ErrorIs(t, sta.SetACL(fapi.ACLPolicyDeny, nil), errWrongVifType)

	ap := tb.addVIF(t, fapi.VifAP, apAddr)
	require.ErrorIs(t, ap.SetACL(7, nil), ErrInvalidArgument)
	require.NoError(t, ap.SetACL(fapi.ACLPolicyDeny, [][6]byte{clientA, bssidB}))
	req := tb.lastRequest(t, fapi.MLME_SET_ACL_REQ)
	defer req.Free()
	require.Equal(t, uint16(2), req.U16(fapi.SetACLReqEntries))
	require.Equal(t, fapi.ACLPolicyDeny, req.U16(fapi.SetACLReqPolicy))
	require.Equal(t, append(clientA[:], bssidB[:]...), req.Data())

	tb.fw.Handle(fapi.MLME_SET_ACL_REQ, fwsim.Fail(fapi.INVALID_PARAMETERS))
	require.ErrorIs(t, ap.SetACL(fapi.ACLPolicyAllow, nil), ErrInvalidArgument)
	ap.mu.Lock()
	policy := ap.ap.aclPolicy
	ap.mu.Unlock()
	require.Equal(t, fapi.ACLPolicyDeny, policy, "failed request must keep the installed policy")
}

func TestVIFSettings(t *testing.T) {
	tb := newTestbed(t)
	v := tb.addVIF(t, fapi.VifStation, staAddr)

	require.NoError(t, v.SetTxPower(-3))
	req := tb.lastRequest(t, fapi.MLME_SET_TX_POWER_REQ)
	require.Equal(t, int16(-3), req.I16(fapi.SetTxPowerReqLevel))
	req.Free()

	require.NoError(t, v.SetPowerMode(fapi.PowerSave))
	req = tb.lastRequest(t, fapi.MLME_POWERMGT_REQ)
	require.Equal(t, uint16(fapi.PowerSave), req.U16(fapi.PowerMgtReqMode))
	req.Free()

	require.NoError(t, v.RegisterActionFrames(0x80, 0x01))
	req = tb.lastRequest(t, fapi.MLME_REGISTER_ACTION_FRAME_REQ)
	require.Equal(t, uint32(0x80), req.U32(fapi.RegisterActionFrameReqActive))
	require.Equal(t, uint32(0x01), req.U32(fapi.RegisterActionFrameReqSuspended))
	req.Free()

	require.ErrorIs(t, v.AddInfoElements(fapi.PurposeProbeRequest, []byte{221, 5, 1}), ErrInvalidArgument)
	ie := []byte{221, 4, 0x50, 0x6f, 0x9a, 0x09}
	require.NoError(t, v.AddInfoElements(fapi.PurposeProbeRequest, ie))
	req = tb.lastRequest(t, fapi.MLME_ADD_INFO_ELEMENTS_REQ)
	require.Equal(t, uint16(fapi.PurposeProbeRequest), req.U16(fapi.AddInfoElementsReqPurpose))
	require.Equal(t, ie, req.Data())
	req.Free()

	require.NoError(t, v.SetBSSIDHotlist([]HotlistEntry{{BSSID: bssidA, Low: -80, High: -40}, {BSSID: bssidB}}))
	req = tb.lastRequest(t, fapi.MLME_SET_BSSID_HOTLIST_REQ)
	require.NoError(t, dot11.Validate(req.Data()))
	req.Free()
}
