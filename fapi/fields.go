package fapi

// Field locators, as byte offsets relative to the start of the fields section.
type (
	U16    uint16
	U32    uint16
	Addr   uint16
	Octets struct{ Off, Len uint16 }
)

// Common confirmation fields.
const (
	CfmResultCode U16 = 0
	CfmAux        U16 = 2 // Signal specific second field of some confirmations.
)

const cfmFieldsLen = 4

// Confirmation specific aliases for CfmAux.
const (
	SendFrameCfmHostTag     = CfmAux
	NANPublishCfmID         = CfmAux
	NANSubscribeCfmID       = CfmAux
	AddRangeCfmRTTID        = CfmAux
	GetKeySequenceCfmKeyLen = CfmAux
)

// MA_UNITDATA_REQ
const (
	UnitdataReqHostTag   U16 = 0
	UnitdataReqPriority  U16 = 2
	UnitdataReqPeerIndex U16 = 4
)

// MA_UNITDATA_IND
const (
	UnitdataIndPeerIndex U16 = 0
)

// MA_BLOCKACK_IND
const (
	BlockackIndPeer     Addr = 0
	BlockackIndPriority U16  = 6
	BlockackIndReason   U16  = 8
)

// MLME_ADD_VIF_REQ
const (
	AddVifReqAddress Addr = 0
	AddVifReqType    U16  = 6
	AddVifReqFreq    U16  = 8
)

// MLME_CONNECT_REQ
const (
	ConnectReqBSSID    Addr = 0
	ConnectReqAuthType U16  = 6
	ConnectReqFreq     U16  = 8
	ConnectReqChanInfo U16  = 10
)

// MLME_CONNECT_RES
const (
	ConnectResPeerIndex U16 = 0
)

// MLME_DISCONNECT_REQ
const (
	DisconnectReqPeer   Addr = 0
	DisconnectReqReason U16  = 6
)

// MLME_SET_CHANNEL_REQ
const (
	SetChannelReqDuration U16 = 0
	SetChannelReqInterval U16 = 2
	SetChannelReqCount    U16 = 4
	SetChannelReqFreq     U16 = 6
	SetChannelReqChanInfo U16 = 8
)

// MLME_SETKEYS_REQ
const (
	SetKeysReqLength  U16  = 0
	SetKeysReqKeyID   U16  = 2
	SetKeysReqKeyType U16  = 4
	SetKeysReqAddress Addr = 6
	SetKeysReqCipher  U32  = 20
)

var SetKeysReqSequence = Octets{Off: 12, Len: 8}

// MLME_ADD_SCAN_REQ
const (
	AddScanReqScanID     U16  = 0
	AddScanReqScanType   U16  = 2
	AddScanReqDeviceAddr Addr = 4
	AddScanReqReportMode U16  = 10
)

// MLME_DEL_SCAN_REQ
const (
	DelScanReqScanID U16 = 0
)

// MLME_ROAM_REQ
const (
	RoamReqBSSID Addr = 0
	RoamReqFreq  U16  = 6
)

// MLME_REASSOCIATE_REQ
const (
	ReassociateReqBSSID Addr = 0
)

// MLME_REGISTER_ACTION_FRAME_REQ
const (
	RegisterActionFrameReqActive    U32 = 0
	RegisterActionFrameReqSuspended U32 = 4
)

// MLME_CHANNEL_SWITCH_REQ
const (
	ChannelSwitchReqFreq     U16 = 0
	ChannelSwitchReqChanInfo U16 = 2
)

// MLME_SEND_FRAME_REQ
const (
	SendFrameReqHostTag     U16 = 0
	SendFrameReqDescriptor  U16 = 2
	SendFrameReqMessageType U16 = 4
	SendFrameReqFreq        U16 = 6
	SendFrameReqDwellTime   U32 = 8
)

// MLME_SET_PACKET_FILTER_REQ
const (
	SetPacketFilterReqCount U16 = 0
)

// MLME_SET_ACL_REQ
const (
	SetACLReqEntries U16 = 0
	SetACLReqPolicy  U16 = 2
)

// MLME_TDLS_ACTION_REQ
const (
	TDLSActionReqPeer     Addr = 0
	TDLSActionReqAction   U16  = 6
	TDLSActionReqFreq     U16  = 8
	TDLSActionReqChanInfo U16  = 10
)

// MLME_TDLS_PEER_RES
const (
	TDLSPeerResPeerIndex U16 = 0
)

// MLME_START_REQ
const (
	StartReqBeaconPeriod U16 = 0
	StartReqDTIMPeriod   U16 = 2
	StartReqFreq         U16 = 4
	StartReqChanInfo     U16 = 6
	StartReqHiddenSSID   U16 = 8
)

// MLME_ADD_INFO_ELEMENTS_REQ
const (
	AddInfoElementsReqPurpose U16 = 0
)

// MLME_GET_KEY_SEQUENCE_REQ
const (
	GetKeySequenceReqKeyID   U16  = 0
	GetKeySequenceReqKeyType U16  = 2
	GetKeySequenceReqAddress Addr = 4
)

// MLME_POWERMGT_REQ
const (
	PowerMgtReqMode U16 = 0
)

// MLME_SET_TX_POWER_REQ
const (
	SetTxPowerReqLevel U16 = 0
)

// MLME_BLOCKACK_CONTROL_REQ
const (
	BlockackControlReqPeer     Addr = 0
	BlockackControlReqPriority U16  = 6
	BlockackControlReqAction   U16  = 8
)

// NAN requests.
const (
	NANStartReqFlags      U16 = 0
	NANPublishReqID       U16 = 0
	NANPublishReqFlags    U16 = 2
	NANSubscribeReqID     U16 = 0
	NANSubscribeReqFlags  U16 = 2
	NANFollowupReqSession U16 = 0
	NANFollowupReqMatchID U16 = 2
	NANConfigReqFlags     U16 = 0
)

// RTT requests.
const (
	AddRangeReqRTTID     U16 = 0
	AddRangeReqRequestID U16 = 2
	AddRangeReqEntries   U16 = 4
	DelRangeReqRTTID     U16 = 0
	DelRangeReqEntries   U16 = 2
)

// MLME_SCAN_IND
const (
	ScanIndScanID    U16 = 0
	ScanIndRSSI      U16 = 2
	ScanIndFreq      U16 = 4
	ScanIndHotlisted U16 = 6
)

// MLME_SCAN_DONE_IND
const (
	ScanDoneIndScanID U16 = 0
)

// MLME_CONNECT_IND
const (
	ConnectIndBSSID      Addr = 0
	ConnectIndResultCode U16  = 6
)

// MLME_CONNECTED_IND
const (
	ConnectedIndPeerIndex U16 = 0
)

// MLME_ROAMED_IND
const (
	RoamedIndBSSID  Addr = 0
	RoamedIndTKReqd U16  = 6
)

// MLME_REASSOCIATE_IND
const (
	ReassociateIndResultCode U16 = 0
)

// MLME_DISCONNECT_IND and MLME_DISCONNECTED_IND share a layout.
const (
	DisconnectIndPeer   Addr = 0
	DisconnectIndReason U16  = 6
)

// MLME_PROCEDURE_STARTED_IND
const (
	ProcedureStartedIndType      U16 = 0
	ProcedureStartedIndPeerIndex U16 = 2
)

// MLME_FRAME_TRANSMISSION_IND
const (
	FrameTransmissionIndHostTag U16 = 0
	FrameTransmissionIndStatus  U16 = 2
)

// MLME_RECEIVED_FRAME_IND
const (
	ReceivedFrameIndFreq       U16 = 0
	ReceivedFrameIndRSSI       U16 = 2
	ReceivedFrameIndDescriptor U16 = 4
)

// MLME_TDLS_PEER_IND
const (
	TDLSPeerIndPeer      Addr = 0
	TDLSPeerIndEvent     U16  = 6
	TDLSPeerIndPeerIndex U16  = 8
)

// MLME_MIC_FAILURE_IND
const (
	MICFailureIndPeer    Addr = 0
	MICFailureIndKeyType U16  = 6
	MICFailureIndKeyID   U16  = 8
)

// MLME_CHANNEL_SWITCHED_IND
const (
	ChannelSwitchedIndFreq     U16 = 0
	ChannelSwitchedIndChanInfo U16 = 2
)

// MLME_BLOCKACK_ERROR_IND
const (
	BlockackErrorIndPeer     Addr = 0
	BlockackErrorIndPriority U16  = 6
)

// NAN indications.
const (
	NANEventIndEvent       U16  = 0
	NANEventIndIdentifier  U16  = 2
	NANEventIndReason      U16  = 4
	NANServiceIndID        U16  = 0
	NANServiceIndMatchID   U16  = 2
	NANServiceIndPeer      Addr = 4
	NANFollowupIndSession  U16  = 0
	NANFollowupIndMatchID  U16  = 2
	NANFollowupIndPeer     Addr = 4
	RangeIndRTTID          U16  = 0
	RangeIndEntries        U16  = 2
	RangeDoneIndRTTID      U16  = 0
	DebugFaultIndFault     U16  = 0
	DebugFaultIndProcessor U16  = 2
	DebugFaultIndFatal     U16  = 4
)

var fieldsLen = map[SignalID]uint16{
	MA_UNITDATA_REQ: 6,
	MA_UNITDATA_IND: 2,
	MA_BLOCKACK_IND: 10,

	MLME_ADD_VIF_REQ:               10,
	MLME_CONNECT_REQ:               12,
	MLME_DISCONNECT_REQ:            8,
	MLME_SET_CHANNEL_REQ:           10,
	MLME_SETKEYS_REQ:               24,
	MLME_ADD_SCAN_REQ:              12,
	MLME_DEL_SCAN_REQ:              2,
	MLME_ROAM_REQ:                  8,
	MLME_REASSOCIATE_REQ:           6,
	MLME_REGISTER_ACTION_FRAME_REQ: 8,
	MLME_CHANNEL_SWITCH_REQ:        4,
	MLME_SEND_FRAME_REQ:            12,
	MLME_SET_PACKET_FILTER_REQ:     2,
	MLME_SET_ACL_REQ:               4,
	MLME_TDLS_ACTION_REQ:           12,
	MLME_START_REQ:                 10,
	MLME_ADD_INFO_ELEMENTS_REQ:     2,
	MLME_GET_KEY_SEQUENCE_REQ:      10,
	MLME_POWERMGT_REQ:              2,
	MLME_SET_TX_POWER_REQ:          2,
	MLME_BLOCKACK_CONTROL_REQ:      10,
	MLME_NAN_START_REQ:             2,
	MLME_NAN_PUBLISH_REQ:           4,
	MLME_NAN_SUBSCRIBE_REQ:         4,
	MLME_NAN_FOLLOWUP_REQ:          4,
	MLME_NAN_CONFIG_REQ:            2,
	MLME_ADD_RANGE_REQ:             6,
	MLME_DEL_RANGE_REQ:             4,

	MLME_CONNECT_RES:   2,
	MLME_TDLS_PEER_RES: 2,

	MLME_SCAN_IND:               8,
	MLME_SCAN_DONE_IND:          2,
	MLME_CONNECT_IND:            8,
	MLME_CONNECTED_IND:          2,
	MLME_ROAMED_IND:             8,
	MLME_REASSOCIATE_IND:        2,
	MLME_DISCONNECT_IND:         8,
	MLME_DISCONNECTED_IND:       8,
	MLME_PROCEDURE_STARTED_IND:  4,
	MLME_FRAME_TRANSMISSION_IND: 4,
	MLME_RECEIVED_FRAME_IND:     6,
	MLME_TDLS_PEER_IND:          10,
	MLME_MIC_FAILURE_IND:        10,
	MLME_CHANNEL_SWITCHED_IND:   4,
	MLME_BLOCKACK_ERROR_IND:     8,
	MLME_NAN_EVENT_IND:          6,
	MLME_NAN_SERVICE_IND:        10,
	MLME_NAN_FOLLOWUP_IND:       10,
	MLME_RANGE_IND:              4,
	MLME_RANGE_DONE_IND:         2,

	DEBUG_FAULT_IND: 6,
}

// FieldsLenOf returns the length of the fixed fields section for id.
// All confirmations share the same length.
func FieldsLenOf(id SignalID) int {
	if id.IsCfm() {
		return cfmFieldsLen
	}
	return int(fieldsLen[id])
}
