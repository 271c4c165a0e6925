package fapi

import "strconv"

// ResultCode is carried by every confirmation and by some indications.
type ResultCode uint16

const (
	SUCCESS                        ResultCode = 0x0000
	UNSPECIFIED_FAILURE            ResultCode = 0x0001
	INVALID_PARAMETERS             ResultCode = 0x0002
	REJECTED_INVALID_IE            ResultCode = 0x0003
	NOT_SUPPORTED                  ResultCode = 0x0004
	TRANSMISSION_FAILURE           ResultCode = 0x0005
	PROBE_TIMEOUT                  ResultCode = 0x0006
	AUTH_TIMEOUT                   ResultCode = 0x0007
	ASSOC_TIMEOUT                  ResultCode = 0x0008
	ASSOC_ABORT                    ResultCode = 0x0009
	NOT_PRESENT                    ResultCode = 0x000A
	TOO_MANY_SIMULTANEOUS_REQUESTS ResultCode = 0x000B
	HOST_REQUEST_SUCCESS           ResultCode = 0x0810
	HOST_REQUEST_FAILED            ResultCode = 0x0811
)

var resultNames = map[ResultCode]string{
	SUCCESS:                        "SUCCESS",
	UNSPECIFIED_FAILURE:            "UNSPECIFIED_FAILURE",
	INVALID_PARAMETERS:             "INVALID_PARAMETERS",
	REJECTED_INVALID_IE:            "REJECTED_INVALID_IE",
	NOT_SUPPORTED:                  "NOT_SUPPORTED",
	TRANSMISSION_FAILURE:           "TRANSMISSION_FAILURE",
	PROBE_TIMEOUT:                  "PROBE_TIMEOUT",
	AUTH_TIMEOUT:                   "AUTH_TIMEOUT",
	ASSOC_TIMEOUT:                  "ASSOC_TIMEOUT",
	ASSOC_ABORT:                    "ASSOC_ABORT",
	NOT_PRESENT:                    "NOT_PRESENT",
	TOO_MANY_SIMULTANEOUS_REQUESTS: "TOO_MANY_SIMULTANEOUS_REQUESTS",
	HOST_REQUEST_SUCCESS:           "HOST_REQUEST_SUCCESS",
	HOST_REQUEST_FAILED:            "HOST_REQUEST_FAILED",
}

func (r ResultCode) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return "RESULT(0x" + strconv.FormatUint(uint64(r), 16) + ")"
}

// IsSuccess reports whether r is one of the success codes.
func (r ResultCode) IsSuccess() bool { return r == SUCCESS || r == HOST_REQUEST_SUCCESS }

// VifType is the firmware's virtual interface type.
type VifType uint16

const (
	VifStation VifType = iota
	VifAP
	VifUnsync
	VifP2PGO
	VifP2PClient
	VifNAN
	VifMonitor
)

func (t VifType) String() string {
	switch t {
	case VifStation:
		return "station"
	case VifAP:
		return "ap"
	case VifUnsync:
		return "unsync"
	case VifP2PGO:
		return "p2p-go"
	case VifP2PClient:
		return "p2p-client"
	case VifNAN:
		return "nan"
	case VifMonitor:
		return "monitor"
	}
	return "vif(" + strconv.Itoa(int(t)) + ")"
}

// IsAPLike reports whether the vif type beacons and hosts client peers.
func (t VifType) IsAPLike() bool { return t == VifAP || t == VifP2PGO }

// IsStationLike reports whether the vif type associates to a BSS.
func (t VifType) IsStationLike() bool { return t == VifStation || t == VifP2PClient }

type ScanType uint16

const (
	ScanTypeFull ScanType = iota + 1
	ScanTypeSched
	ScanTypeGScan
	ScanTypeP2PFull
	ScanTypeObss
)

func (t ScanType) String() string {
	switch t {
	case ScanTypeFull:
		return "full"
	case ScanTypeSched:
		return "sched"
	case ScanTypeGScan:
		return "gscan"
	case ScanTypeP2PFull:
		return "p2p-full"
	case ScanTypeObss:
		return "obss"
	}
	return "scantype(" + strconv.Itoa(int(t)) + ")"
}

// Scan report mode bits.
const (
	ReportModeEndOfScan   uint16 = 1 << 0
	ReportModeRealTime    uint16 = 1 << 1
	ReportModeNoBatch     uint16 = 1 << 2
	ReportModeBSSIDChange uint16 = 1 << 3
)

type ProcedureType uint16

const (
	ProcedureConnectionStarted ProcedureType = iota + 1
	ProcedureDeviceDiscovered
	ProcedureRoamingStarted
)

type TDLSEvent uint16

const (
	TDLSEventDiscovered TDLSEvent = iota + 1
	TDLSEventConnected
	TDLSEventDisconnected
)

func (e TDLSEvent) String() string {
	switch e {
	case TDLSEventDiscovered:
		return "discovered"
	case TDLSEventConnected:
		return "connected"
	case TDLSEventDisconnected:
		return "disconnected"
	}
	return "tdls-event(" + strconv.Itoa(int(e)) + ")"
}

type TDLSAction uint16

const (
	TDLSActionDiscovery TDLSAction = iota
	TDLSActionSetup
	TDLSActionTeardown
	TDLSActionChannelSwitch
)

// TransmissionStatus is reported by MLME_FRAME_TRANSMISSION_IND.
type TransmissionStatus uint16

const (
	TxSuccessful TransmissionStatus = iota
	TxRetryLimit
	TxLifetime
	TxNoBSS
	TxExcessiveDataLength
	TxUnavailableKeyMapping
	TxUnspecifiedFailure
)

type AuthType uint16

const (
	AuthOpenSystem AuthType = 0
	AuthSharedKey  AuthType = 1
	AuthSAE        AuthType = 3
)

type KeyType uint16

const (
	KeyGroup KeyType = iota
	KeyPairwise
	KeyPairwiseAndGroup
	KeyWEP
	KeyIGTK
)

// DataUnitDescriptor distinguishes frame formats carried in signal data.
type DataUnitDescriptor uint16

const (
	DescriptorIEEE8023  DataUnitDescriptor = 0
	DescriptorIEEE80211 DataUnitDescriptor = 1
)

// MessageType tags frames sent with MLME_SEND_FRAME_REQ and MA_UNITDATA_REQ.
type MessageType uint16

const (
	MessageTypeOther MessageType = iota
	MessageTypeEAPOLKeyM123
	MessageTypeEAPOLKeyM4
	MessageTypeEAP
	MessageTypeDHCP
	MessageTypeARP
	MessageTypeMgmt
)

// Reason codes. 802.11 codes are below 0x8000, vendor codes above.
const (
	ReasonUnspecified        uint16 = 1
	ReasonDeauthLeaving      uint16 = 3
	ReasonDisassocInactivity uint16 = 4
	ReasonMaxClientReached   uint16 = 0x8004
	ReasonHostInternal       uint16 = 0x8005
)

type PowerMode uint16

const (
	PowerActive PowerMode = iota
	PowerSave
)

// Purpose tags MLME_ADD_INFO_ELEMENTS_REQ.
type Purpose uint16

const (
	PurposeBeacon Purpose = iota + 1
	PurposeProbeRequest
	PurposeProbeResponse
	PurposeAssociationRequest
	PurposeAssociationResponse
)

// ACL policies.
const (
	ACLPolicyAllow uint16 = iota
	ACLPolicyDeny
)

// BlockAck session actions.
const (
	BlockackSetup  uint16 = 0
	BlockackDelete uint16 = 1
)

// NAN event kinds reported by MLME_NAN_EVENT_IND.
const (
	NANEventDiscoveryEngine uint16 = iota + 1
	NANEventPublishTerminated
	NANEventSubscribeTerminated
	NANEventClusterJoined
)
