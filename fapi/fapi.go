// package fapi implements the host side of the firmware signal interface:
// signal identifiers, the wire header, signal field layouts and a builder
// for assembling request signals.
package fapi

import "strconv"

// Header layout. All multi-byte header and field values are little endian.
const (
	HeaderLen = 10
	// MaxSignalLen bounds a whole signal (header, fields and data).
	MaxSignalLen = 16 * 1024
)

// Process id range used to correlate requests with confirmations. 0 is
// reserved for "no request".
const (
	ProcessIDMin  = 0xC001
	ProcessIDMax  = 0xCF00
	ProcessIDData = 0 // Used for fire-and-forget data plane sends.
)

// SignalID is the 16 bit operation+direction code that starts every signal.
type SignalID uint16

// Service access points.
const (
	SAPMask  SignalID = 0xF000
	SAP_MA   SignalID = 0x1000
	SAP_MLME SignalID = 0x2000
	SAP_DBG  SignalID = 0x8000
)

// Signal directions.
const (
	DirMask SignalID = 0x0F00
	DirREQ  SignalID = 0x0000
	DirCFM  SignalID = 0x0100
	DirRES  SignalID = 0x0200
	DirIND  SignalID = 0x0300
)

func (id SignalID) SAP() SignalID       { return id & SAPMask }
func (id SignalID) Direction() SignalID { return id & DirMask }
func (id SignalID) IsReq() bool         { return id.Direction() == DirREQ }
func (id SignalID) IsCfm() bool         { return id.Direction() == DirCFM }
func (id SignalID) IsRes() bool         { return id.Direction() == DirRES }
func (id SignalID) IsInd() bool         { return id.Direction() == DirIND }

// Cfm returns the confirmation id matching request id.
func (id SignalID) Cfm() SignalID { return id&^DirMask | DirCFM }

// Data plane signals.
const (
	MA_UNITDATA_REQ SignalID = SAP_MA | DirREQ | 0x00
	MA_UNITDATA_CFM SignalID = SAP_MA | DirCFM | 0x00
	MA_UNITDATA_IND SignalID = SAP_MA | DirIND | 0x00
	MA_BLOCKACK_IND SignalID = SAP_MA | DirIND | 0x01
)

// MLME requests. The matching confirmation is REQ.Cfm().
const (
	MLME_GET_REQ                   SignalID = SAP_MLME | DirREQ | 0x01
	MLME_SET_REQ                   SignalID = SAP_MLME | DirREQ | 0x02
	MLME_ADD_VIF_REQ               SignalID = SAP_MLME | DirREQ | 0x03
	MLME_DEL_VIF_REQ               SignalID = SAP_MLME | DirREQ | 0x04
	MLME_CONNECT_REQ               SignalID = SAP_MLME | DirREQ | 0x05
	MLME_DISCONNECT_REQ            SignalID = SAP_MLME | DirREQ | 0x06
	MLME_SET_CHANNEL_REQ           SignalID = SAP_MLME | DirREQ | 0x07
	MLME_SETKEYS_REQ               SignalID = SAP_MLME | DirREQ | 0x08
	MLME_ADD_SCAN_REQ              SignalID = SAP_MLME | DirREQ | 0x09
	MLME_DEL_SCAN_REQ              SignalID = SAP_MLME | DirREQ | 0x0A
	MLME_ROAM_REQ                  SignalID = SAP_MLME | DirREQ | 0x0B
	MLME_REASSOCIATE_REQ           SignalID = SAP_MLME | DirREQ | 0x0C
	MLME_SET_PMK_REQ               SignalID = SAP_MLME | DirREQ | 0x0D
	MLME_REGISTER_ACTION_FRAME_REQ SignalID = SAP_MLME | DirREQ | 0x0E
	MLME_CHANNEL_SWITCH_REQ        SignalID = SAP_MLME | DirREQ | 0x0F
	MLME_SEND_FRAME_REQ            SignalID = SAP_MLME | DirREQ | 0x10
	MLME_SET_PACKET_FILTER_REQ     SignalID = SAP_MLME | DirREQ | 0x11
	MLME_SET_CACHED_CHANNELS_REQ   SignalID = SAP_MLME | DirREQ | 0x12
	MLME_SET_ACL_REQ               SignalID = SAP_MLME | DirREQ | 0x13
	MLME_TDLS_ACTION_REQ           SignalID = SAP_MLME | DirREQ | 0x14
	MLME_START_REQ                 SignalID = SAP_MLME | DirREQ | 0x15
	MLME_ADD_INFO_ELEMENTS_REQ     SignalID = SAP_MLME | DirREQ | 0x16
	MLME_GET_KEY_SEQUENCE_REQ      SignalID = SAP_MLME | DirREQ | 0x17
	MLME_POWERMGT_REQ              SignalID = SAP_MLME | DirREQ | 0x18
	MLME_NAN_START_REQ             SignalID = SAP_MLME | DirREQ | 0x19
	MLME_NAN_PUBLISH_REQ           SignalID = SAP_MLME | DirREQ | 0x1A
	MLME_NAN_SUBSCRIBE_REQ         SignalID = SAP_MLME | DirREQ | 0x1B
	MLME_NAN_FOLLOWUP_REQ          SignalID = SAP_MLME | DirREQ | 0x1C
	MLME_NAN_CONFIG_REQ            SignalID = SAP_MLME | DirREQ | 0x1D
	MLME_ADD_RANGE_REQ             SignalID = SAP_MLME | DirREQ | 0x1E
	MLME_DEL_RANGE_REQ             SignalID = SAP_MLME | DirREQ | 0x1F
	MLME_SET_BSSID_HOTLIST_REQ     SignalID = SAP_MLME | DirREQ | 0x20
	MLME_BLOCKACK_CONTROL_REQ      SignalID = SAP_MLME | DirREQ | 0x21
	MLME_SET_TX_POWER_REQ          SignalID = SAP_MLME | DirREQ | 0x22
)

// MLME confirmations.
const (
	MLME_GET_CFM                   = MLME_GET_REQ | DirCFM
	MLME_SET_CFM                   = MLME_SET_REQ | DirCFM
	MLME_ADD_VIF_CFM               = MLME_ADD_VIF_REQ | DirCFM
	MLME_DEL_VIF_CFM               = MLME_DEL_VIF_REQ | DirCFM
	MLME_CONNECT_CFM               = MLME_CONNECT_REQ | DirCFM
	MLME_DISCONNECT_CFM            = MLME_DISCONNECT_REQ | DirCFM
	MLME_SET_CHANNEL_CFM           = MLME_SET_CHANNEL_REQ | DirCFM
	MLME_SETKEYS_CFM               = MLME_SETKEYS_REQ | DirCFM
	MLME_ADD_SCAN_CFM              = MLME_ADD_SCAN_REQ | DirCFM
	MLME_DEL_SCAN_CFM              = MLME_DEL_SCAN_REQ | DirCFM
	MLME_ROAM_CFM                  = MLME_ROAM_REQ | DirCFM
	MLME_REASSOCIATE_CFM           = MLME_REASSOCIATE_REQ | DirCFM
	MLME_SET_PMK_CFM               = MLME_SET_PMK_REQ | DirCFM
	MLME_REGISTER_ACTION_FRAME_CFM = MLME_REGISTER_ACTION_FRAME_REQ | DirCFM
	MLME_CHANNEL_SWITCH_CFM        = MLME_CHANNEL_SWITCH_REQ | DirCFM
	MLME_SEND_FRAME_CFM            = MLME_SEND_FRAME_REQ | DirCFM
	MLME_SET_PACKET_FILTER_CFM     = MLME_SET_PACKET_FILTER_REQ | DirCFM
	MLME_SET_CACHED_CHANNELS_CFM   = MLME_SET_CACHED_CHANNELS_REQ | DirCFM
	MLME_SET_ACL_CFM               = MLME_SET_ACL_REQ | DirCFM
	MLME_TDLS_ACTION_CFM           = MLME_TDLS_ACTION_REQ | DirCFM
	MLME_START_CFM                 = MLME_START_REQ | DirCFM
	MLME_ADD_INFO_ELEMENTS_CFM     = MLME_ADD_INFO_ELEMENTS_REQ | DirCFM
	MLME_GET_KEY_SEQUENCE_CFM      = MLME_GET_KEY_SEQUENCE_REQ | DirCFM
	MLME_POWERMGT_CFM              = MLME_POWERMGT_REQ | DirCFM
	MLME_NAN_START_CFM             = MLME_NAN_START_REQ | DirCFM
	MLME_NAN_PUBLISH_CFM           = MLME_NAN_PUBLISH_REQ | DirCFM
	MLME_NAN_SUBSCRIBE_CFM         = MLME_NAN_SUBSCRIBE_REQ | DirCFM
	MLME_NAN_FOLLOWUP_CFM          = MLME_NAN_FOLLOWUP_REQ | DirCFM
	MLME_NAN_CONFIG_CFM            = MLME_NAN_CONFIG_REQ | DirCFM
	MLME_ADD_RANGE_CFM             = MLME_ADD_RANGE_REQ | DirCFM
	MLME_DEL_RANGE_CFM             = MLME_DEL_RANGE_REQ | DirCFM
	MLME_SET_BSSID_HOTLIST_CFM     = MLME_SET_BSSID_HOTLIST_REQ | DirCFM
	MLME_BLOCKACK_CONTROL_CFM      = MLME_BLOCKACK_CONTROL_REQ | DirCFM
	MLME_SET_TX_POWER_CFM          = MLME_SET_TX_POWER_REQ | DirCFM
)

// MLME responses. Responses are never confirmed.
const (
	MLME_CONNECT_RES     SignalID = SAP_MLME | DirRES | 0x01
	MLME_ROAMED_RES      SignalID = SAP_MLME | DirRES | 0x02
	MLME_REASSOCIATE_RES SignalID = SAP_MLME | DirRES | 0x03
	MLME_TDLS_PEER_RES   SignalID = SAP_MLME | DirRES | 0x04
)

// MLME indications.
const (
	MLME_SCAN_IND               SignalID = SAP_MLME | DirIND | 0x01
	MLME_SCAN_DONE_IND          SignalID = SAP_MLME | DirIND | 0x02
	MLME_CONNECT_IND            SignalID = SAP_MLME | DirIND | 0x03
	MLME_CONNECTED_IND          SignalID = SAP_MLME | DirIND | 0x04
	MLME_ROAMED_IND             SignalID = SAP_MLME | DirIND | 0x05
	MLME_REASSOCIATE_IND        SignalID = SAP_MLME | DirIND | 0x06
	MLME_DISCONNECT_IND         SignalID = SAP_MLME | DirIND | 0x07
	MLME_DISCONNECTED_IND       SignalID = SAP_MLME | DirIND | 0x08
	MLME_PROCEDURE_STARTED_IND  SignalID = SAP_MLME | DirIND | 0x09
	MLME_FRAME_TRANSMISSION_IND SignalID = SAP_MLME | DirIND | 0x0A
	MLME_RECEIVED_FRAME_IND     SignalID = SAP_MLME | DirIND | 0x0B
	MLME_TDLS_PEER_IND          SignalID = SAP_MLME | DirIND | 0x0C
	MLME_MIC_FAILURE_IND        SignalID = SAP_MLME | DirIND | 0x0D
	MLME_CHANNEL_SWITCHED_IND   SignalID = SAP_MLME | DirIND | 0x0E
	MLME_LISTEN_END_IND         SignalID = SAP_MLME | DirIND | 0x0F
	MLME_BLOCKACK_ERROR_IND     SignalID = SAP_MLME | DirIND | 0x10
	MLME_NAN_EVENT_IND          SignalID = SAP_MLME | DirIND | 0x11
	MLME_NAN_SERVICE_IND        SignalID = SAP_MLME | DirIND | 0x12
	MLME_NAN_FOLLOWUP_IND       SignalID = SAP_MLME | DirIND | 0x13
	MLME_RANGE_IND              SignalID = SAP_MLME | DirIND | 0x14
	MLME_RANGE_DONE_IND         SignalID = SAP_MLME | DirIND | 0x15
)

// Debug signals.
const (
	DEBUG_FAULT_IND SignalID = SAP_DBG | DirIND | 0x01
)

var signalNames = map[SignalID]string{
	MA_UNITDATA_REQ: "MA_UNITDATA_REQ",
	MA_UNITDATA_CFM: "MA_UNITDATA_CFM",
	MA_UNITDATA_IND: "MA_UNITDATA_IND",
	MA_BLOCKACK_IND: "MA_BLOCKACK_IND",

	MLME_GET_REQ:                   "MLME_GET_REQ",
	MLME_SET_REQ:                   "MLME_SET_REQ",
	MLME_ADD_VIF_REQ:               "MLME_ADD_VIF_REQ",
	MLME_DEL_VIF_REQ:               "MLME_DEL_VIF_REQ",
	MLME_CONNECT_REQ:               "MLME_CONNECT_REQ",
	MLME_DISCONNECT_REQ:            "MLME_DISCONNECT_REQ",
	MLME_SET_CHANNEL_REQ:           "MLME_SET_CHANNEL_REQ",
	MLME_SETKEYS_REQ:               "MLME_SETKEYS_REQ",
	MLME_ADD_SCAN_REQ:              "MLME_ADD_SCAN_REQ",
	MLME_DEL_SCAN_REQ:              "MLME_DEL_SCAN_REQ",
	MLME_ROAM_REQ:                  "MLME_ROAM_REQ",
	MLME_REASSOCIATE_REQ:           "MLME_REASSOCIATE_REQ",
	MLME_SET_PMK_REQ:               "MLME_SET_PMK_REQ",
	MLME_REGISTER_ACTION_FRAME_REQ: "MLME_REGISTER_ACTION_FRAME_REQ",
	MLME_CHANNEL_SWITCH_REQ:        "MLME_CHANNEL_SWITCH_REQ",
	MLME_SEND_FRAME_REQ:            "MLME_SEND_FRAME_REQ",
	MLME_SET_PACKET_FILTER_REQ:     "MLME_SET_PACKET_FILTER_REQ",
	MLME_SET_CACHED_CHANNELS_REQ:   "MLME_SET_CACHED_CHANNELS_REQ",
	MLME_SET_ACL_REQ:               "MLME_SET_ACL_REQ",
	MLME_TDLS_ACTION_REQ:           "MLME_TDLS_ACTION_REQ",
	MLME_START_REQ:                 "MLME_START_REQ",
	MLME_ADD_INFO_ELEMENTS_REQ:     "MLME_ADD_INFO_ELEMENTS_REQ",
	MLME_GET_KEY_SEQUENCE_REQ:      "MLME_GET_KEY_SEQUENCE_REQ",
	MLME_POWERMGT_REQ:              "MLME_POWERMGT_REQ",
	MLME_NAN_START_REQ:             "MLME_NAN_START_REQ",
	MLME_NAN_PUBLISH_REQ:           "MLME_NAN_PUBLISH_REQ",
	MLME_NAN_SUBSCRIBE_REQ:         "MLME_NAN_SUBSCRIBE_REQ",
	MLME_NAN_FOLLOWUP_REQ:          "MLME_NAN_FOLLOWUP_REQ",
	MLME_NAN_CONFIG_REQ:            "MLME_NAN_CONFIG_REQ",
	MLME_ADD_RANGE_REQ:             "MLME_ADD_RANGE_REQ",
	MLME_DEL_RANGE_REQ:             "MLME_DEL_RANGE_REQ",
	MLME_SET_BSSID_HOTLIST_REQ:     "MLME_SET_BSSID_HOTLIST_REQ",
	MLME_BLOCKACK_CONTROL_REQ:      "MLME_BLOCKACK_CONTROL_REQ",
	MLME_SET_TX_POWER_REQ:          "MLME_SET_TX_POWER_REQ",

	MLME_CONNECT_RES:     "MLME_CONNECT_RES",
	MLME_ROAMED_RES:      "MLME_ROAMED_RES",
	MLME_REASSOCIATE_RES: "MLME_REASSOCIATE_RES",
	MLME_TDLS_PEER_RES:   "MLME_TDLS_PEER_RES",

	MLME_SCAN_IND:               "MLME_SCAN_IND",
	MLME_SCAN_DONE_IND:          "MLME_SCAN_DONE_IND",
	MLME_CONNECT_IND:            "MLME_CONNECT_IND",
	MLME_CONNECTED_IND:          "MLME_CONNECTED_IND",
	MLME_ROAMED_IND:             "MLME_ROAMED_IND",
	MLME_REASSOCIATE_IND:        "MLME_REASSOCIATE_IND",
	MLME_DISCONNECT_IND:         "MLME_DISCONNECT_IND",
	MLME_DISCONNECTED_IND:       "MLME_DISCONNECTED_IND",
	MLME_PROCEDURE_STARTED_IND:  "MLME_PROCEDURE_STARTED_IND",
	MLME_FRAME_TRANSMISSION_IND: "MLME_FRAME_TRANSMISSION_IND",
	MLME_RECEIVED_FRAME_IND:     "MLME_RECEIVED_FRAME_IND",
	MLME_TDLS_PEER_IND:          "MLME_TDLS_PEER_IND",
	MLME_MIC_FAILURE_IND:        "MLME_MIC_FAILURE_IND",
	MLME_CHANNEL_SWITCHED_IND:   "MLME_CHANNEL_SWITCHED_IND",
	MLME_LISTEN_END_IND:         "MLME_LISTEN_END_IND",
	MLME_BLOCKACK_ERROR_IND:     "MLME_BLOCKACK_ERROR_IND",
	MLME_NAN_EVENT_IND:          "MLME_NAN_EVENT_IND",
	MLME_NAN_SERVICE_IND:        "MLME_NAN_SERVICE_IND",
	MLME_NAN_FOLLOWUP_IND:       "MLME_NAN_FOLLOWUP_IND",
	MLME_RANGE_IND:              "MLME_RANGE_IND",
	MLME_RANGE_DONE_IND:         "MLME_RANGE_DONE_IND",

	DEBUG_FAULT_IND: "DEBUG_FAULT_IND",
}

func (id SignalID) String() string {
	if s, ok := signalNames[id]; ok {
		return s
	}
	if id.IsCfm() {
		if s, ok := signalNames[id&^DirMask]; ok {
			return s[:len(s)-3] + "CFM"
		}
	}
	return "SIGNAL(0x" + strconv.FormatUint(uint64(id), 16) + ")"
}
