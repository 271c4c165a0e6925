package dot11

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/gopacket/layers"
)

var testBSSID = [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}

func ies(elems ...[]byte) []byte {
	var b []byte
	for _, e := range elems {
		b = append(b, e...)
	}
	return b
}

func TestReplaceSSID(t *testing.T) {
	orig := ies(
		[]byte{0, 0},             // Hidden SSID.
		[]byte{1, 2, 0x82, 0x84}, // Rates.
		[]byte{3, 1, 6},          // DS parameter set.
	)
	got, err := ReplaceSSID(orig, []byte("Home"))
	if err != nil {
		t.Fatal(err)
	}
	want := ies(
		[]byte{0, 4, 'H', 'o', 'm', 'e'},
		[]byte{1, 2, 0x82, 0x84},
		[]byte{3, 1, 6},
	)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
	if orig[1] != 0 {
		t.Error("original elements mutated")
	}
}

func TestReplaceSSIDPrepends(t *testing.T) {
	got, err := ReplaceSSID([]byte{3, 1, 11}, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0, 1, 'x', 3, 1, 11}) {
		t.Errorf("got %x", got)
	}
}

func TestWalkRejectsTruncated(t *testing.T) {
	err := Walk([]byte{0, 5, 'a'}, func(*layers.Dot11InformationElement) bool { return true })
	if err == nil {
		t.Error("expected error for truncated element")
	}
	if _, ok := Find([]byte{0, 5, 'a'}, layers.Dot11InformationElementIDSSID); ok {
		t.Error("found truncated element")
	}
}

func TestSSIDAndHidden(t *testing.T) {
	frame := NewBeacon(false, testBSSID, 100, ies([]byte{0, 3, 0, 0, 0}, []byte{3, 1, 1}))
	if !IsBeacon(frame) || IsProbeResp(frame) {
		t.Fatal("frame type")
	}
	if BSSID(frame) != testBSSID {
		t.Error("bssid")
	}
	if BeaconInterval(frame) != 100 {
		t.Error("interval")
	}
	body, err := BeaconIEs(frame)
	if err != nil {
		t.Fatal(err)
	}
	ssid, ok := SSID(body)
	if !ok || !IsHiddenSSID(ssid) {
		t.Errorf("ssid %x hidden=%v", ssid, IsHiddenSSID(ssid))
	}
	if IsHiddenSSID([]byte("Home")) {
		t.Error("visible ssid reported hidden")
	}
}

func TestSecurityIE(t *testing.T) {
	rsn := []byte{48, 2, 1, 0}
	wapi := []byte{68, 2, 1, 0}
	body := ies([]byte{0, 1, 'a'}, rsn, wapi)
	if got, ok := SecurityIE(body, false); !ok || !bytes.Equal(got, rsn) {
		t.Errorf("rsn: %x", got)
	}
	if got, ok := SecurityIE(body, true); !ok || !bytes.Equal(got, wapi) {
		t.Errorf("wapi: %x", got)
	}
}

func TestWMM(t *testing.T) {
	param := []byte{221, 24, 0x00, 0x50, 0xf2, 0x02, 0x01, 0x01, 0x80, 0x00,
		0x03, 0xa4, 0x00, 0x00, // BE
		0x27, 0xa4, 0x00, 0x00, // BK
		0x52, 0x43, 0x5e, 0x00, // VI, ACM set.
		0x72, 0x32, 0x2f, 0x00, // VO, ACM set.
	}
	mask, ok := ACMMask(ies([]byte{0, 0}, []byte{221, 3, 1, 2, 3}, param))
	if !ok {
		t.Fatal("wmm parameter element not found")
	}
	if want := uint8(1<<ACVideo | 1<<ACVoice); mask != want {
		t.Errorf("acm mask %08b, want %08b", mask, want)
	}
	qos, ok := WMMQoSInfo(WMMInfoElement(0x0f))
	if !ok || qos != 0x0f {
		t.Fatalf("qos info %x", qos)
	}
	if UAPSDMask(0x03) != 1<<ACVoice|1<<ACVideo {
		t.Error("uapsd mask")
	}
}

func TestP2PPublicSubtype(t *testing.T) {
	frame := NewMgmtHeader(layers.Dot11TypeMgmtAction, testBSSID, testBSSID, testBSSID)
	frame = append(frame, CategoryPublic, 9, 0x50, 0x6f, 0x9a, 0x09, P2PProvDiscReq, 1)
	if got := P2PPublicSubtype(frame); got != P2PProvDiscReq {
		t.Errorf("subtype %d", got)
	}
	if !P2PExpectsResponse(P2PProvDiscReq) || P2PExpectsResponse(P2PGONegConf) {
		t.Error("expects response")
	}
}

func eapolKeyFrame(info uint16) []byte {
	f := make([]byte, 14+4+95)
	binary.BigEndian.PutUint16(f[12:], EtherTypeEAPOL)
	f[14] = 2 // Version.
	f[15] = 3 // Type key.
	binary.BigEndian.PutUint16(f[16:], 95)
	f[18] = 2 // RSN descriptor.
	binary.BigEndian.PutUint16(f[19:], info)
	return f
}

func TestClassifyEAPOL(t *testing.T) {
	for _, tc := range []struct {
		info uint16
		want FrameKind
	}{
		{keyInfoPairwise | keyInfoAck, KindEAPOLKeyM1},
		{keyInfoPairwise | keyInfoMIC, KindEAPOLKeyM2},
		{keyInfoPairwise | keyInfoAck | keyInfoMIC | keyInfoInstall | keyInfoSecure, KindEAPOLKeyM3},
		{keyInfoPairwise | keyInfoMIC | keyInfoSecure, KindEAPOLKeyM4},
		{keyInfoAck | keyInfoMIC | keyInfoSecure, KindEAPOLKeyGroup},
	} {
		got := Classify(eapolKeyFrame(tc.info)).Kind
		if got != tc.want {
			t.Errorf("info %#x: got %v, want %v", tc.info, got, tc.want)
		}
	}
	if !KindEAPOLKeyM4.IsEAPOLKey() || KindEAP.IsEAPOLKey() {
		t.Error("IsEAPOLKey")
	}
}

func TestClassifyOther(t *testing.T) {
	if got := Classify([]byte{1, 2, 3}).Kind; got != KindOther {
		t.Errorf("short frame: %v", got)
	}
	f := make([]byte, 60)
	binary.BigEndian.PutUint16(f[12:], 0x86dd)
	if got := Classify(f).Kind; got != KindOther {
		t.Errorf("ipv6: %v", got)
	}
}

func TestMACString(t *testing.T) {
	if got := MACString(testBSSID); got != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("got %q", got)
	}
	if got := MACString([6]byte{0x02, 0, 0x0a}); got != "02:00:0a:00:00:00" {
		t.Errorf("got %q", got)
	}
}
