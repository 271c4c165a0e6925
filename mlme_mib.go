package slsi

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/soypat/slsi/fapi"
)

// MIBError lists the entries of a SET request the firmware refused.
type MIBError struct {
	Entries []fapi.MIBEntry
}

func (e *MIBError) Error() string {
	var sb strings.Builder
	sb.WriteString("slsi: mib set rejected:")
	for _, ent := range e.Entries {
		sb.WriteByte(' ')
		sb.WriteString(ent.PSID.String())
	}
	return sb.String()
}

func (e *MIBError) Unwrap() error { return ErrInvalidArgument }

// SetMIB writes entries to the firmware's information base.
func (d *Device) SetMIB(entries ...fapi.MIBEntry) error {
	if len(entries) == 0 {
		return nil
	}
	b := fapi.NewBuilder(fapi.MLME_SET_REQ, 0)
	for _, e := range entries {
		b.AppendMIB(e)
	}
	sig, err := seal(b)
	if err != nil {
		return err
	}
	cfm, mibErr, err := d.reqSet(d.global, sig)
	if err != nil {
		return err
	}
	if mibErr != nil {
		defer mibErr.Free()
		failed, derr := fapi.DecodeMIB(mibErr.Data())
		if derr != nil {
			cfm.Free()
			d.metrics.failure(fapi.MLME_SET_REQ, "decode")
			d.logerr("set-mib:decode", slog.String("err", derr.Error()))
			return fmt.Errorf("%w: mib set rejection: %v", ErrIO, derr)
		}
		if len(failed) > 0 {
			cfm.Free()
			d.metrics.failure(fapi.MLME_SET_REQ, "result")
			d.logerr("set-mib:rejected", slog.Int("entries", len(failed)), sigAttr("first", failed[0].PSID))
			return &MIBError{Entries: cloneMIB(failed)}
		}
	}
	return d.checkCfm(cfm)
}

// GetMIB reads the entries named by psids.
func (d *Device) GetMIB(psids ...fapi.PSID) ([]fapi.MIBEntry, error) {
	b := fapi.NewBuilder(fapi.MLME_GET_REQ, 0)
	for _, p := range psids {
		b.AppendMIB(fapi.MIBGetEntry(p))
	}
	sig, err := seal(b)
	if err != nil {
		return nil, err
	}
	cfm, err := d.reqCfm(d.global, sig, fapi.MLME_GET_CFM)
	if err != nil {
		return nil, err
	}
	defer cfm.Free()
	if r := cfm.Result(); !r.IsSuccess() {
		d.metrics.failure(fapi.MLME_GET_REQ, "result")
		return nil, &ResultError{Signal: cfm.ID(), Result: r}
	}
	entries, err := fapi.DecodeMIB(cfm.Data())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return cloneMIB(entries), nil
}

// GetMIBUint reads a single unsigned entry.
func (d *Device) GetMIBUint(psid fapi.PSID) (uint32, error) {
	entries, err := d.GetMIB(psid)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.PSID == psid && e.Kind != fapi.MIBNone {
			return e.Uint, nil
		}
	}
	return 0, fmt.Errorf("%w: %v not returned", ErrIO, psid)
}

// cloneMIB detaches octet values from the confirmation they alias.
func cloneMIB(entries []fapi.MIBEntry) []fapi.MIBEntry {
	for i := range entries {
		if entries[i].Octets != nil {
			entries[i].Octets = append([]byte(nil), entries[i].Octets...)
		}
	}
	return entries
}

// SetCountry sets the regulatory domain from an ISO 3166 alpha-2 code.
func (d *Device) SetCountry(code string) error {
	if len(code) != 2 {
		return fmt.Errorf("%w: country code %q", ErrInvalidArgument, code)
	}
	cc := []byte(strings.ToUpper(code) + " ")
	d.info("set-country", slog.String("code", string(cc[:2])))
	return d.SetMIB(fapi.MIBOctetEntry(fapi.PSIDCountryCode, cc))
}

// Band selections of SetBand.
const (
	BandAuto uint32 = iota
	Band5GHz
	Band2GHz
)

// SetBand restricts operation to a band.
func (d *Device) SetBand(band uint32) error {
	if band > Band2GHz {
		return fmt.Errorf("%w: band %d", ErrInvalidArgument, band)
	}
	return d.SetMIB(fapi.MIBUintEntry(fapi.PSIDBand, band))
}

// SetCachedChannels tells the firmware which channels connection scans
// should visit first.
func (d *Device) SetCachedChannels(channels []fapi.Channel) error {
	b := fapi.NewBuilder(fapi.MLME_SET_CACHED_CHANNELS_REQ, 0)
	if len(channels) > 0 {
		b.BeginVendor(fapi.OUISamsung, fapi.VendorTypeFAPI, fapi.SubtypeChannelList)
		for _, ch := range channels {
			b.AppendU16(ch.FirmwareFreq())
			b.AppendU16(ch.Info())
		}
		b.EndElement()
	}
	sig, err := seal(b)
	if err != nil {
		return err
	}
	return d.cfmResult(d.reqCfm(d.global, sig, fapi.MLME_SET_CACHED_CHANNELS_CFM))
}
