package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/soypat/slsi"
	"github.com/soypat/slsi/fapi"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

// fileConfig is the YAML configuration of slsictl. Zero durations and
// limits keep the driver defaults.
type fileConfig struct {
	ConfirmTimeout        time.Duration `yaml:"confirm_timeout"`
	IndicationTimeout     time.Duration `yaml:"indication_timeout"`
	ScanDoneTimeout       time.Duration `yaml:"scan_done_timeout"`
	ScanTimeout           time.Duration `yaml:"scan_timeout"`
	PanicOnMissingConfirm *bool         `yaml:"panic_on_missing_confirm"`
	MaxScanResults        int           `yaml:"max_scan_results"`
	MaxAPClients          int           `yaml:"max_ap_clients"`

	Country string      `yaml:"country"`
	VIFs    []vifConfig `yaml:"vifs"`
	MQTT    mqttConfig  `yaml:"mqtt"`
	Metrics string      `yaml:"metrics_addr"`
}

type vifConfig struct {
	Type string `yaml:"type"`
	Addr string `yaml:"addr"`
	// Channel is the IEEE channel number, 0 for none.
	Channel int `yaml:"channel"`
}

type mqttConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

var vifTypes = map[string]fapi.VifType{
	"station":    fapi.VifStation,
	"ap":         fapi.VifAP,
	"p2p-go":     fapi.VifP2PGO,
	"p2p-client": fapi.VifP2PClient,
	"nan":        fapi.VifNAN,
	"monitor":    fapi.VifMonitor,
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		VIFs: []vifConfig{{Type: "station", Addr: "02:00:00:00:00:01"}},
	}
}

func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c *fileConfig) validate() (err error) {
	seen := make(map[string]bool)
	for i, v := range c.VIFs {
		if _, ok := vifTypes[strings.ToLower(v.Type)]; !ok {
			err = multierr.Append(err, fmt.Errorf("vifs[%d]: unknown type %q", i, v.Type))
		}
		if _, perr := net.ParseMAC(v.Addr); perr != nil {
			err = multierr.Append(err, fmt.Errorf("vifs[%d]: %w", i, perr))
		} else if seen[strings.ToLower(v.Addr)] {
			err = multierr.Append(err, fmt.Errorf("vifs[%d]: duplicate address %s", i, v.Addr))
		}
		seen[strings.ToLower(v.Addr)] = true
		if v.Channel < 0 || (v.Channel != 0 && fapi.FreqOf(v.Channel) == 0) {
			err = multierr.Append(err, fmt.Errorf("vifs[%d]: bad channel %d", i, v.Channel))
		}
	}
	if len(c.VIFs) > slsi.MaxVIFs {
		err = multierr.Append(err, fmt.Errorf("at most %d vifs", slsi.MaxVIFs))
	}
	if c.Country != "" && len(c.Country) != 2 {
		err = multierr.Append(err, fmt.Errorf("country %q is not a two letter code", c.Country))
	}
	return err
}

// deviceConfig maps c onto the driver configuration.
func (c *fileConfig) deviceConfig() slsi.Config {
	cfg := slsi.DefaultConfig()
	setNonZero(&cfg.ConfirmTimeout, c.ConfirmTimeout)
	setNonZero(&cfg.IndicationTimeout, c.IndicationTimeout)
	setNonZero(&cfg.ScanDoneTimeout, c.ScanDoneTimeout)
	setNonZero(&cfg.ScanTimeout, c.ScanTimeout)
	setNonZero(&cfg.MaxScanResults, c.MaxScanResults)
	setNonZero(&cfg.MaxAPClients, c.MaxAPClients)
	if c.PanicOnMissingConfirm != nil {
		cfg.PanicOnMissingConfirm = *c.PanicOnMissingConfirm
	}
	return cfg
}

func setNonZero[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

// vif returns the parameters of AddVIF. c must have been validated.
func (v vifConfig) vif() (fapi.VifType, [6]byte, fapi.Channel) {
	var addr [6]byte
	hw, _ := net.ParseMAC(v.Addr)
	copy(addr[:], hw)
	var ch fapi.Channel
	if v.Channel != 0 {
		ch.Freq = fapi.FreqOf(v.Channel)
	}
	return vifTypes[strings.ToLower(v.Type)], addr, ch
}
