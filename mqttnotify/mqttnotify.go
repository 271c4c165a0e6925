// Package mqttnotify publishes connection and scan events of an slsi.Device
// to an MQTT broker as JSON messages.
//
// Events are encoded while Notify runs and are published from the goroutine
// running Run, so Notify never blocks on the network. Events arriving while
// the queue is full are dropped and counted.
package mqttnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	mqtt "github.com/soypat/natiu-mqtt"
	"github.com/soypat/slsi"
	"github.com/soypat/slsi/dot11"
)

var errNotConnected = errors.New("mqttnotify: broker refused connection")

// Config configures a Publisher.
type Config struct {
	// ClientID identifies the publisher to the broker.
	ClientID string
	// Topic prefixes every topic. Messages go to "<Topic>/<vif>/<kind>".
	Topic string
	// QueueLen bounds the number of events awaiting publication.
	QueueLen int
	Logger   *slog.Logger
}

type message struct {
	topic   string
	payload []byte
}

// Publisher is an slsi.Notifier forwarding events to MQTT.
type Publisher struct {
	cfg     Config
	queue   chan message
	dropped atomic.Uint64
	// next is passed the events Publisher does not encode. May be nil.
	next slsi.Notifier
}

// New returns a publisher. Events the publisher does not encode are handed
// to next when it is not nil.
func New(cfg Config, next slsi.Notifier) *Publisher {
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = 64
	}
	if cfg.Topic == "" {
		cfg.Topic = "slsi"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "slsi"
	}
	return &Publisher{
		cfg:   cfg,
		queue: make(chan message, cfg.QueueLen),
		next:  next,
	}
}

// Dropped returns the number of events discarded on a full queue.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Notify implements slsi.Notifier.
func (p *Publisher) Notify(ev slsi.Event) {
	kind, body := encode(ev)
	if body == nil {
		if p.next != nil {
			p.next.Notify(ev)
		}
		return
	}
	payload, err := json.Marshal(body)
	if err != nil {
		p.logerr("mqtt:encode", slog.String("kind", kind), slog.String("err", err.Error()))
		return
	}
	m := message{topic: fmt.Sprintf("%s/%d/%s", p.cfg.Topic, ev.VIF(), kind), payload: payload}
	select {
	case p.queue <- m:
	default:
		p.dropped.Add(1)
	}
}

// Run connects to the broker over conn and publishes queued events until ctx
// is done or the connection fails. conn is closed on return.
func (p *Publisher) Run(ctx context.Context, conn io.ReadWriteCloser) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 512)},
		OnPub: func(mqtt.Header, mqtt.VariablesPublish, io.Reader) error {
			return nil
		},
	})
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(p.cfg.ClientID))
	err := client.StartConnect(conn, &varconn)
	if err != nil {
		return p.exitErr(ctx, fmt.Errorf("mqttnotify: connect: %w", err))
	}
	// Read the CONNACK.
	err = client.HandleNext()
	if err != nil {
		return p.exitErr(ctx, fmt.Errorf("mqttnotify: connack: %w", err))
	}
	if !client.IsConnected() {
		return p.exitErr(ctx, errors.Join(errNotConnected, client.Err()))
	}
	p.info("mqtt:connected", slog.String("client", p.cfg.ClientID))

	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		return err
	}
	var packetID uint16
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-p.queue:
			packetID++
			vp := mqtt.VariablesPublish{TopicName: []byte(m.topic), PacketIdentifier: packetID}
			err = client.PublishPayload(flags, vp, m.payload)
			if err != nil {
				return p.exitErr(ctx, fmt.Errorf("mqttnotify: publish %s: %w", m.topic, err))
			}
			p.debug("mqtt:published", slog.String("topic", m.topic), slog.Int("len", len(m.payload)))
		}
	}
}

// exitErr reports ctx's error instead of the one caused by closing conn.
func (p *Publisher) exitErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.logerr("mqtt:run", slog.String("err", err.Error()))
	return err
}

type connectMsg struct {
	BSSID    string `json:"bssid"`
	Status   uint16 `json:"status"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

type roamMsg struct {
	BSSID string `json:"bssid"`
	Freq  uint16 `json:"freq"`
}

type disconnectMsg struct {
	BSSID  string `json:"bssid"`
	Reason uint16 `json:"reason"`
	Local  bool   `json:"local"`
}

type stationMsg struct {
	Peer   string `json:"peer"`
	Reason uint16 `json:"reason,omitempty"`
}

type bssMsg struct {
	BSSID     string `json:"bssid"`
	Freq      uint16 `json:"freq"`
	RSSI      int16  `json:"rssi"`
	ProbeResp bool   `json:"probe_resp,omitempty"`
}

type scanDoneMsg struct {
	Slot    uint8 `json:"slot"`
	Aborted bool  `json:"aborted,omitempty"`
}

type channelMsg struct {
	Freq   uint16 `json:"freq"`
	Center uint16 `json:"center"`
	Width  uint16 `json:"width"`
}

// encode returns the topic kind and JSON body of ev, or a nil body for
// events not published.
func encode(ev slsi.Event) (kind string, body any) {
	switch e := ev.(type) {
	case slsi.ConnectResult:
		return "connect", connectMsg{BSSID: dot11.MACString(e.BSSID), Status: uint16(e.Status), TimedOut: e.TimedOut}
	case slsi.Roamed:
		return "roam", roamMsg{BSSID: dot11.MACString(e.BSSID), Freq: e.Freq}
	case slsi.Disconnected:
		return "disconnect", disconnectMsg{BSSID: dot11.MACString(e.BSSID), Reason: e.Reason, Local: e.LocallyGenerated}
	case slsi.NewStation:
		return "station/new", stationMsg{Peer: dot11.MACString(e.Peer)}
	case slsi.DelStation:
		return "station/del", stationMsg{Peer: dot11.MACString(e.Peer), Reason: e.Reason}
	case slsi.BSSFound:
		return "scan/bss", bssMsg{BSSID: dot11.MACString(e.BSSID), Freq: e.Freq, RSSI: e.RSSI, ProbeResp: e.ProbeResp}
	case slsi.ScanDone:
		return "scan/done", scanDoneMsg{Slot: uint8(e.Slot), Aborted: e.Aborted}
	case slsi.ChannelSwitched:
		return "channel", channelMsg{Freq: e.Channel.Freq, Center: e.Channel.CenterFreq, Width: uint16(e.Channel.Width)}
	}
	return "", nil
}

func (p *Publisher) info(msg string, attrs ...slog.Attr) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
	}
}

func (p *Publisher) debug(msg string, attrs ...slog.Attr) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}

func (p *Publisher) logerr(msg string, attrs ...slog.Attr) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
	}
}
