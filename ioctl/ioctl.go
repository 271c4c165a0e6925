// Package ioctl implements the driver private command interface: flat
// "COMMAND ARG..." strings as issued by the user space Wi-Fi framework,
// dispatched to MLME requests of an slsi.Device.
//
// Commands are matched case-insensitively against a fixed table of
// keywords. A keyword matches when the command starts with it and is
// followed by the end of the string or whitespace. Unknown commands fail
// with slsi.ErrNotSupported. A set of commands the framework always issues
// is accepted without action.
package ioctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/google/shlex"
	"github.com/soypat/slsi"
	"github.com/soypat/slsi/fapi"
)

// MaxCommandLen bounds both the command and the reply, matching the size of
// the user space buffer.
const MaxCommandLen = 4096

var (
	errTooLong   = errors.New("ioctl: command exceeds buffer")
	errArgs      = errors.New("ioctl: bad arguments")
	errNeedVIF   = errors.New("ioctl: command needs a vif")
	errVIFType   = errors.New("ioctl: command not valid on vif type")
	errEmptyCmd  = errors.New("ioctl: empty command")
	errReplySize = errors.New("ioctl: reply exceeds buffer")
)

// handler runs one command. v is nil when the command was issued without
// an interface. args excludes the keyword.
type handler func(d *Dispatcher, v *slsi.VIF, args []string) (string, error)

type command struct {
	name string
	run  handler
}

// Dispatcher executes commands against a device. It is safe for
// concurrent use; commands run one at a time.
type Dispatcher struct {
	mu  sync.Mutex
	dev *slsi.Device
	log *slog.Logger
	// sapChannels is the ACS channel list set by SET_SAP_CHANNEL_LIST.
	sapChannels []fapi.Channel
	table       []command
}

// New returns a dispatcher for dev. logger may be nil.
func New(dev *slsi.Device, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{dev: dev, log: logger}
	d.table = commandTable()
	return d
}

// Exec runs cmd on the vif ifnum, or without an interface when ifnum is
// 0, and returns the reply string. Errors wrap the slsi error classes.
func (d *Dispatcher) Exec(ifnum uint16, cmd string) (string, error) {
	if len(cmd) > MaxCommandLen {
		return "", fmt.Errorf("%w: %w", slsi.ErrInvalidArgument, errTooLong)
	}
	cmd = strings.TrimRight(cmd, "\x00\r\n")
	cmd = strings.TrimLeftFunc(cmd, unicode.IsSpace)
	if cmd == "" {
		return "", fmt.Errorf("%w: %w", slsi.ErrInvalidArgument, errEmptyCmd)
	}
	c, ok := d.lookup(cmd)
	if !ok {
		d.warn("ioctl:unsupported", slog.String("cmd", keyword(cmd)))
		return "", fmt.Errorf("%w: %s", slsi.ErrNotSupported, keyword(cmd))
	}
	args, err := shlex.Split(cmd[len(c.name):])
	if err != nil {
		return "", fmt.Errorf("%w: %w: %v", slsi.ErrInvalidArgument, errArgs, err)
	}
	var v *slsi.VIF
	if ifnum != 0 {
		if v = d.dev.VIF(ifnum); v == nil {
			return "", fmt.Errorf("%w: no vif %d", slsi.ErrInvalidArgument, ifnum)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.debug("ioctl:exec", slog.String("cmd", c.name), slog.Int("vif", int(ifnum)), slog.Int("args", len(args)))
	reply, err := c.run(d, v, args)
	if err != nil {
		d.warn("ioctl:failed", slog.String("cmd", c.name), slog.String("err", err.Error()))
		return "", err
	}
	if len(reply) > MaxCommandLen {
		return "", fmt.Errorf("%w: %w", slsi.ErrNoMemory, errReplySize)
	}
	return reply, nil
}

// lookup returns the table entry matching cmd. The token boundary keeps a
// keyword from matching commands it only prefixes.
func (d *Dispatcher) lookup(cmd string) (command, bool) {
	for _, c := range d.table {
		n := len(c.name)
		if len(cmd) < n || !strings.EqualFold(cmd[:n], c.name) {
			continue
		}
		if len(cmd) == n || unicode.IsSpace(rune(cmd[n])) {
			return c, true
		}
	}
	return command{}, false
}

// SAPChannels returns the channel list last set for automatic channel
// selection of soft AP interfaces.
func (d *Dispatcher) SAPChannels() []fapi.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]fapi.Channel(nil), d.sapChannels...)
}

func keyword(cmd string) string {
	if i := strings.IndexFunc(cmd, unicode.IsSpace); i >= 0 {
		cmd = cmd[:i]
	}
	if len(cmd) > 64 {
		cmd = cmd[:64]
	}
	return strings.ToUpper(cmd)
}

func (d *Dispatcher) warn(msg string, attrs ...slog.Attr) {
	if d.log != nil {
		d.log.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
	}
}

func (d *Dispatcher) debug(msg string, attrs ...slog.Attr) {
	if d.log != nil {
		d.log.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}
