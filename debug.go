package slsi

import (
	"context"
	"log/slog"

	"github.com/soypat/slsi/dot11"
)

const levelTrace slog.Level = slog.LevelDebug - 1

func (d *Device) logerr(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelError, msg, attrs...)
}

func (d *Device) warn(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelWarn, msg, attrs...)
}

func (d *Device) info(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelInfo, msg, attrs...)
}

func (d *Device) debug(msg string, attrs ...slog.Attr) {
	d.logattrs(slog.LevelDebug, msg, attrs...)
}

func (d *Device) trace(msg string, attrs ...slog.Attr) {
	d.logattrs(levelTrace, msg, attrs...)
}

func (d *Device) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if d.logger == nil {
		return
	}
	d.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func (d *Device) logenabled(level slog.Level) bool {
	return d.logger != nil && d.logger.Handler().Enabled(context.Background(), level)
}

func (d *Device) isTraceEnabled() bool { return d._traceenabled }

// Per vif helpers prefix the interface number.

func (v *VIF) warn(msg string, attrs ...slog.Attr) {
	v.d.warn(msg, append([]slog.Attr{slog.Int("vif", int(v.ifnum))}, attrs...)...)
}

func (v *VIF) info(msg string, attrs ...slog.Attr) {
	v.d.info(msg, append([]slog.Attr{slog.Int("vif", int(v.ifnum))}, attrs...)...)
}

func (v *VIF) debug(msg string, attrs ...slog.Attr) {
	if !v.d.logenabled(slog.LevelDebug) {
		return
	}
	v.d.debug(msg, append([]slog.Attr{slog.Int("vif", int(v.ifnum))}, attrs...)...)
}

func (v *VIF) logerr(msg string, attrs ...slog.Attr) {
	v.d.logerr(msg, append([]slog.Attr{slog.Int("vif", int(v.ifnum))}, attrs...)...)
}

func macAttr(key string, addr [6]byte) slog.Attr {
	return slog.String(key, dot11.MACString(addr))
}

func sigAttr(key string, id interface{ String() string }) slog.Attr {
	return slog.String(key, id.String())
}
