// slsictl boots the driver against the simulated firmware and runs driver
// private commands read from the command line or standard input, printing
// each reply.
//
//	slsictl -f lab.yaml -c "COUNTRY KR" -c "GETBAND"
//	echo "SETROAMTRIGGER -75" | slsictl -i 1
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soypat/slsi"
	"github.com/soypat/slsi/fwsim"
	"github.com/soypat/slsi/ioctl"
	"github.com/soypat/slsi/mqttnotify"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type flags struct {
	config   string
	commands []string
	ifnum    uint16
	verbose  int
}

func main() {
	var f flags
	flag.StringVarP(&f.config, "config", "f", "", "YAML configuration file.")
	flag.StringArrayVarP(&f.commands, "command", "c", nil, "Command to run. May be repeated. Standard input is read when absent.")
	flag.Uint16VarP(&f.ifnum, "vif", "i", 1, "Interface the commands are issued on, 0 for none.")
	flag.CountVarP(&f.verbose, "verbose", "v", "Log verbosity. Repeat for more.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "slsictl - run driver private commands against the firmware simulator.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := run(ctx, f, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "slsictl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags, stdin io.Reader, stdout io.Writer) error {
	fc, err := loadConfig(f.config)
	if err != nil {
		return err
	}
	level := slog.LevelWarn - slog.Level(4*f.verbose)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	grp, ctx := errgroup.WithContext(ctx)
	cfg := fc.deviceConfig()
	cfg.Logger = logger
	cfg.Notifier = slsi.NotifierFunc(func(ev slsi.Event) {
		logger.Info("event", slog.String("type", fmt.Sprintf("%T", ev)), slog.Int("vif", int(ev.VIF())))
	})
	var pub *mqttnotify.Publisher
	if fc.MQTT.Broker != "" {
		pub = mqttnotify.New(mqttnotify.Config{
			ClientID: fc.MQTT.ClientID,
			Topic:    fc.MQTT.Topic,
			Logger:   logger,
		}, cfg.Notifier)
		cfg.Notifier = pub
	}
	var reg *prometheus.Registry
	if fc.Metrics != "" {
		reg = prometheus.NewRegistry()
		cfg.Registerer = reg
	}

	fw := fwsim.New(logger)
	dev, err := slsi.New(fw, cfg)
	if err != nil {
		fw.Close()
		return err
	}
	fw.Start(dev)
	defer dev.Close()
	defer fw.Close()

	if pub != nil {
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", fc.MQTT.Broker)
		if err != nil {
			return fmt.Errorf("mqtt broker: %w", err)
		}
		grp.Go(func() error { return pub.Run(ctx, conn) })
	}
	if reg != nil {
		srv := &http.Server{Addr: fc.Metrics, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		grp.Go(func() error {
			err := srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		grp.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	cmdErr := func() error {
		if err := boot(dev, fc); err != nil {
			return err
		}
		return execAll(ctx, ioctl.New(dev, logger), f, stdin, stdout)
	}
	grp.Go(func() error {
		err := cmdErr()
		if err == nil {
			// Commands done, stop the publisher and metrics server.
			err = context.Canceled
		}
		return err
	})
	return grp.Wait()
}

func boot(dev *slsi.Device, fc fileConfig) error {
	for _, vc := range fc.VIFs {
		typ, addr, ch := vc.vif()
		if _, err := dev.AddVIF(typ, addr, ch); err != nil {
			return fmt.Errorf("add %s vif: %w", typ, err)
		}
	}
	if fc.Country != "" {
		return dev.SetCountry(fc.Country)
	}
	return nil
}

// execAll runs the flag commands, or each line of stdin when there are
// none. Command failures are printed and do not stop execution.
func execAll(ctx context.Context, d *ioctl.Dispatcher, f flags, stdin io.Reader, stdout io.Writer) error {
	exec := func(cmd string) {
		reply, err := d.Exec(f.ifnum, cmd)
		switch {
		case err != nil:
			fmt.Fprintf(stdout, "FAIL %s: %v\n", strings.TrimSpace(cmd), err)
		case reply == "":
			fmt.Fprintln(stdout, "OK")
		default:
			fmt.Fprintln(stdout, reply)
		}
	}
	if len(f.commands) > 0 {
		for _, cmd := range f.commands {
			exec(cmd)
		}
		return nil
	}
	sc := bufio.NewScanner(stdin)
	sc.Buffer(make([]byte, 0, 512), ioctl.MaxCommandLen+1)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		exec(line)
	}
	return sc.Err()
}
