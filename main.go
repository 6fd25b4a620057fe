// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linein/cmd"
	"linein/internal/audio"
	"linein/internal/build"
	"linein/internal/config"
	"linein/internal/log"
	"linein/internal/monitor"
	"linein/internal/transport"
	"linein/internal/transport/udp"
	"linein/internal/tui"
)

// tuiLogFile receives log output while the terminal UI owns the screen.
const tuiLogFile = "linein.log"

// main is the entry point. Startup parses the command line and opens the
// audio host; one-off commands (list) return immediately. The monitor
// commands then run until the user quits or a termination signal arrives,
// and shutdown stops the stream before the host is released.
func main() {
	if err := build.Initialize(); err != nil {
		log.Debugf("Build: development build (%v)", err)
	}

	options, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if options.Command == cmd.CommandNone {
		return
	}

	cfg := options.Config
	log.SetLevel(cfg.Level())

	host, sampleRate, err := openHost(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := host.Close(); err != nil {
			log.Errorf("Error closing audio host: %v", err)
		}
	}()

	switch options.Command {
	case cmd.CommandList:
		listDevices(os.Stdout, audio.NewRegistry(host))
	case cmd.CommandRun:
		err = runHeadless(host, sampleRate, options)
	case cmd.CommandTUI:
		err = runTUI(host, sampleRate, options)
	}
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

// openHost creates the configured backend and resolves the stream rate.
// The file backend replays at the file's own rate unless one was set.
func openHost(cfg *config.Config) (audio.Host, float64, error) {
	sampleRate := cfg.Audio.SampleRate
	switch cfg.Audio.Backend {
	case config.BackendMiniaudio:
		h, err := audio.NewMiniaudioHost()
		return h, sampleRate, err
	case config.BackendFile:
		h, err := audio.NewFileHost(cfg.Audio.InputFile)
		if err != nil {
			return nil, 0, err
		}
		if sampleRate == 0 {
			sampleRate = h.SampleRate()
		}
		return h, sampleRate, nil
	default:
		h, err := audio.NewPortAudioHost()
		return h, sampleRate, err
	}
}

func listDevices(w io.Writer, reg *audio.Registry) {
	audio.PrintDevices(w, "Input devices", reg.ListInputDevices())
	audio.PrintDevices(w, "Output devices", reg.ListOutputDevices())
}

// openSinks builds the frame transports enabled in the config. The logging
// transport is only used headless.
func openSinks(cfg *config.Config, withLogging bool) (transport.Multi, error) {
	var sinks transport.Multi
	if withLogging {
		sinks = append(sinks, transport.NewLoggingTransport())
	}
	if cfg.Transport.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr)
		if err != nil {
			return nil, errors.Join(err, sinks.Close())
		}
		log.Infof("Transport: websocket frames on ws://%s/ws", ws.Addr())
		sinks = append(sinks, ws)
	}
	if cfg.Transport.UDPEnabled {
		pub, err := udp.Dial(cfg.Transport.UDPTargetAddress, cfg.Transport.UDPSendInterval)
		if err != nil {
			return nil, errors.Join(err, sinks.Close())
		}
		log.Infof("Transport: UDP frame packets to %s", cfg.Transport.UDPTargetAddress)
		sinks = append(sinks, pub)
	}
	return sinks, nil
}

func newSession(host audio.Host, sampleRate float64, options *cmd.Options, sinks transport.Transport) (*monitor.Session, error) {
	cfg := options.Config
	opts := monitor.DefaultOptions(sampleRate, cfg.Audio.BlockSize)
	opts.LowLatency = cfg.Audio.LowLatency
	opts.Interval = cfg.Analysis.Interval
	opts.InputDevice = cfg.Audio.InputDevice
	opts.InputName = options.InputName
	opts.OutputDevice = cfg.Audio.OutputDevice
	opts.OutputName = options.OutputName
	opts.Loopback = cfg.Audio.Loopback
	opts.Analysis = cfg.AnalyzerConfig(sampleRate, cfg.Audio.BlockSize)

	return monitor.New(host, opts, sinks, audio.WithStallTimeout(cfg.Audio.StallTimeout))
}

// runHeadless monitors until SIGINT/SIGTERM or until the stream is lost.
func runHeadless(host audio.Host, sampleRate float64, options *cmd.Options) error {
	sinks, err := openSinks(options.Config, true)
	if err != nil {
		return err
	}
	session, err := newSession(host, sampleRate, options, sinks)
	if err != nil {
		return errors.Join(err, sinks.Close())
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Errorf("Error closing session: %v", err)
		}
	}()

	if err := session.Start(); err != nil {
		return err
	}
	st := session.Status()
	log.Infof("Monitoring %q at %.0f Hz, %d frames per block (loopback %v)",
		st.Input.Name, sampleRate, options.Config.Audio.BlockSize, st.Loopback)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := time.NewTicker(500 * time.Millisecond)
	defer health.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down")
			return nil
		case <-health.C:
			if err := session.Status().Err; err != nil {
				return fmt.Errorf("monitoring stopped: %w", err)
			}
		}
	}
}

// runTUI hands the session to the terminal UI. Logs go to a file so they
// do not tear the alternate screen.
func runTUI(host audio.Host, sampleRate float64, options *cmd.Options) error {
	if options.Verbose {
		f, err := os.OpenFile(tuiLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		log.SetOutput(f)
	} else {
		log.SetOutput(io.Discard)
	}

	sinks, err := openSinks(options.Config, false)
	if err != nil {
		return err
	}
	session, err := newSession(host, sampleRate, options, sinks)
	if err != nil {
		return errors.Join(err, sinks.Close())
	}
	defer session.Close()

	if options.Config.Audio.Loopback {
		if err := session.SetLoopback(true); err != nil {
			log.Warnf("Loopback unavailable: %v", err)
		}
	}

	reg := session.Registry()
	return tui.Run(session, reg.ListInputDevices(), reg.ListOutputDevices())
}
