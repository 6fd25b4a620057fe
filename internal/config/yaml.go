// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"linein/internal/analysis"
	"linein/internal/log"
	"linein/pkg/bitint"
)

// Supported audio back-ends.
const (
	BackendPortAudio = "portaudio"
	BackendMiniaudio = "miniaudio"
	BackendFile      = "file"
)

// Hardware and processing limits.
const (
	DefaultDevice = -1 // Host default device
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MinBlockSize  = 64
	MaxBlockSize  = 8192
)

// DefaultPath is searched when no config path is given.
const DefaultPath = "config.yaml"

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug logging.
	LogLevel  string          `yaml:"log_level"` // "debug", "info", "warn", "error".
	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds settings related to audio input/output.
type AudioConfig struct {
	Backend      string        `yaml:"backend"`       // portaudio, miniaudio or file.
	InputDevice  int           `yaml:"input_device"`  // Host device index for capture (-1 for default).
	OutputDevice int           `yaml:"output_device"` // Host device index for loopback (-1 for default).
	Loopback     bool          `yaml:"loopback"`      // Mirror captured audio to the output device.
	SampleRate   float64       `yaml:"sample_rate"`   // Hz. 0 with the file backend uses the file's rate.
	BlockSize    int           `yaml:"block_size"`    // Frames per period and FFT size (power of 2).
	LowLatency   bool          `yaml:"low_latency"`   // Request the host's low latency suggestion.
	StallTimeout time.Duration `yaml:"stall_timeout"` // Silence before a stream counts as dropped (0 disables).
	InputFile    string        `yaml:"input_file"`    // WAV file replayed by the file backend.
}

// AnalysisConfig holds the spectral analyzer tuning.
type AnalysisConfig struct {
	Interval      time.Duration `yaml:"interval"`        // Analysis tick period.
	FloorHz       float64       `yaml:"floor_hz"`        // Bins below this are dropped.
	Threshold     float64       `yaml:"threshold"`       // Minimum normalized magnitude for a peak.
	VisibleLowHz  float64       `yaml:"visible_low_hz"`  // Peak search range, inclusive.
	VisibleHighHz float64       `yaml:"visible_high_hz"` //
	FFTWindow     string        `yaml:"fft_window"`      // "rectangular", "hann", "hamming", ...
}

// TransportConfig holds settings related to streaming frames over the network.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve frames to browsers.
	WebSocketAddr    string        `yaml:"websocket_addr"`     // Listen address, e.g. "localhost:8080".
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send frame packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Minimum spacing between packets.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Backend:      BackendPortAudio,
			InputDevice:  DefaultDevice,
			OutputDevice: DefaultDevice,
			SampleRate:   44100,
			BlockSize:    1024,
			StallTimeout: 2 * time.Second,
		},
		Analysis: AnalysisConfig{
			Interval:      10 * time.Millisecond,
			FloorHz:       analysis.DefaultFloorHz,
			Threshold:     analysis.DefaultThreshold,
			VisibleLowHz:  analysis.DefaultVisibleLow,
			VisibleHighHz: analysis.DefaultVisibleHigh,
			FFTWindow:     analysis.Rectangular.String(),
		},
		Transport: TransportConfig{
			WebSocketAddr:    "localhost:8080",
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // ~30Hz.
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches DefaultPath and falls back to built-in defaults. Environment overrides
// are applied afterwards, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects values no stream or analyzer could run with.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.LogLevel != "" {
		if _, ok := log.ParseLevel(c.LogLevel); !ok {
			add("log_level %q is not recognized", c.LogLevel)
		}
	}

	a := c.Audio
	switch a.Backend {
	case BackendPortAudio, BackendMiniaudio:
		if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
			add("audio.sample_rate %.0f is outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
		}
	case BackendFile:
		if a.InputFile == "" {
			add("audio.input_file must be set for the file backend")
		}
		if a.SampleRate != 0 && (a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate) {
			add("audio.sample_rate %.0f is outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
		}
	default:
		add("audio.backend %q is not one of %s, %s, %s", a.Backend, BackendPortAudio, BackendMiniaudio, BackendFile)
	}
	if !bitint.IsPowerOfTwo(a.BlockSize) {
		add("audio.block_size %d must be a power of 2 (nearest: %d)", a.BlockSize, bitint.NextPowerOfTwo(a.BlockSize))
	} else if a.BlockSize < MinBlockSize || a.BlockSize > MaxBlockSize {
		add("audio.block_size %d is outside [%d, %d]", a.BlockSize, MinBlockSize, MaxBlockSize)
	}
	if a.InputDevice < DefaultDevice {
		add("audio.input_device %d is invalid", a.InputDevice)
	}
	if a.OutputDevice < DefaultDevice {
		add("audio.output_device %d is invalid", a.OutputDevice)
	}
	if a.StallTimeout < 0 {
		add("audio.stall_timeout must not be negative")
	}

	an := c.Analysis
	if an.Interval <= 0 {
		add("analysis.interval must be positive")
	}
	if an.FloorHz < 0 {
		add("analysis.floor_hz must not be negative")
	}
	if an.Threshold < 0 {
		add("analysis.threshold must not be negative")
	}
	if an.VisibleLowHz < 0 || an.VisibleHighHz < an.VisibleLowHz {
		add("analysis visible window [%.0f, %.0f] is invalid", an.VisibleLowHz, an.VisibleHighHz)
	}
	if _, err := analysis.ParseWindowFunc(an.FFTWindow); err != nil {
		errs = append(errs, err)
	}

	t := c.Transport
	if t.WebSocketEnabled && t.WebSocketAddr == "" {
		add("transport.websocket_addr must be set when the websocket is enabled")
	}
	if t.UDPEnabled {
		if t.UDPTargetAddress == "" {
			add("transport.udp_target_address must be set when UDP is enabled")
		} else if !strings.Contains(t.UDPTargetAddress, ":") {
			add("transport.udp_target_address '%s' appears invalid (missing port?)", t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			add("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}

	return errors.Join(errs...)
}

// Level returns the effective log level; Debug wins over LogLevel.
func (c *Config) Level() log.LogLevel {
	if c.Debug {
		return log.LevelDebug
	}
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// Window returns the parsed FFT window, Rectangular if unknown.
func (c *Config) Window() analysis.WindowFunc {
	w, _ := analysis.ParseWindowFunc(c.Analysis.FFTWindow)
	return w
}

// AnalyzerConfig builds the analyzer settings for a stream.
func (c *Config) AnalyzerConfig(sampleRate float64, blockSize int) analysis.Config {
	return analysis.Config{
		SampleRate:  sampleRate,
		BlockSize:   blockSize,
		FloorHz:     c.Analysis.FloorHz,
		Threshold:   c.Analysis.Threshold,
		Window:      c.Window(),
		VisibleLow:  c.Analysis.VisibleLowHz,
		VisibleHigh: c.Analysis.VisibleHighHz,
	}
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
// Unparseable values are ignored.
func (cfg *Config) applyEnvOverrides() {
	str := func(name string, dst *string) {
		if val, ok := os.LookupEnv(name); ok {
			*dst = val
			log.Infof("configuration: Overriding %s from env: %s", name, val)
		}
	}
	boolean := func(name string, dst *bool) {
		if val, ok := os.LookupEnv(name); ok {
			if b, err := strconv.ParseBool(val); err == nil {
				*dst = b
				log.Infof("configuration: Overriding %s from env: %v", name, b)
			}
		}
	}
	integer := func(name string, dst *int) {
		if val, ok := os.LookupEnv(name); ok {
			if n, err := strconv.Atoi(val); err == nil {
				*dst = n
				log.Infof("configuration: Overriding %s from env: %d", name, n)
			}
		}
	}
	float := func(name string, dst *float64) {
		if val, ok := os.LookupEnv(name); ok {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				*dst = f
				log.Infof("configuration: Overriding %s from env: %g", name, f)
			}
		}
	}
	duration := func(name string, dst *time.Duration) {
		if val, ok := os.LookupEnv(name); ok {
			if d, err := time.ParseDuration(val); err == nil {
				*dst = d
				log.Infof("configuration: Overriding %s from env: %s", name, d)
			}
		}
	}

	boolean("ENV_DEBUG", &cfg.Debug)
	str("ENV_LOG_LEVEL", &cfg.LogLevel)

	// ENV_AUDIO_{...}
	str("ENV_AUDIO_BACKEND", &cfg.Audio.Backend)
	integer("ENV_AUDIO_INPUT_DEVICE", &cfg.Audio.InputDevice)
	integer("ENV_AUDIO_OUTPUT_DEVICE", &cfg.Audio.OutputDevice)
	boolean("ENV_AUDIO_LOOPBACK", &cfg.Audio.Loopback)
	float("ENV_AUDIO_SAMPLE_RATE", &cfg.Audio.SampleRate)
	integer("ENV_AUDIO_BLOCK_SIZE", &cfg.Audio.BlockSize)
	str("ENV_AUDIO_INPUT_FILE", &cfg.Audio.InputFile)

	// ENV_ANALYSIS_{...}
	duration("ENV_ANALYSIS_INTERVAL", &cfg.Analysis.Interval)
	float("ENV_ANALYSIS_THRESHOLD", &cfg.Analysis.Threshold)
	str("ENV_ANALYSIS_FFT_WINDOW", &cfg.Analysis.FFTWindow)

	// ENV_WS_{...} and ENV_UDP_{...}
	boolean("ENV_WS_ENABLED", &cfg.Transport.WebSocketEnabled)
	str("ENV_WS_ADDR", &cfg.Transport.WebSocketAddr)
	boolean("ENV_UDP_ENABLED", &cfg.Transport.UDPEnabled)
	str("ENV_UDP_TARGET_ADDRESS", &cfg.Transport.UDPTargetAddress)
	duration("ENV_UDP_SEND_INTERVAL", &cfg.Transport.UDPSendInterval)
}
