// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Seams over the PortAudio library so enumeration can be tested without
// hardware.
var (
	paLibInitialize              = portaudio.Initialize
	paLibTerminate               = portaudio.Terminate
	paLibDevicesFunc             = portaudio.Devices
	paLibDefaultInputDeviceFunc  = portaudio.DefaultInputDevice
	paLibDefaultOutputDeviceFunc = portaudio.DefaultOutputDevice
)

// PortAudioHost drives devices through PortAudio callback streams. A
// duplex stream is opened when an output device is requested, so loopback
// happens inside one callback with no extra buffering.
type PortAudioHost struct {
	mu     sync.Mutex
	closed bool
}

var _ Host = (*PortAudioHost)(nil)

// NewPortAudioHost initializes the PortAudio subsystem. Close must be
// called to terminate it.
func NewPortAudioHost() (*PortAudioHost, error) {
	if err := paLibInitialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudioHost{}, nil
}

func (h *PortAudioHost) Name() string { return "portaudio" }

// Close terminates PortAudio. It is safe to call more than once.
func (h *PortAudioHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// Devices returns all PortAudio devices. IDs are enumeration positions.
func (h *PortAudioHost) Devices() ([]Device, error) {
	infos, err := paDevices()
	if err != nil {
		return nil, err
	}
	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = fromDeviceInfo(i, info)
	}
	return devices, nil
}

func (h *PortAudioHost) DefaultInputDevice() (Device, error) {
	return h.defaultDevice(paLibDefaultInputDeviceFunc)
}

func (h *PortAudioHost) DefaultOutputDevice() (Device, error) {
	return h.defaultDevice(paLibDefaultOutputDeviceFunc)
}

func (h *PortAudioHost) defaultDevice(lookup func() (*portaudio.DeviceInfo, error)) (Device, error) {
	info, err := lookup()
	if err != nil {
		return Device{}, err
	}
	if info == nil {
		return Device{}, fmt.Errorf("host reported no default device")
	}
	infos, err := paDevices()
	if err != nil {
		return Device{}, err
	}
	if i := indexOf(infos, info); i >= 0 {
		return fromDeviceInfo(i, infos[i]), nil
	}
	return Device{}, fmt.Errorf("default device %q not in device list", info.Name)
}

// OpenStream opens a callback stream. The callback form depends on the
// direction because PortAudio matches buffer arguments to the stream.
func (h *PortAudioHost) OpenStream(params StreamParams, callbacks StreamCallbacks) (Stream, error) {
	infos, err := paDevices()
	if err != nil {
		return nil, err
	}
	if params.Input.ID < 0 || params.Input.ID >= len(infos) {
		return nil, fmt.Errorf("invalid device ID: %d", params.Input.ID)
	}
	input := infos[params.Input.ID]

	sp := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   input,
			Channels: params.InputChannels,
			Latency:  params.Input.InputLatency(params.LowLatency),
		},
		SampleRate:      params.SampleRate,
		FramesPerBuffer: params.FramesPerBuffer,
	}

	process := callbacks.Process
	var stream *portaudio.Stream
	if params.Duplex() {
		if params.Output.ID < 0 || params.Output.ID >= len(infos) {
			return nil, fmt.Errorf("invalid output device ID: %d", params.Output.ID)
		}
		sp.Output = portaudio.StreamDeviceParameters{
			Device:   infos[params.Output.ID],
			Channels: params.OutputChannels,
			Latency:  params.Output.OutputLatency(params.LowLatency),
		}
		stream, err = portaudio.OpenStream(sp, func(in, out []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			process(in, out, statusFromFlags(flags))
		})
	} else {
		stream, err = portaudio.OpenStream(sp, func(in []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			process(in, nil, statusFromFlags(flags))
		})
	}
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// statusFromFlags maps PortAudio callback flags onto StreamStatus.
func statusFromFlags(flags portaudio.StreamCallbackFlags) StreamStatus {
	var s StreamStatus
	if flags&portaudio.InputUnderflow != 0 {
		s |= InputUnderflow
	}
	if flags&portaudio.InputOverflow != 0 {
		s |= InputOverflow
	}
	if flags&portaudio.OutputUnderflow != 0 {
		s |= OutputUnderflow
	}
	if flags&portaudio.OutputOverflow != 0 {
		s |= OutputOverflow
	}
	return s
}

func fromDeviceInfo(id int, info *portaudio.DeviceInfo) Device {
	return Device{
		ID:                id,
		Name:              info.Name,
		InputChannels:     info.MaxInputChannels,
		OutputChannels:    info.MaxOutputChannels,
		DefaultSampleRate: info.DefaultSampleRate,
		LowInputLatency:   info.DefaultLowInputLatency,
		HighInputLatency:  info.DefaultHighInputLatency,
		LowOutputLatency:  info.DefaultLowOutputLatency,
		HighOutputLatency: info.DefaultHighOutputLatency,
	}
}

// indexOf finds info in infos by identity, falling back to name and host
// API for bindings that return fresh DeviceInfo values.
func indexOf(infos []*portaudio.DeviceInfo, info *portaudio.DeviceInfo) int {
	for i, d := range infos {
		if d == info {
			return i
		}
	}
	for i, d := range infos {
		if d.Name == info.Name && d.HostApi == info.HostApi {
			return i
		}
	}
	return -1
}

// paDevices returns all PortAudio devices, never a nil slice on success.
func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		return []*portaudio.DeviceInfo{}, nil
	}
	return devices, nil
}
