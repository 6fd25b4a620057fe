// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testMic = &portaudio.DeviceInfo{
		Name:                    "Built-in Mic",
		MaxInputChannels:        2,
		DefaultSampleRate:       48000,
		DefaultLowInputLatency:  3 * time.Millisecond,
		DefaultHighInputLatency: 12 * time.Millisecond,
	}
	testSpeakers = &portaudio.DeviceInfo{
		Name:                     "Built-in Output",
		MaxOutputChannels:        2,
		DefaultSampleRate:        48000,
		DefaultLowOutputLatency:  4 * time.Millisecond,
		DefaultHighOutputLatency: 16 * time.Millisecond,
	}
)

// stubPortAudio replaces the library seams for the duration of the test.
func stubPortAudio(t *testing.T, devices []*portaudio.DeviceInfo, devErr error) *PortAudioHost {
	t.Helper()

	origInit, origTerm := paLibInitialize, paLibTerminate
	origDevices := paLibDevicesFunc
	origIn, origOut := paLibDefaultInputDeviceFunc, paLibDefaultOutputDeviceFunc
	t.Cleanup(func() {
		paLibInitialize, paLibTerminate = origInit, origTerm
		paLibDevicesFunc = origDevices
		paLibDefaultInputDeviceFunc, paLibDefaultOutputDeviceFunc = origIn, origOut
	})

	paLibInitialize = func() error { return nil }
	paLibTerminate = func() error { return nil }
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return devices, devErr }
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) { return testMic, nil }
	paLibDefaultOutputDeviceFunc = func() (*portaudio.DeviceInfo, error) { return testSpeakers, nil }

	h, err := NewPortAudioHost()
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestPortAudioHostDevices(t *testing.T) {
	h := stubPortAudio(t, []*portaudio.DeviceInfo{testMic, testSpeakers}, nil)

	devices, err := h.Devices()
	require.NoError(t, err)
	require.Len(t, devices, 2)

	for i, d := range devices {
		assert.Equal(t, i, d.ID)
		assert.NotEmpty(t, d.Name)
		assert.Greater(t, d.DefaultSampleRate, 0.0)
	}
	assert.Equal(t, Input, devices[0].Direction())
	assert.Equal(t, Output, devices[1].Direction())
	assert.Equal(t, 3*time.Millisecond, devices[0].InputLatency(true))
	assert.Equal(t, 16*time.Millisecond, devices[1].OutputLatency(false))
}

func TestPortAudioHostDevicesError(t *testing.T) {
	h := stubPortAudio(t, nil, errors.New("mock error"))

	_, err := h.Devices()
	assert.ErrorContains(t, err, "mock error")

	r := NewRegistry(h)
	assert.Empty(t, r.ListInputDevices())
}

func TestPortAudioHostNilDeviceList(t *testing.T) {
	h := stubPortAudio(t, nil, nil)

	devices, err := h.Devices()
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestPortAudioHostDefaults(t *testing.T) {
	h := stubPortAudio(t, []*portaudio.DeviceInfo{testSpeakers, testMic}, nil)

	in, err := h.DefaultInputDevice()
	require.NoError(t, err)
	assert.Equal(t, 1, in.ID)

	out, err := h.DefaultOutputDevice()
	require.NoError(t, err)
	assert.Equal(t, 0, out.ID)
}

func TestPortAudioHostDefaultMatchedByName(t *testing.T) {
	h := stubPortAudio(t, []*portaudio.DeviceInfo{testSpeakers, testMic}, nil)

	copyOfMic := *testMic
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) { return &copyOfMic, nil }

	in, err := h.DefaultInputDevice()
	require.NoError(t, err)
	assert.Equal(t, 1, in.ID)
}

func TestPortAudioHostDefaultErrors(t *testing.T) {
	h := stubPortAudio(t, []*portaudio.DeviceInfo{testMic}, nil)

	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		return nil, errors.New("mock default input error")
	}
	_, err := NewRegistry(h).DefaultInputDevice()
	assert.ErrorIs(t, err, ErrNoDefaultDevice)
	assert.ErrorContains(t, err, "mock default input error")

	// Default not present in the enumeration.
	_, err = h.DefaultOutputDevice()
	assert.ErrorContains(t, err, "not in device list")
}

func TestPortAudioHostOpenStreamInvalidDevice(t *testing.T) {
	h := stubPortAudio(t, []*portaudio.DeviceInfo{testMic}, nil)

	_, err := h.OpenStream(StreamParams{Input: Device{ID: 5}, InputChannels: 1, SampleRate: 48000, FramesPerBuffer: 256}, StreamCallbacks{})
	assert.ErrorContains(t, err, "invalid device ID: 5")
}

func TestPortAudioHostCloseIsIdempotent(t *testing.T) {
	h := stubPortAudio(t, nil, nil)

	calls := 0
	paLibTerminate = func() error { calls++; return nil }
	assert.NoError(t, h.Close())
	assert.NoError(t, h.Close())
	assert.Equal(t, 1, calls)
}

func TestStatusFromFlags(t *testing.T) {
	assert.Equal(t, StreamStatus(0), statusFromFlags(0))
	assert.Equal(t, InputOverflow|OutputUnderflow,
		statusFromFlags(portaudio.InputOverflow|portaudio.OutputUnderflow))
}
