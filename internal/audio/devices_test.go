// SPDX-License-Identifier: MIT
package audio_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linein/internal/audio"
	"linein/internal/audio/audiotest"
)

func TestRegistryListsByCapability(t *testing.T) {
	r := audio.NewRegistry(newTestHost())

	inputs := r.ListInputDevices()
	require.Len(t, inputs, 2)
	assert.Equal(t, lineIn, inputs[0].ID)
	assert.Equal(t, iface, inputs[1].ID)

	outputs := r.ListOutputDevices()
	require.Len(t, outputs, 2)
	assert.Equal(t, speakers, outputs[0].ID)
	assert.Equal(t, iface, outputs[1].ID)
}

func TestRegistryEnumerationFailureYieldsEmptyList(t *testing.T) {
	host := newTestHost()
	host.DevicesErr = errors.New("host unavailable")
	r := audio.NewRegistry(host)

	inputs := r.ListInputDevices()
	assert.NotNil(t, inputs)
	assert.Empty(t, inputs)
	assert.Empty(t, r.ListOutputDevices())
}

func TestRegistryEmptyHost(t *testing.T) {
	r := audio.NewRegistry(audiotest.NewFakeHost())
	assert.Empty(t, r.ListInputDevices())

	_, err := r.DefaultInputDevice()
	assert.ErrorIs(t, err, audio.ErrNoDefaultDevice)
	_, err = r.DefaultOutputDevice()
	assert.ErrorIs(t, err, audio.ErrNoDefaultDevice)
}

func TestRegistryDefaults(t *testing.T) {
	host := newTestHost()
	r := audio.NewRegistry(host)

	in, err := r.DefaultInputDevice()
	require.NoError(t, err)
	assert.Equal(t, lineIn, in.ID)

	out, err := r.DefaultOutputDevice()
	require.NoError(t, err)
	assert.Equal(t, speakers, out.ID)

	host.SetDefaults(iface, audio.NoDevice)
	in, err = r.DefaultInputDevice()
	require.NoError(t, err)
	assert.Equal(t, "USB Interface", in.Name)

	_, err = r.DefaultOutputDevice()
	var noDefault *audio.NoDefaultDeviceError
	require.ErrorAs(t, err, &noDefault)
	assert.Equal(t, audio.Output, noDefault.Direction)
}

func TestRegistryResolveByName(t *testing.T) {
	host := audiotest.NewFakeHost(
		audiotest.InputDevice(0, "Mic"),
		audiotest.InputDevice(1, "Mic"),
		audiotest.OutputDevice(2, "Speakers"),
	)
	r := audio.NewRegistry(host)

	d, err := r.ResolveByName("Mic", audio.Input)
	require.NoError(t, err)
	assert.Equal(t, 0, d.ID, "duplicates resolve to the first match")

	_, err = r.ResolveByName("Speakers", audio.Input)
	assert.ErrorIs(t, err, audio.ErrDeviceNotFound)

	d, err = r.ResolveByName("Speakers", audio.Output)
	require.NoError(t, err)
	assert.Equal(t, 2, d.ID)
}

func TestRegistryDevice(t *testing.T) {
	r := audio.NewRegistry(newTestHost())

	d, err := r.Device(iface)
	require.NoError(t, err)
	assert.Equal(t, audio.Input|audio.Output, d.Direction())

	_, err = r.Device(42)
	assert.ErrorContains(t, err, "invalid device ID: 42")
}

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	audio.PrintDevices(&buf, "Input Devices", []audio.Device{audiotest.DuplexDevice(3, "Interface")})
	out := buf.String()
	assert.Contains(t, out, "Input Devices")
	assert.Contains(t, out, "[3] Interface (input/output)")
	assert.Contains(t, out, "Default sample rate: 44100 Hz")

	buf.Reset()
	audio.PrintDevices(&buf, "Output Devices", nil)
	assert.Contains(t, buf.String(), "(none)")
}
