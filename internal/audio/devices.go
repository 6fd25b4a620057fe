// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"

	"linein/internal/log"
)

// Registry is a read-only view of the host's devices. Nothing is cached:
// every call enumerates again so hot-plugged devices show up.
type Registry struct {
	host Host
}

// NewRegistry returns a registry over host.
func NewRegistry(host Host) *Registry {
	return &Registry{host: host}
}

// Host returns the underlying host.
func (r *Registry) Host() Host {
	return r.host
}

// ListInputDevices returns every device with input capability in host
// enumeration order. It never fails; enumeration errors yield an empty list.
func (r *Registry) ListInputDevices() []Device {
	return r.list(Input)
}

// ListOutputDevices is ListInputDevices for output capability.
func (r *Registry) ListOutputDevices() []Device {
	return r.list(Output)
}

func (r *Registry) list(dir Direction) []Device {
	devices, err := r.host.Devices()
	if err != nil {
		log.Warnf("Registry: %s device enumeration failed: %v", dir, err)
		return []Device{}
	}
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.Supports(dir) {
			out = append(out, d)
		}
	}
	return out
}

// DefaultInputDevice returns the host-designated default input.
func (r *Registry) DefaultInputDevice() (Device, error) {
	d, err := r.host.DefaultInputDevice()
	if err != nil {
		return Device{}, &NoDefaultDeviceError{Direction: Input, Err: err}
	}
	return d, nil
}

// DefaultOutputDevice returns the host-designated default output.
func (r *Registry) DefaultOutputDevice() (Device, error) {
	d, err := r.host.DefaultOutputDevice()
	if err != nil {
		return Device{}, &NoDefaultDeviceError{Direction: Output, Err: err}
	}
	return d, nil
}

// ResolveByName finds a device by display name within dir's list.
// Duplicate names resolve to the first match in enumeration order; that is
// a known limitation of name-based selection.
func (r *Registry) ResolveByName(name string, dir Direction) (Device, error) {
	for _, d := range r.list(dir) {
		if d.Name == name {
			return d, nil
		}
	}
	return Device{}, &DeviceNotFoundError{Name: name, Direction: dir}
}

// Device looks up a device by id in a fresh enumeration.
func (r *Registry) Device(id int) (Device, error) {
	devices, err := r.host.Devices()
	if err != nil {
		return Device{}, err
	}
	for _, d := range devices {
		if d.ID == id {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("invalid device ID: %d", id)
}

// PrintDevices writes a human-readable device listing. For each device it
// shows the id and name, direction, channel counts, default sample rate
// and the host's latency range.
func PrintDevices(w io.Writer, title string, devices []Device) {
	fmt.Fprintf(w, "\n%s\n\n", title)
	if len(devices) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, d := range devices {
		fmt.Fprintf(w, "[%d] %s (%s)\n", d.ID, d.Name, d.Direction())
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", d.InputChannels, d.OutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
		if d.InputChannels > 0 {
			fmt.Fprintf(w, "    Input latency: Low=%.2fms, High=%.2fms\n",
				d.LowInputLatency.Seconds()*1000, d.HighInputLatency.Seconds()*1000)
		}
		if d.OutputChannels > 0 {
			fmt.Fprintf(w, "    Output latency: Low=%.2fms, High=%.2fms\n",
				d.LowOutputLatency.Seconds()*1000, d.HighOutputLatency.Seconds()*1000)
		}
		fmt.Fprintln(w)
	}
}
