// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"linein/internal/audio"
)

// deviceIndex returns the position of id in devices, or 0.
func deviceIndex(devices []audio.Device, d *audio.Device) int {
	if d == nil {
		return 0
	}
	for i, dev := range devices {
		if dev.ID == d.ID {
			return i
		}
	}
	return 0
}

// renderDevices formats a picker list with the cursor row highlighted and
// the active device marked.
func renderDevices(devices []audio.Device, cursor int, active *audio.Device) string {
	if len(devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, device := range devices {
		marker := " "
		if active != nil && active.ID == device.ID {
			marker = "*"
		}

		deviceInfo := fmt.Sprintf("%s [%d] %s (%s)\n", marker, device.ID, device.Name, device.Direction())
		deviceInfo += fmt.Sprintf("    Input channels: %d, Output channels: %d\n",
			device.InputChannels, device.OutputChannels)
		deviceInfo += fmt.Sprintf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)

		if i == cursor {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}
		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}
	return sb.String()
}
