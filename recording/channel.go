// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import "fmt"

// Channel identifies the stream a timing record belongs to.
type Channel uint8

const (
	ChannelStdin Channel = iota + 1
	ChannelStdout
	ChannelStderr
	ChannelTTYIn
	ChannelTTYOut
	ChannelWindowSize
	ChannelSuspend
)

// StreamChannels lists the channels backed by a data file, in the order
// they are opened.
var StreamChannels = []Channel{ChannelStdin, ChannelStdout, ChannelStderr, ChannelTTYIn, ChannelTTYOut}

// IsStream reports whether records on this channel carry a byte count
// into a data file.
func (channel Channel) IsStream() bool {
	return channel >= ChannelStdin && channel <= ChannelTTYOut
}

// FileName returns the data file name of a stream channel, or "" for
// event-only channels.
func (channel Channel) FileName() string {
	switch channel {
	case ChannelStdin:
		return "stdin"
	case ChannelStdout:
		return "stdout"
	case ChannelStderr:
		return "stderr"
	case ChannelTTYIn:
		return "ttyin"
	case ChannelTTYOut:
		return "ttyout"
	default:
		return ""
	}
}

func (channel Channel) String() string {
	switch channel {
	case ChannelWindowSize:
		return "winsize"
	case ChannelSuspend:
		return "suspend"
	}
	if name := channel.FileName(); name != "" {
		return name
	}
	return fmt.Sprintf("channel(%d)", channel)
}

// timingEvents maps the event number in a timing line to its channel.
// Event 6 is the legacy terminal output number written by old recorders.
var timingEvents = map[int]Channel{
	0: ChannelStdin,
	1: ChannelStdout,
	2: ChannelStderr,
	3: ChannelTTYIn,
	4: ChannelTTYOut,
	5: ChannelWindowSize,
	6: ChannelTTYOut,
	7: ChannelSuspend,
}

// Event returns the event number written in timing lines for channel.
func (channel Channel) Event() int {
	switch channel {
	case ChannelStdin:
		return 0
	case ChannelStdout:
		return 1
	case ChannelStderr:
		return 2
	case ChannelTTYIn:
		return 3
	case ChannelTTYOut:
		return 4
	case ChannelWindowSize:
		return 5
	case ChannelSuspend:
		return 7
	default:
		return -1
	}
}
