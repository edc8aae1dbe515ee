package state

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// RoutingMatrix is a dense bit matrix mapping input rows to output
// columns (plugin channels to device subscription slots, or vice
// versa). It supplements the distilled spec's subscription model with
// the original's inputRoutingMatrix/outputRoutingMatrix concept, which
// the spec's own AudioClient description only sketches in prose.
type RoutingMatrix struct {
	rows, cols int
	bits       []bool // row-major
}

// NewRoutingMatrix creates an all-false matrix of the given shape.
func NewRoutingMatrix(rows, cols int) *RoutingMatrix {
	return &RoutingMatrix{rows: rows, cols: cols, bits: make([]bool, rows*cols)}
}

func (m *RoutingMatrix) index(row, col int) int { return row*m.cols + col }

// Set marks (row, col) routed or not.
func (m *RoutingMatrix) Set(row, col int, routed bool) {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		return
	}
	m.bits[m.index(row, col)] = routed
}

// Get reports whether (row, col) is routed.
func (m *RoutingMatrix) Get(row, col int) bool {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		return false
	}
	return m.bits[m.index(row, col)]
}

func (m *RoutingMatrix) Rows() int { return m.rows }
func (m *RoutingMatrix) Cols() int { return m.cols }

// String renders the matrix as one bitstring per row, rows joined by
// ';', matching the compact persisted form ("1010;0101").
func (m *RoutingMatrix) String() string {
	rows := make([]string, m.rows)
	for r := 0; r < m.rows; r++ {
		var sb strings.Builder
		for c := 0; c < m.cols; c++ {
			if m.Get(r, c) {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		rows[r] = sb.String()
	}
	return strings.Join(rows, ";")
}

// ParseRoutingMatrix parses the String() format back into a matrix.
func ParseRoutingMatrix(s string) (*RoutingMatrix, error) {
	if s == "" {
		return NewRoutingMatrix(0, 0), nil
	}
	rowStrs := strings.Split(s, ";")
	cols := len(rowStrs[0])
	m := NewRoutingMatrix(len(rowStrs), cols)
	for r, rowStr := range rowStrs {
		if len(rowStr) != cols {
			return nil, fmt.Errorf("routing matrix: row %d has %d columns, want %d", r, len(rowStr), cols)
		}
		for c, ch := range rowStr {
			switch ch {
			case '1':
				m.Set(r, c, true)
			case '0':
				m.Set(r, c, false)
			default:
				return nil, fmt.Errorf("routing matrix: invalid character %q", ch)
			}
		}
	}
	return m, nil
}

// ChannelSubscriptionXML is the XML-persisted form of
// device.ChannelSubscription. It lives here, not in pkg/audio/device,
// because persistence format is a framework/state concern and device
// stays free of an encoding/xml dependency.
type ChannelSubscriptionXML struct {
	XMLName      xml.Name `xml:"channel"`
	DeviceType   string   `xml:"deviceType,attr"`
	DeviceName   string   `xml:"deviceName,attr"`
	ChannelIndex int      `xml:"channelIndex,attr"`
	Direction    string   `xml:"direction,attr"` // "in" | "out"
}

// RoutingConfig is the full persisted device-routing document: every
// subscribed channel plus the routing matrices that connect them to
// plugin channels.
type RoutingConfig struct {
	XMLName       xml.Name                 `xml:"routingConfig"`
	Version       int                      `xml:"version,attr"`
	Subscriptions []ChannelSubscriptionXML `xml:"subscriptions>channel"`
	InputMatrix   string                   `xml:"inputRoutingMatrix,omitempty"`
	OutputMatrix  string                   `xml:"outputRoutingMatrix,omitempty"`
}

// Marshal serializes a RoutingConfig to XML bytes.
func (c *RoutingConfig) Marshal() ([]byte, error) {
	return xml.MarshalIndent(c, "", "  ")
}

// UnmarshalRoutingConfig parses a RoutingConfig from XML bytes.
func UnmarshalRoutingConfig(data []byte) (*RoutingConfig, error) {
	var c RoutingConfig
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseSubscriptionString parses a single subscription from either the
// new "deviceType|deviceName:channelIndex:in|out" form or the legacy
// "deviceName:channelIndex:in|out" form (no device type), matching the
// original's ChannelSubscription::fromString forward-compatibility
// behavior.
func ParseSubscriptionString(s string) (ChannelSubscriptionXML, error) {
	var sub ChannelSubscriptionXML
	var rest string
	if idx := strings.IndexByte(s, '|'); idx >= 0 {
		sub.DeviceType = s[:idx]
		rest = s[idx+1:]
	} else {
		rest = s
	}

	parts := strings.Split(rest, ":")
	if len(parts) < 3 {
		return sub, fmt.Errorf("channel subscription: malformed %q", s)
	}
	sub.DeviceName = parts[0]
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return sub, fmt.Errorf("channel subscription: bad channel index in %q: %w", s, err)
	}
	sub.ChannelIndex = idx
	sub.Direction = parts[2]
	return sub, nil
}

// String serializes back to the "deviceType|deviceName:channelIndex:in|out" form.
func (s ChannelSubscriptionXML) String() string {
	return fmt.Sprintf("%s|%s:%d:%s", s.DeviceType, s.DeviceName, s.ChannelIndex, s.Direction)
}
