package device

import (
	"encoding/binary"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// NetworkDevice exposes a Handler over a websocket connection, framing
// each block as a sequence of little-endian float32 samples:
// [numInputChannels * numSamples] in, replies with
// [numOutputChannels * numSamples] out. Used for headless testing of
// the device layer without a real audio backend, and as a reference
// transport for remote/virtual devices.
type NetworkDevice struct {
	handler     *Handler
	numSamples  int
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

const (
	networkDeviceWriteWait = 5 * time.Second
	networkDeviceReadWait  = 5 * time.Second
)

// NewNetworkDevice wraps handler for websocket-driven I/O, with each
// frame carrying numSamples samples per channel.
func NewNetworkDevice(handler *Handler, numSamples int, log zerolog.Logger) *NetworkDevice {
	return &NetworkDevice{
		handler:    handler,
		numSamples: numSamples,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (n *NetworkDevice) Handler() *Handler { return n.handler }

// ServeHTTP upgrades the connection and runs the device loop until the
// peer disconnects: read one input frame, run the callback, write one
// output frame.
func (n *NetworkDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.log.Warn().Err(err).Msg("network device upgrade failed")
		return
	}
	defer conn.Close()

	in := make([][]float32, n.handler.numInputChannels)
	out := make([][]float32, n.handler.numOutputChannels)
	for i := range in {
		in[i] = make([]float32, n.numSamples)
	}
	for i := range out {
		out[i] = make([]float32, n.numSamples)
	}

	for {
		conn.SetReadDeadline(time.Now().Add(networkDeviceReadWait))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		decodeFrame(payload, in)

		n.handler.Callback(in, out, n.numSamples)

		frame := encodeFrame(out)
		conn.SetWriteDeadline(time.Now().Add(networkDeviceWriteWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return
		}
	}
}

func encodeFrame(channels [][]float32) []byte {
	if len(channels) == 0 {
		return nil
	}
	n := len(channels[0])
	buf := make([]byte, 4*len(channels)*n)
	pos := 0
	for _, ch := range channels {
		for _, sample := range ch {
			binary.LittleEndian.PutUint32(buf[pos:], math.Float32bits(sample))
			pos += 4
		}
	}
	return buf
}

func decodeFrame(payload []byte, channels [][]float32) {
	if len(channels) == 0 {
		return
	}
	n := len(channels[0])
	pos := 0
	for _, ch := range channels {
		for i := 0; i < n; i++ {
			if pos+4 > len(payload) {
				ch[i] = 0
				continue
			}
			ch[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[pos:]))
			pos += 4
		}
	}
}
