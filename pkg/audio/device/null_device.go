package device

// NullDevice is a device transport that discards output and produces
// silence on input — used by headless tests when no physical or
// network device is configured.
type NullDevice struct {
	handler *Handler
}

// NewNullDevice creates a NullDevice around a new Handler: a device
// that drives itself via Tick instead of a hardware callback.
func NewNullDevice(key DeviceKey, numInputChannels, numOutputChannels int) *NullDevice {
	return &NullDevice{handler: NewHandler(key, numInputChannels, numOutputChannels)}
}

func (n *NullDevice) Handler() *Handler { return n.handler }

// Tick drives one block through the handler's callback with silent
// input and a scratch output buffer that is discarded.
func (n *NullDevice) Tick(numSamples int) {
	in := make([][]float32, n.handler.numInputChannels)
	out := make([][]float32, n.handler.numOutputChannels)
	for i := range in {
		in[i] = make([]float32, numSamples)
	}
	for i := range out {
		out[i] = make([]float32, numSamples)
	}
	n.handler.Callback(in, out, numSamples)
}
