package protocol

import (
	"encoding/json"
	"fmt"
)

// Signal types exchanged with the peer introducer.
const (
	SignalOpen        = "open"
	SignalIDTaken     = "id_taken"
	SignalOffer       = "offer"
	SignalAnswer      = "answer"
	SignalUnavailable = "unavailable"
	SignalLeave       = "leave"
	SignalError       = "error"
)

// Signal is one introducer message. Src is stamped by the introducer on
// forwarded messages; clients only set Dst.
type Signal struct {
	Type         string `json:"type"`
	Src          string `json:"src,omitempty"`
	Dst          string `json:"dst,omitempty"`
	ID           string `json:"id,omitempty"`
	SDP          string `json:"sdp,omitempty"`
	ConnectionID string `json:"connectionId,omitempty"`
	Message      string `json:"message,omitempty"`
}

func DecodeSignal(data []byte) (Signal, error) {
	var sig Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if sig.Type == "" {
		return Signal{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return sig, nil
}

// Forwarded reports whether the introducer routes this signal to Dst.
func (s Signal) Forwarded() bool {
	switch s.Type {
	case SignalOffer, SignalAnswer, SignalLeave:
		return true
	}
	return false
}
