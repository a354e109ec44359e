// Package protocol parses and emits the compact JSON message envelope
// exchanged on both the NEC and interface UDP channels.
package protocol

import (
	"encoding/json"

	"github.com/nenet-io/nenet-core/pkg/nerr"
)

// Recognized message types.
const (
	TypeMDIn         = "md_in"
	TypeMDOut        = "md_out"
	TypeMDChange     = "md_change"
	TypeSetValue     = "setValue"
	TypeAddRegListen = "addRegListen"
	TypeImitateDate  = "imitateDate"
	TypeButtonGrade  = "buttonGrade"
	TypeEndGrade     = "endGrade"
	TypeSetValueAck  = "setValueAck"
	TypeAddRegListenAck = "addRegListenAck"
)

// Literal non-JSON heartbeat datagrams exchanged on the NEC channel.
const (
	NECRunSuccess    = "NECRunSuccess"
	NENetRunSuccess  = "NENetRunSuccess"
)

// MetaInfo is one element of a Message's "i" array.
type MetaInfo struct {
	D     int    `json:"d"`
	V     string `json:"v"`
	N     int    `json:"n"`
	Model int    `json:"model"`
}

// Message mirrors the wire envelope: {"t": "<type>", "i": [...]}.
type Message struct {
	T string     `json:"t"`
	I []MetaInfo `json:"i,omitempty"`
}

// rawMessage lets us detect whether "t" was present at all, since an empty
// string and an absent field both unmarshal to the zero value of T.
type rawMessage struct {
	T *string    `json:"t"`
	I []MetaInfo `json:"i"`
}

// Parse decodes a JSON message envelope. A valid message requires "t" to be
// present as a string; "i" defaults to an empty list when absent.
func Parse(b []byte) (*Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, &nerr.ProtocolError{Raw: string(b), Details: err.Error()}
	}
	if raw.T == nil {
		return nil, &nerr.ProtocolError{Raw: string(b), Details: "missing required field \"t\""}
	}
	return &Message{T: *raw.T, I: raw.I}, nil
}

// Marshal emits a Message as compact JSON.
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// NewAck builds a {"t": ackType, "ok": 0|1} acknowledgement payload.
func NewAck(ackType string, ok bool) []byte {
	okInt := 0
	if ok {
		okInt = 1
	}
	b, _ := json.Marshal(struct {
		T  string `json:"t"`
		OK int    `json:"ok"`
	}{T: ackType, OK: okInt})
	return b
}
