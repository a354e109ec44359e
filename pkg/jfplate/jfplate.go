// Package jfplate implements the long-lived TCP link to one JF plate
// hardware controller: frame codec, challenge/response MD5 login, and
// back-pressured DO/slave-DO batch sends with per-pipeline credit (§4.G).
//
// Grounded on original_source/src/hardware/jf_plate.cpp (frame layout,
// msgSerial wrap at 9999, wait-list credit gating), restructured from the
// Qt signal/slot style into a read-loop goroutine, the way the teacher's
// SSHTunnel.forward pairs a buffered accumulate loop with a dispatch step.
package jfplate

import (
	"crypto/md5"
	"net"
	"strconv"
	"sync"

	"github.com/nenet-io/nenet-core/pkg/audit"
	"github.com/nenet-io/nenet-core/pkg/nerr"
	"github.com/nenet-io/nenet-core/pkg/util"
)

// Command bytes (§4.G).
const (
	CmdGetRandomCode     = 0x00
	CmdSetVerifyPassword = 0x01
	CmdGetVerifyReply    = 0x03
	CmdSetGetDI          = 0x10
	CmdSetGetDO          = 0x11
	CmdSetDO             = 0x21
	CmdSetCom            = 0x28
	CmdGetSetDO          = 0x91
	CmdGetSetCom         = 0x98
)

const (
	serialLoginReply = 398
	serialPrimeDI    = 1123
	serialPrimeDO    = 1124
	serialWrapAt     = 9999
)

// Identity describes the controller a Link connects to (derived from
// hardware.Control by the caller).
type Identity struct {
	StationName string
	IPAddr      string
	IPPort      int
	Password    string
}

// Link is one TCP connection to a type-2/5 controller. It owns its socket
// and read buffer exclusively; the metadata manager invokes its methods
// without holding any shared-state lock (§5).
type Link struct {
	identity Identity

	mu        sync.Mutex
	conn      net.Conn
	connected bool

	recvBuf []byte

	msgSerial int

	waitMaster []byte // always begins with 0x02
	canMaster  bool

	waitSlave []byte // always begins with 0x02
	canSlave  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Link for the given controller identity. It does not dial
// until Connect is called.
func New(id Identity) *Link {
	return &Link{
		identity:   id,
		waitMaster: []byte{0x02},
		waitSlave:  []byte{0x02},
	}
}

// Connect dials the controller and starts the read loop. Credits reset to
// true and any pending wait lists are dropped on every fresh connect,
// per §4.G's reconnect guidance.
func (l *Link) Connect() error {
	conn, err := net.Dial("tcp", net.JoinHostPort(l.identity.IPAddr, strconv.Itoa(l.identity.IPPort)))
	if err != nil {
		audit.Log(audit.NewEvent(l.identity.StationName, audit.OpLinkConnect).WithError(err))
		return &nerr.LinkError{Controller: l.identity.StationName, Op: "connect", Details: err.Error()}
	}

	l.mu.Lock()
	l.conn = conn
	l.connected = true
	l.canMaster = true
	l.canSlave = true
	l.waitMaster = []byte{0x02}
	l.waitSlave = []byte{0x02}
	l.recvBuf = nil
	l.done = make(chan struct{})
	l.mu.Unlock()

	l.wg.Add(1)
	go l.readLoop()

	util.WithController(l.identity.StationName).Info("jfplate connected")
	audit.Log(audit.NewEvent(l.identity.StationName, audit.OpLinkConnect).WithSuccess())
	return nil
}

// Close disconnects and joins the read loop.
func (l *Link) Close() {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return
	}
	l.connected = false
	conn := l.conn
	done := l.done
	l.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		conn.Close()
	}
	l.wg.Wait()

	audit.Log(audit.NewEvent(l.identity.StationName, audit.OpLinkDisconnect).WithSuccess())
}

// Connected reports whether the socket is currently connected.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Link) readLoop() {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		l.connected = false
		l.mu.Unlock()
		util.WithController(l.identity.StationName).Warn("jfplate disconnected, waiting reconnect by upper logic")
	}()

	buf := make([]byte, 4096)
	for {
		l.mu.Lock()
		conn := l.conn
		l.mu.Unlock()
		if conn == nil {
			return
		}

		n, err := conn.Read(buf)
		if err != nil {
			return
		}

		l.mu.Lock()
		l.recvBuf = append(l.recvBuf, buf[:n]...)
		frames := l.detachFrames()
		l.mu.Unlock()

		for _, f := range frames {
			l.handleFrame(f)
		}
	}
}

// detachFrames drains complete frames from recvBuf per the inbound framing
// rules in §4.G. Must be called with l.mu held.
func (l *Link) detachFrames() [][]byte {
	var frames [][]byte
	for {
		if len(l.recvBuf) < 7 {
			return frames
		}
		if l.recvBuf[0] != 0xEA || l.recvBuf[1] != 0xAE {
			l.recvBuf = l.recvBuf[1:]
			continue
		}
		length := int(l.recvBuf[6])
		frameLen := 7 + length
		if len(l.recvBuf) < frameLen {
			return frames
		}
		frame := make([]byte, frameLen)
		copy(frame, l.recvBuf[:frameLen])
		l.recvBuf = l.recvBuf[frameLen:]
		frames = append(frames, frame)
	}
}

func (l *Link) handleFrame(frame []byte) {
	cmd := frame[3]
	length := int(frame[6])
	var payload []byte
	if length > 0 && len(frame) >= 7+length {
		payload = frame[7 : 7+length]
	}

	switch cmd {
	case CmdGetSetDO:
		l.mu.Lock()
		l.canMaster = true
		l.mu.Unlock()
	case CmdGetSetCom:
		l.mu.Lock()
		l.canSlave = true
		l.mu.Unlock()
	case CmdGetRandomCode:
		l.login(payload)
	case CmdGetVerifyReply:
		one := []byte{0x00}
		l.sendFrame(buildMasterFrame(CmdSetGetDI, serialPrimeDI, one))
		l.sendFrame(buildMasterFrame(CmdSetGetDO, serialPrimeDO, one))
	}
}

// login replies to a getRandomCode challenge with setVerifyPassword, per
// the handshake in §4.G step 2. Sends no reply frame, and logs a warning and
// a failed audit event instead, if the nonce is not exactly 16 bytes.
func (l *Link) login(nonce []byte) {
	if len(nonce) != 16 {
		util.WithController(l.identity.StationName).Warn("jfplate login failed: random code length invalid")
		audit.Log(audit.NewEvent(l.identity.StationName, audit.OpLinkLogin).WithError(&nerr.LinkError{
			Controller: l.identity.StationName, Op: "login", Details: "random code length invalid",
		}))
		return
	}

	key := padKey(l.identity.Password)
	combined := make([]byte, 0, 32)
	combined = append(combined, nonce...)
	combined = append(combined, key...)
	digest := md5.Sum(combined)

	l.sendFrame(buildMasterFrame(CmdSetVerifyPassword, serialLoginReply, digest[:]))
	audit.Log(audit.NewEvent(l.identity.StationName, audit.OpLinkLogin).WithSuccess())
}

// padKey right-pads the UTF-8 password with NUL to 16 bytes, truncating if
// longer (§6).
func padKey(password string) []byte {
	key := make([]byte, 16)
	copy(key, []byte(password))
	return key
}

// buildMasterFrame builds the 7-byte-header master frame: 0xEA 0xAE 0x01 cmd
// serial_lo serial_hi len payload.
func buildMasterFrame(cmd byte, serial int, payload []byte) []byte {
	frame := make([]byte, 7+len(payload))
	frame[0] = 0xEA
	frame[1] = 0xAE
	frame[2] = 0x01
	frame[3] = cmd
	frame[4] = byte(serial & 0xFF)
	frame[5] = byte((serial >> 8) & 0xFF)
	frame[6] = byte(len(payload) & 0xFF)
	copy(frame[7:], payload)
	return frame
}

// buildSlaveFrame builds the 6-byte-header + trailing-checksum slave frame:
// 0xEA 0xAE 0xBF 0x01 cmd len payload checksum.
func buildSlaveFrame(cmd byte, payload []byte) []byte {
	frame := make([]byte, 7+len(payload))
	frame[0] = 0xEA
	frame[1] = 0xAE
	frame[2] = 0xBF
	frame[3] = 0x01
	frame[4] = cmd
	frame[5] = byte(len(payload) & 0xFF)
	copy(frame[6:], payload)

	sum := 0
	for _, b := range frame[:len(frame)-1] {
		sum += int(b)
	}
	frame[len(frame)-1] = byte(sum & 0xFF)
	return frame
}

func (l *Link) sendFrame(frame []byte) bool {
	l.mu.Lock()
	conn := l.conn
	connected := l.connected
	l.mu.Unlock()

	if !connected || conn == nil {
		util.WithController(l.identity.StationName).Warn("jfplate send failed: socket not connected")
		return false
	}

	n, err := conn.Write(frame)
	if err != nil || n != len(frame) {
		util.WithController(l.identity.StationName).Warnf("jfplate send partial or failed: expect=%d actual=%d err=%v", len(frame), n, err)
		return false
	}
	return true
}

func (l *Link) nextSerial() int {
	if l.msgSerial >= serialWrapAt {
		l.msgSerial = 1
	} else {
		l.msgSerial++
	}
	return l.msgSerial
}

// SetEachDO implements the master DO pipeline (§4.G). When isSend is false,
// high and low are appended (masked to 8 bits) to the wait list and nothing
// is transmitted. When isSend is true, the batch is transmitted iff the
// wait list holds more than the leading 0x02 byte and the master credit is
// set; after a successful write the credit is consumed and the wait list
// reset to [0x02]. A failed write returns false and keeps both the credit
// and the wait list.
func (l *Link) SetEachDO(isSend bool, high, low int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !isSend {
		l.waitMaster = append(l.waitMaster, byte(high&0xFF), byte(low&0xFF))
		return true
	}

	if len(l.waitMaster) > 1 && l.canMaster {
		serial := l.nextSerial()
		frame := buildMasterFrame(CmdSetDO, serial, l.waitMaster)
		if !l.writeLocked(frame) {
			return false
		}
		l.canMaster = false
		l.waitMaster = []byte{0x02}
	}
	return true
}

// SetSlaveEachDO implements the slave DO pipeline (identical contract to
// SetEachDO, gated by the slave credit and emitting a setCom slave frame).
func (l *Link) SetSlaveEachDO(isSend bool, high, low int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !isSend {
		l.waitSlave = append(l.waitSlave, byte(high&0xFF), byte(low&0xFF))
		return true
	}

	if len(l.waitSlave) > 1 && l.canSlave {
		l.nextSerial()
		frame := buildSlaveFrame(CmdSetCom, l.waitSlave)
		if !l.writeLocked(frame) {
			return false
		}
		l.canSlave = false
		l.waitSlave = []byte{0x02}
	}
	return true
}

// writeLocked writes a frame directly to the socket. Called with l.mu held;
// a blocked TCP write stalls the next SetEachDO/SetSlaveEachDO call on the
// same Link, which is acceptable since the OS write buffer absorbs a DO
// batch's small payload without blocking in practice.
func (l *Link) writeLocked(frame []byte) bool {
	if !l.connected || l.conn == nil {
		util.WithController(l.identity.StationName).Warn("jfplate send failed: socket not connected")
		return false
	}
	n, err := l.conn.Write(frame)
	if err != nil || n != len(frame) {
		util.WithController(l.identity.StationName).Warnf("jfplate send partial or failed: expect=%d actual=%d err=%v", len(frame), n, err)
		return false
	}
	return true
}
