// Package udpmux multiplexes UDP datagrams across one worker goroutine per
// bound (ip, port), fanning received datagrams to a callback and serializing
// sends on the same socket through a request channel (§4.E).
package udpmux

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nenet-io/nenet-core/pkg/nerr"
	"github.com/nenet-io/nenet-core/pkg/util"
)

// readPollInterval bounds how long a worker blocks on ReadFromUDP before
// re-checking its send queue and done channel, so sends are serviced
// promptly without spinning a busy loop.
const readPollInterval = 100 * time.Millisecond

func deadlineShort() time.Time {
	return time.Now().Add(readPollInterval)
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// DataReceived is emitted whenever a worker drains a datagram.
type DataReceived struct {
	LocalPort  int
	SenderIP   string
	SenderPort int
	Payload    []byte
}

// Handler is invoked for every DataReceived event. Handlers run on the
// worker goroutine that received the datagram and must not block (§5).
type Handler func(DataReceived)

// ErrorHandler is invoked when a worker's read or write fails.
type ErrorHandler func(error)

const sendQueueDepth = 64

type sendRequest struct {
	dstIP   string
	dstPort int
	payload []byte
}

// worker owns one bound socket and runs a single-threaded event loop: it
// drains pending reads and services queued sends, so sends never race reads
// on the same socket (§4.E, §5).
type worker struct {
	port int
	conn *net.UDPConn
	send chan sendRequest
	done chan struct{}
	wg   sync.WaitGroup
}

// Mux is the UDP multiplexer: one worker per bound source port.
type Mux struct {
	mu       sync.Mutex
	workers  map[int]*worker
	onData   Handler
	onError  ErrorHandler
}

// New creates an empty multiplexer. SetHandlers must be called before Bind
// for received datagrams to be dispatched anywhere.
func New() *Mux {
	return &Mux{workers: make(map[int]*worker)}
}

// SetHandlers installs the dataReceived/errorOccurred callbacks (§4.E).
func (m *Mux) SetHandlers(onData Handler, onError ErrorHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onData = onData
	m.onError = onError
}

// Bind creates a worker listening on (ip, port). Fails if the port is
// already bound by this Mux.
func (m *Mux) Bind(ip string, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workers[port]; exists {
		return &nerr.LinkError{Op: "bind", Details: fmt.Sprintf("port %d already bound", port)}
	}

	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return &nerr.LinkError{Op: "bind", Details: err.Error()}
	}

	w := &worker{
		port: port,
		conn: conn,
		send: make(chan sendRequest, sendQueueDepth),
		done: make(chan struct{}),
	}
	m.workers[port] = w

	w.wg.Add(1)
	go m.runWorker(w)

	return nil
}

// Unbind stops and joins the worker bound on port, if any.
func (m *Mux) Unbind(port int) {
	m.mu.Lock()
	w, exists := m.workers[port]
	if exists {
		delete(m.workers, port)
	}
	m.mu.Unlock()

	if !exists {
		return
	}
	close(w.done)
	w.conn.Close()
	w.wg.Wait()
}

// Close unbinds every worker.
func (m *Mux) Close() {
	m.mu.Lock()
	ports := make([]int, 0, len(m.workers))
	for p := range m.workers {
		ports = append(ports, p)
	}
	m.mu.Unlock()

	for _, p := range ports {
		m.Unbind(p)
	}
}

// SendFrom routes payload to the worker bound on sourcePort. Fails if no
// worker is bound there.
func (m *Mux) SendFrom(sourcePort int, dstIP string, dstPort int, payload []byte) error {
	m.mu.Lock()
	w, ok := m.workers[sourcePort]
	m.mu.Unlock()
	if !ok {
		return &nerr.LinkError{Op: "send_from", Details: fmt.Sprintf("no worker bound on port %d", sourcePort)}
	}
	return w.enqueueSend(dstIP, dstPort, payload)
}

// SendAny uses whichever bound worker is available. Used only for the QI
// outbound channel, where the source port is irrelevant (§4.E).
func (m *Mux) SendAny(dstIP string, dstPort int, payload []byte) error {
	m.mu.Lock()
	var w *worker
	for _, candidate := range m.workers {
		w = candidate
		break
	}
	m.mu.Unlock()
	if w == nil {
		return &nerr.LinkError{Op: "send_any", Details: "no bound worker available"}
	}
	return w.enqueueSend(dstIP, dstPort, payload)
}

// enqueueSend hands a send request to the worker and returns immediately.
// It never blocks on the worker actually performing the write: a handler
// invoked from inside the worker's own dispatch runs on the same goroutine
// that would service w.send, so waiting here for completion would deadlock
// the worker against itself (e.g. a setValueAck reply sent from the handler
// that just received the setValue datagram). The request is serviced the
// next time the worker's loop comes around, which happens as soon as the
// handler returns; write failures surface later via errorOccurred, not
// through this call's return value.
func (w *worker) enqueueSend(dstIP string, dstPort int, payload []byte) error {
	select {
	case <-w.done:
		return &nerr.LinkError{Op: "send", Details: "worker stopped"}
	default:
	}

	req := sendRequest{dstIP: dstIP, dstPort: dstPort, payload: payload}
	select {
	case w.send <- req:
		return nil
	default:
		return &nerr.LinkError{Op: "send", Details: "send queue full"}
	}
}

// runWorker is the worker's event loop: drain every queued send, then do one
// read, then dispatch it. Draining happens before each read so sends
// enqueued by the previous iteration's handler (including a same-worker
// reply) go out before the worker blocks waiting on the socket again.
func (m *Mux) runWorker(w *worker) {
	defer w.wg.Done()

	buf := make([]byte, 65535)
	for {
		for {
			select {
			case req := <-w.send:
				m.serviceSend(w, req)
				continue
			default:
			}
			break
		}

		select {
		case <-w.done:
			return
		default:
		}

		w.conn.SetReadDeadline(deadlineShort())
		n, senderAddr, err := w.conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			select {
			case <-w.done:
				return
			default:
			}
			m.reportError(err)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		m.dispatch(DataReceived{
			LocalPort:  w.port,
			SenderIP:   senderAddr.IP.String(),
			SenderPort: senderAddr.Port,
			Payload:    payload,
		})
	}
}

func (m *Mux) serviceSend(w *worker, req sendRequest) {
	addr := &net.UDPAddr{IP: net.ParseIP(req.dstIP), Port: req.dstPort}
	n, err := w.conn.WriteToUDP(req.payload, addr)
	if err != nil {
		m.reportError(err)
		return
	}
	if n != len(req.payload) {
		util.Warnf("udpmux: partial write on port %d: expected %d, wrote %d", w.port, len(req.payload), n)
	}
}

func (m *Mux) dispatch(evt DataReceived) {
	m.mu.Lock()
	h := m.onData
	m.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (m *Mux) reportError(err error) {
	m.mu.Lock()
	h := m.onError
	m.mu.Unlock()
	if h != nil {
		h(err)
	}
}
