// Package metadata implements the metadata manager: binds the NEC and
// interface UDP ports, routes datagrams, applies setValue, emits md_in
// snapshots, and triggers DO-write fan-out to JF plate links (§4.F).
package metadata

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nenet-io/nenet-core/pkg/audit"
	"github.com/nenet-io/nenet-core/pkg/authz"
	"github.com/nenet-io/nenet-core/pkg/hardware"
	"github.com/nenet-io/nenet-core/pkg/jfplate"
	"github.com/nenet-io/nenet-core/pkg/nerr"
	"github.com/nenet-io/nenet-core/pkg/protocol"
	"github.com/nenet-io/nenet-core/pkg/state"
	"github.com/nenet-io/nenet-core/pkg/store"
	"github.com/nenet-io/nenet-core/pkg/udpmux"
	"github.com/nenet-io/nenet-core/pkg/util"
)

// route caches everything needed to resolve a metadata id without touching
// the shared state lock's full metadata slice (§3 "Metadata route cache").
type route struct {
	plateType  int
	controlID  int
	hardAddr   int
	tport      int
}

// bootGrace is the pause between binding the two UDP ports and sending the
// initial NEC heartbeat, giving the workers time to actually bind (§4.F).
const bootGrace = 200 * time.Millisecond

// Manager owns the NEC and interface UDP ports and the per-controller JF
// plate links, and mediates every mutation between them (§4.F).
type Manager struct {
	shared *state.Shared
	mux    *udpmux.Mux
	st     store.Store
	authz  *authz.Checker
	links  map[int]*jfplate.Link // controller pk_id -> link

	necPort       int // our NENet_NEC_Port (source port for NEC traffic)
	interfacePort int
	nenetIP       string
	nenetExIP     string
	necIP         string
	necRemotePort int // NEC's own listening port
	qiIP          string
	qiPort        int

	mu                sync.RWMutex
	routes            map[int]route
	necConnected      bool
	registeredClients map[string]registeredClient
}

type registeredClient struct {
	ip   string
	port int
}

// New constructs a Manager. Call Initialize to bind ports and begin serving.
func New(shared *state.Shared, mux *udpmux.Mux, st store.Store, checker *authz.Checker) *Manager {
	return &Manager{
		shared:            shared,
		mux:               mux,
		st:                st,
		authz:             checker,
		links:             make(map[int]*jfplate.Link),
		routes:            make(map[int]route),
		registeredClients: make(map[string]registeredClient),
	}
}

// Initialize runs the sequence in §4.F: build the route cache, bind NEC
// then interface ports, subscribe to dataReceived, wait the boot grace,
// send the initial heartbeat, and push an initial md_in snapshot.
func (m *Manager) Initialize() error {
	cfg := m.shared.GetConfig()

	m.necIP = cfg.Network.NECIP
	m.necRemotePort = cfg.Network.NECPort
	m.qiIP = cfg.Network.QIIP
	m.qiPort = cfg.Network.QIPort
	m.nenetIP = cfg.Network.NENetIP
	m.nenetExIP = cfg.Network.NENetExIP
	m.necPort = cfg.Network.NENetNECPort
	m.interfacePort = cfg.Network.InterfacePort

	m.rebuildRouteCache()
	m.rebuildLinks()

	util.WithFields(map[string]interface{}{"ip": m.nenetIP, "port": m.necPort}).Info("binding NEC UDP port")
	if err := m.mux.Bind(m.nenetIP, m.necPort); err != nil {
		return &nerr.BindError{PlateID: 0, Reason: err.Error()}
	}

	util.WithFields(map[string]interface{}{"ip": m.nenetExIP, "port": m.interfacePort}).Info("binding interface UDP port")
	if err := m.mux.Bind(m.nenetExIP, m.interfacePort); err != nil {
		return &nerr.BindError{PlateID: 0, Reason: err.Error()}
	}

	m.mux.SetHandlers(m.dispatch, func(err error) {
		util.Errorf("udp mux error: %v", err)
	})

	time.Sleep(bootGrace)

	m.sendToNEC([]byte(protocol.NENetRunSuccess))
	m.emitMDInSnapshot()

	return nil
}

// Close stops every JF plate link and unbinds both ports.
func (m *Manager) Close() {
	m.mu.Lock()
	links := make([]*jfplate.Link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.mu.Unlock()

	for _, l := range links {
		l.Close()
	}

	m.mux.Unbind(m.necPort)
	m.mux.Unbind(m.interfacePort)
}

// rebuildRouteCache derives md_id -> route from the shared metadata list
// (§3). Called at startup and whenever the structural load changes.
func (m *Manager) rebuildRouteCache() {
	metas := m.shared.AllMetas()
	routes := make(map[int]route, len(metas))
	for _, md := range metas {
		r := route{plateType: md.PlateTypeID, tport: md.Tport, hardAddr: md.PlateHardAddr}
		switch md.PlateTypeID {
		case hardware.PlateTypeDOChild, hardware.PlateTypeDIChild:
			r.controlID = md.PlateControlID
		case hardware.PlateTypeMixedCtrl:
			r.controlID = md.PlateID
		}
		routes[md.PKID] = r
	}

	m.mu.Lock()
	m.routes = routes
	m.mu.Unlock()
}

// rebuildLinks creates one JF plate Link per loaded type-2/5 controller and
// connects it.
func (m *Manager) rebuildLinks() {
	for _, c := range m.shared.AllControllers() {
		id := jfplate.Identity{
			StationName: c.StationName,
			IPAddr:      c.IPAddr,
			IPPort:      c.IPPort,
			Password:    c.LoginPassword,
		}
		link := jfplate.New(id)
		m.mu.Lock()
		m.links[c.PKID] = link
		m.mu.Unlock()

		if err := link.Connect(); err != nil {
			util.WithController(c.StationName).Warnf("initial connect failed: %v", err)
		}
	}
}

// dispatch routes a received datagram by local_port (§4.F "Initialization
// sequence").
func (m *Manager) dispatch(evt udpmux.DataReceived) {
	sender := net.JoinHostPort(evt.SenderIP, strconv.Itoa(evt.SenderPort))
	switch evt.LocalPort {
	case m.necPort:
		m.onNECData(evt.Payload)
	case m.interfacePort:
		m.onInterfaceData(sender, evt.SenderIP, evt.SenderPort, evt.Payload)
	}
}

// onNECData handles NEC ingress (§4.F "NEC ingress").
func (m *Manager) onNECData(payload []byte) {
	if string(payload) == protocol.NECRunSuccess {
		m.mu.Lock()
		wasConnected := m.necConnected
		m.necConnected = true
		m.mu.Unlock()

		if !wasConnected {
			util.Info("NEC connection established")
			m.sendToNEC([]byte(protocol.NENetRunSuccess))
			m.emitMDInSnapshot()
		}
		return
	}

	msg, err := protocol.Parse(payload)
	if err != nil {
		util.Warnf("dropping malformed NEC datagram: %v", err)
		return
	}

	m.fanOutDOWrites()

	if msg.T == protocol.TypeMDChange || msg.T == protocol.TypeMDIn {
		m.emitMDInSnapshot()
	}
}

// fanOutDOWrites triggers setEachDO/setSlaveEachDO(isSend=true, 0, 0) on
// every loaded controller's link, per §4.F.
func (m *Manager) fanOutDOWrites() {
	m.mu.RLock()
	links := make([]*jfplate.Link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.mu.RUnlock()

	for _, l := range links {
		l.SetEachDO(true, 0, 0)
		l.SetSlaveEachDO(true, 0, 0)
	}
}

// onInterfaceData handles interface ingress (§4.F "Interface ingress").
func (m *Manager) onInterfaceData(sender, senderIP string, senderPort int, payload []byte) {
	msg, err := protocol.Parse(payload)
	if err != nil {
		util.Warnf("dropping malformed interface datagram from %s: %v", sender, err)
		return
	}

	switch msg.T {
	case protocol.TypeSetValue:
		m.handleSetValue(sender, senderIP, senderPort, msg)
	case protocol.TypeAddRegListen:
		m.handleAddRegListen(sender, senderIP, senderPort)
	case protocol.TypeButtonGrade, protocol.TypeEndGrade:
		util.WithFields(map[string]interface{}{"from": sender, "t": msg.T}).Info("reserved message received")
	default:
		// ignored
	}
}

// handleSetValue applies §4.F's "setValue application": authorize, persist
// atomically, mutate in-memory state, then reply and (on full success)
// re-emit a snapshot. Persistence precedes mutation precedes emission, and
// that ordering is preserved even though the store write happens outside
// the shared-state lock (§5, DESIGN NOTES reentrant-handler guidance).
func (m *Manager) handleSetValue(sender, senderIP string, senderPort int, msg *protocol.Message) {
	start := time.Now()

	if err := m.authz.Check(authz.PermSetValue, sender); err != nil {
		audit.Log(audit.NewEvent(sender, audit.OpSetValue).WithError(err).WithDuration(time.Since(start)))
		m.sendAck(senderIP, senderPort, protocol.TypeSetValueAck, false)
		return
	}

	m.mu.RLock()
	routes := m.routes
	m.mu.RUnlock()

	updates := make([]store.ValueUpdate, 0, len(msg.I))
	changes := make([]audit.ValueChange, 0, len(msg.I))
	allKnown := true
	for _, item := range msg.I {
		if _, ok := routes[item.D]; !ok {
			allKnown = false
			continue
		}
		v, err := strconv.Atoi(item.V)
		if err != nil {
			allKnown = false
			continue
		}
		updates = append(updates, store.ValueUpdate{MDID: item.D, Value: v})
		changes = append(changes, audit.ValueChange{MDID: item.D, NewValue: item.V})
	}

	if len(updates) == 0 {
		audit.Log(audit.NewEvent(sender, audit.OpSetValue).WithError(fmt.Errorf("empty update list")).WithDuration(time.Since(start)))
		m.sendAck(senderIP, senderPort, protocol.TypeSetValueAck, false)
		return
	}

	if err := m.st.UpdateMetaValues(updates); err != nil {
		audit.Log(audit.NewEvent(sender, audit.OpSetValue).WithChanges(changes).WithError(err).WithDuration(time.Since(start)))
		m.sendAck(senderIP, senderPort, protocol.TypeSetValueAck, false)
		return
	}

	for _, u := range updates {
		m.shared.SetCurrentValue(u.MDID, u.Value)
	}

	ok := allKnown
	evt := audit.NewEvent(sender, audit.OpSetValue).WithChanges(changes).WithDuration(time.Since(start))
	if ok {
		evt.WithSuccess()
	} else {
		evt.WithError(fmt.Errorf("partial batch: some ids unknown"))
	}
	audit.Log(evt)

	m.sendAck(senderIP, senderPort, protocol.TypeSetValueAck, ok)
	if ok {
		m.emitMDInSnapshot()
	}
}

// handleAddRegListen authorizes the sender, remembers it, and replies with an
// ack plus a fresh md_in snapshot (§4.F). Re-registering the same (ip,port) is
// idempotent: the map key is unique per "ip:port" (§8).
func (m *Manager) handleAddRegListen(sender, senderIP string, senderPort int) {
	if err := m.authz.Check(authz.PermAddRegListen, sender); err != nil {
		audit.Log(audit.NewEvent(sender, audit.OpAddRegListen).WithError(err))
		m.sendAck(senderIP, senderPort, protocol.TypeAddRegListenAck, false)
		return
	}

	m.mu.Lock()
	m.registeredClients[sender] = registeredClient{senderIP, senderPort}
	m.mu.Unlock()

	audit.Log(audit.NewEvent(sender, audit.OpAddRegListen).WithSuccess())
	m.sendAck(senderIP, senderPort, protocol.TypeAddRegListenAck, true)
	m.emitMDInSnapshot()
}

func (m *Manager) sendAck(ip string, port int, ackType string, ok bool) {
	payload := protocol.NewAck(ackType, ok)
	if err := m.mux.SendFrom(m.interfacePort, ip, port, payload); err != nil {
		util.Warnf("failed to send %s to %s:%d: %v", ackType, ip, port, err)
	}
}

// sendToNEC sends raw bytes from the NEC source port to (nec_ip, nec_port).
func (m *Manager) sendToNEC(payload []byte) {
	if err := m.mux.SendFrom(m.necPort, m.necIP, m.necRemotePort, payload); err != nil {
		util.Warnf("failed to send to NEC: %v", err)
	}
}

// emitMDInSnapshot builds and sends the md_in message carrying every
// metadata element's id and current stringified value (§4.F).
func (m *Manager) emitMDInSnapshot() {
	metas := m.shared.AllMetas()
	items := make([]protocol.MetaInfo, 0, len(metas))
	for _, md := range metas {
		items = append(items, protocol.MetaInfo{D: md.PKID, V: strconv.Itoa(md.CurrentValue)})
	}
	msg := &protocol.Message{T: protocol.TypeMDIn, I: items}

	b, err := msg.Marshal()
	if err != nil {
		util.Errorf("failed to marshal md_in snapshot: %v", err)
		return
	}
	m.sendToNEC(b)
}

// RegisteredClientCount returns the number of distinct (ip,port) clients
// that have called addRegListen, for diagnostics and tests.
func (m *Manager) RegisteredClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.registeredClients)
}
