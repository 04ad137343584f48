package datalink

import (
	"net"
	"sync"
	"time"

	"github.com/bacgopher/bacstack/baclog"
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/npdu"
)

// DefaultPort is BACnet/IP's well-known UDP port.
const DefaultPort = 47808

// UDP is a BACnet/IP DataLink over a single UDP socket (net.ListenUDP
// plus a mutex-guarded conn and WriteTo/ReadFromUDP calls) behind the
// DataLink interface so it is one swappable collaborator among many
// rather than baked into the core.
type UDP struct {
	mu        sync.Mutex
	conn      *net.UDPConn
	myAddr    codec.Address
	broadcast codec.Address
	localUDP  *net.UDPAddr
	bcastUDP  *net.UDPAddr
}

// NewUDP opens a UDP socket bound to localAddr (nil picks an ephemeral
// port on all interfaces) and records broadcastAddr for GetBroadcastAddress.
func NewUDP(localAddr, broadcastAddr *net.UDPAddr) (*UDP, error) {
	conn, err := net.ListenUDP("udp4", localAddr)
	if err != nil {
		return nil, err
	}
	u := &UDP{conn: conn, localUDP: localAddr, bcastUDP: broadcastAddr}
	if localAddr != nil {
		u.myAddr = udpAddrToBACnet(localAddr)
	}
	if broadcastAddr != nil {
		u.broadcast = udpAddrToBACnet(broadcastAddr)
	}
	return u, nil
}

func udpAddrToBACnet(a *net.UDPAddr) codec.Address {
	ip := a.IP.To4()
	mac := make([]byte, 6)
	copy(mac[:4], ip)
	mac[4] = byte(a.Port >> 8)
	mac[5] = byte(a.Port)
	return codec.Address{Net: codec.NetworkLocal, Mac: mac}
}

func bacnetToUDPAddr(a codec.Address) *net.UDPAddr {
	if len(a.Mac) < 6 {
		return nil
	}
	port := int(a.Mac[4])<<8 | int(a.Mac[5])
	return &net.UDPAddr{IP: net.IPv4(a.Mac[0], a.Mac[1], a.Mac[2], a.Mac[3]), Port: port}
}

func (u *UDP) Init(iface string) error {
	baclog.WithFields(baclog.Fields{"iface": iface}).Debug("datalink/udp: init")
	return nil
}

// Send writes payload (an already-framed NPDU+APDU) to dest, broadcasting
// when dest carries a zero-length Mac.
func (u *UDP) Send(dest codec.Address, meta npdu.Meta, payload []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	target := bacnetToUDPAddr(dest)
	if dest.IsBroadcast() {
		target = u.bcastUDP
	}
	if target == nil {
		return 0, nil
	}
	return u.conn.WriteToUDP(payload, target)
}

// Receive blocks up to timeoutMs and returns an empty payload on timeout.
func (u *UDP) Receive(timeoutMs int) (codec.Address, []byte, error) {
	buf := make([]byte, 1500)
	u.mu.Lock()
	_ = u.conn.SetReadDeadline(time.Now().Add(time.Duration(timeoutMs) * time.Millisecond))
	n, addr, err := u.conn.ReadFromUDP(buf)
	u.mu.Unlock()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return codec.Address{}, nil, nil
		}
		return codec.Address{}, nil, err
	}
	src := udpAddrToBACnet(addr)
	return src, buf[:n], nil
}

func (u *UDP) GetMyAddress() codec.Address        { return u.myAddr }
func (u *UDP) GetBroadcastAddress() codec.Address { return u.broadcast }

func (u *UDP) MaintenanceTimer(elapsedSeconds int) {}

func (u *UDP) Cleanup() error {
	return u.conn.Close()
}
