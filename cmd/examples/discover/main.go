// Command discover broadcasts a Who-Is and prints every device that
// answers within the listen window.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"time"

	bacstack "github.com/bacgopher/bacstack"
	"github.com/bacgopher/bacstack/apdu"
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/config"
	"github.com/bacgopher/bacstack/datalink"
	"github.com/bacgopher/bacstack/npdu"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s <interface>", os.Args[0])
	}
	ifaceName := os.Args[1]
	listenWindow := 5 * time.Second

	intf, err := net.InterfaceByName(ifaceName)
	if err != nil {
		log.Fatalf("could not find interface %s: %v", ifaceName, err)
	}
	addrs, err := intf.Addrs()
	if err != nil {
		log.Fatalf("could not get addresses for interface %s: %v", ifaceName, err)
	}

	var localAddr *net.UDPAddr
	var broadcastIP net.IP
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
			continue
		}
		localAddr = &net.UDPAddr{IP: ipnet.IP, Port: datalink.DefaultPort}
		ip := ipnet.IP.To4()
		mask := ipnet.Mask
		broadcastIP = make(net.IP, len(ip))
		for i := range ip {
			broadcastIP[i] = ip[i] | (^mask[i])
		}
		break
	}
	if localAddr == nil {
		log.Fatalf("could not find a suitable IPv4 address on interface %s", ifaceName)
	}
	broadcastAddr := &net.UDPAddr{IP: broadcastIP, Port: datalink.DefaultPort}

	link, err := datalink.NewUDP(localAddr, broadcastAddr)
	if err != nil {
		log.Fatalf("failed to open datalink: %v", err)
	}
	defer link.Cleanup()

	opts := config.FromEnvironment()
	stack := bacstack.New(link, opts)
	stack.OnIAm(func(instance uint32, addr codec.Address) {
		fmt.Printf("device %d answered from %s\n", instance, addr)
	})

	fmt.Println("performing who-is broadcast...")
	broadcast := link.GetBroadcastAddress()
	payload := apdu.EncodeUnconfirmedRequest(apdu.ServiceWhoIs, nil)
	if err := stack.SendUnconfirmed(broadcast, npdu.Meta{}, payload); err != nil {
		log.Fatalf("who-is broadcast failed: %v", err)
	}

	deadline := time.Now().Add(listenWindow)
	for time.Now().Before(deadline) {
		remaining := int(time.Until(deadline).Milliseconds())
		if remaining <= 0 {
			break
		}
		if err := stack.ReceiveAndDispatch(remaining); err != nil {
			log.Printf("receive error: %v", err)
		}
	}

	fmt.Println("----------------------------------------")
	fmt.Println("discovery window closed")
}
