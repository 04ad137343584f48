// Command readspecific discovers devices, then reads a couple of named
// properties off a fixed object on each one.
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
	"github.com/bacgopher/bacstack/objects"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s <interface>", os.Args[0])
	}
	ifaceName := os.Args[1]
	requestTimeout := 5 * time.Second

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

	type found struct {
		instance uint32
		addr     codec.Address
	}
	var devices []found
	stack.OnIAm(func(instance uint32, addr codec.Address) {
		devices = append(devices, found{instance, addr})
	})

	fmt.Println("performing who-is broadcast...")
	broadcast := link.GetBroadcastAddress()
	payload := apdu.EncodeUnconfirmedRequest(apdu.ServiceWhoIs, nil)
	if err := stack.SendUnconfirmed(broadcast, npdu.Meta{}, payload); err != nil {
		log.Fatalf("who-is broadcast failed: %v", err)
	}

	deadline := time.Now().Add(requestTimeout)
	for time.Now().Before(deadline) {
		remaining := int(time.Until(deadline).Milliseconds())
		if remaining <= 0 {
			break
		}
		if err := stack.ReceiveAndDispatch(remaining); err != nil {
			log.Printf("receive error: %v", err)
		}
	}

	if len(devices) == 0 {
		fmt.Println("no devices found.")
		return
	}

	fmt.Printf("discovered %d device(s)\n", len(devices))
	for _, d := range devices {
		fmt.Println("----------------------------------------")
		fmt.Printf("device id: %d, address: %s\n", d.instance, d.addr)

		fmt.Printf("\n  reading object name and present value for analog-input:3...\n")
		name, err := stack.ReadProperty(d.addr, uint16(objects.TypeAnalogInput), 3, uint32(objects.PropObjectName), codec.ArrayAll, int(requestTimeout.Milliseconds()))
		if err != nil {
			log.Printf("  failed to read object-name: %v", err)
		} else {
			fmt.Printf("    object-name: %v\n", name)
		}
		present, err := stack.ReadProperty(d.addr, uint16(objects.TypeAnalogInput), 3, uint32(objects.PropPresentValue), codec.ArrayAll, int(requestTimeout.Milliseconds()))
		if err != nil {
			log.Printf("  failed to read present-value: %v", err)
		} else {
			fmt.Printf("    present-value: %v\n", present)
		}
	}
	fmt.Println("----------------------------------------")
}
