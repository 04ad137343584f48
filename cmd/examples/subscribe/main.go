// Command subscribe discovers a device by id, subscribes to COV
// notifications on one object, and prints updates as they arrive.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	bacstack "github.com/bacgopher/bacstack"
	"github.com/bacgopher/bacstack/apdu"
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/config"
	"github.com/bacgopher/bacstack/datalink"
	"github.com/bacgopher/bacstack/npdu"
)

func main() {
	if len(os.Args) != 5 {
		log.Fatalf("Usage: %s <interface> <device-id> <object-type> <object-instance>", os.Args[0])
	}

	ifaceName := os.Args[1]
	deviceID, err := strconv.Atoi(os.Args[2])
	if err != nil {
		log.Fatalf("invalid device-id: %v", err)
	}
	objectType, err := strconv.Atoi(os.Args[3])
	if err != nil {
		log.Fatalf("invalid object-type: %v", err)
	}
	objectInstance, err := strconv.Atoi(os.Args[4])
	if err != nil {
		log.Fatalf("invalid object-instance: %v", err)
	}

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

	var targetAddr codec.Address
	found := false
	stack.OnIAm(func(instance uint32, addr codec.Address) {
		if instance == uint32(deviceID) {
			targetAddr = addr
			found = true
		}
	})

	broadcast := link.GetBroadcastAddress()
	payload := apdu.EncodeUnconfirmedRequest(apdu.ServiceWhoIs, nil)
	if err := stack.SendUnconfirmed(broadcast, npdu.Meta{}, payload); err != nil {
		log.Fatalf("who-is broadcast failed: %v", err)
	}

	deadline := time.Now().Add(requestTimeout)
	for !found && time.Now().Before(deadline) {
		remaining := int(time.Until(deadline).Milliseconds())
		if remaining <= 0 {
			break
		}
		if err := stack.ReceiveAndDispatch(remaining); err != nil {
			log.Printf("receive error: %v", err)
		}
	}
	if !found {
		log.Fatalf("device with id %d not found", deviceID)
	}
	fmt.Printf("found device %d at %s\n", deviceID, targetAddr)

	stack.OnCOVNotification(func(objType uint16, instance uint32, values map[uint32]codec.Value) {
		fmt.Println("--------------------")
		fmt.Printf("cov notification for object %d:%d\n", objType, instance)
		for propID, v := range values {
			fmt.Printf("  property %d: %v\n", propID, v)
		}
	})

	if err := stack.SubscribeCOV(targetAddr, 123, uint16(objectType), uint32(objectInstance), false, 60, int(requestTimeout.Milliseconds())); err != nil {
		log.Fatalf("subscribe-cov failed: %v", err)
	}

	fmt.Println("subscribed to cov notifications, waiting for updates...")
	for {
		if err := stack.ReceiveAndDispatch(60000); err != nil {
			log.Printf("receive error: %v", err)
		}
	}
}
