package alarm

import "github.com/bacgopher/bacstack/codec"

// Recipient is one row of a Notification Class object's recipient list:
// a destination address plus which of the three transitions it wants and
// whether it wants a confirmed or unconfirmed notification.
type Recipient struct {
	Address        codec.Address
	ProcessID      uint32
	ConfirmedNotifications bool
	WantOffnormal  bool
	WantFault      bool
	WantNormal     bool
}

// NotificationClass is the object type that owns a recipient list and
// the three per-transition priorities, built on the PROP_NOTIFICATION_CLASS
// property already present in the property table (see DESIGN.md).
type NotificationClass struct {
	Instance    uint32
	Priority    [3]uint8 // to-offnormal, to-fault, to-normal
	AckRequired codec.BitString
	Recipients  []Recipient
}

// Classes is the in-memory Notification Class object set, mirroring the
// shape of objects.AnalogValues/BinaryValues closely enough to register
// under an objects.Table if the embedder chooses to expose it for
// read/write; the engine itself only needs to resolve a class id to its
// recipients.
type Classes struct {
	instances map[uint32]*NotificationClass
}

func NewClasses() *Classes {
	return &Classes{instances: make(map[uint32]*NotificationClass)}
}

func (c *Classes) Add(instance uint32, recipients ...Recipient) {
	c.instances[instance] = &NotificationClass{Instance: instance, Recipients: recipients}
}

// Recipients returns the configured fan-out list for class id, filtered
// to recipients who asked for the given transition.
func (c *Classes) Recipients(classID uint32, to EventState) []Recipient {
	nc, ok := c.instances[classID]
	if !ok {
		return nil
	}
	out := make([]Recipient, 0, len(nc.Recipients))
	for _, r := range nc.Recipients {
		switch to {
		case EventFault:
			if r.WantFault {
				out = append(out, r)
			}
		case EventNormal:
			if r.WantNormal {
				out = append(out, r)
			}
		default:
			if r.WantOffnormal {
				out = append(out, r)
			}
		}
	}
	return out
}
