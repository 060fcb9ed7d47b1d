package packet

import (
	"bytes"
)

// MQTT 5.0 property identifiers (spec §4.2 table), byte 1 of each
// property entry in a properties block.
const (
	propPayloadFormatIndicator          = 0x01
	propMessageExpiryInterval           = 0x02
	propContentType                     = 0x03
	propResponseTopic                   = 0x08
	propCorrelationData                 = 0x09
	propSubscriptionIdentifier          = 0x0B
	propSessionExpiryInterval           = 0x11
	propAssignedClientIdentifier        = 0x12
	propServerKeepAlive                 = 0x13
	propAuthenticationMethod            = 0x15
	propAuthenticationData              = 0x16
	propRequestProblemInformation       = 0x17
	propWillDelayInterval                = 0x18
	propRequestResponseInformation      = 0x19
	propResponseInformation             = 0x1A
	propServerReference                 = 0x1C
	propReasonString                    = 0x1F
	propReceiveMaximum                  = 0x21
	propTopicAliasMaximum               = 0x22
	propTopicAlias                      = 0x23
	propMaximumQoS                      = 0x24
	propRetainAvailable                 = 0x25
	propUserProperty                    = 0x26
	propMaximumPacketSize               = 0x27
	propWildcardSubscriptionAvailable   = 0x28
	propSubscriptionIdentifiersAvailable = 0x29
	propSharedSubscriptionAvailable     = 0x2A
)

// Properties is a superset container for every MQTT 5.0 property this
// module understands. Each packet type only ever sets/reads the subset
// the protocol allows for it (see the per-type Pack/Unpack methods);
// keeping one shape avoids fourteen near-identical per-type structs
// while still wire-parsing the full table (spec §9 Open Question 1).
type Properties struct {
	PayloadFormatIndicator        *uint8
	MessageExpiryInterval         *uint32
	ContentType                   string
	ResponseTopic                 string
	CorrelationData               []byte
	SubscriptionIdentifiers       []uint32
	SessionExpiryInterval         *uint32
	AssignedClientIdentifier      string
	ServerKeepAlive               *uint16
	AuthenticationMethod          string
	AuthenticationData            []byte
	RequestProblemInformation     *uint8
	WillDelayInterval             *uint32
	RequestResponseInformation    *uint8
	ResponseInformation           string
	ServerReference               string
	ReasonString                  string
	ReceiveMaximum                *uint16
	TopicAliasMaximum             *uint16
	TopicAlias                    *uint16
	MaximumQoS                    *uint8
	RetainAvailable               *uint8
	UserProperties                []UserProperty
	MaximumPacketSize             *uint32
	WildcardSubscriptionAvailable *uint8
	SubscriptionIdentifiersAvail  *uint8
	SharedSubscriptionAvailable   *uint8
}

// UserProperty is the repeatable name/value pair property (0x26). Unlike
// every other property it may appear any number of times in one block.
type UserProperty struct {
	Name  string
	Value string
}

func u8p(v uint8) *uint8   { return &v }
func u16p(v uint16) *uint16 { return &v }
func u32p(v uint32) *uint32 { return &v }

// decodeProperties reads a length-prefixed properties block (the length
// itself is a variable byte integer) and dispatches each entry by its
// identifier byte. Unknown identifiers are rejected as malformed (spec
// §4.2); properties that may not repeat are rejected as malformed if
// seen twice, except User Property which is explicitly repeatable.
func decodeProperties(buf *bytes.Buffer) (Properties, error) {
	var p Properties
	n, err := decodeLength(buf)
	if err != nil {
		return p, err
	}
	if err := need(buf, int(n)); err != nil {
		return p, err
	}
	sub := bytes.NewBuffer(buf.Next(int(n)))
	seen := map[byte]bool{}
	for sub.Len() > 0 {
		id, err := decodeU8(sub)
		if err != nil {
			return p, ErrMalformedProperty
		}
		if seen[id] && id != propUserProperty && id != propSubscriptionIdentifier {
			return p, ErrMalformedProperty
		}
		seen[id] = true
		switch id {
		case propPayloadFormatIndicator:
			v, err := decodeU8(sub)
			if err != nil {
				return p, err
			}
			p.PayloadFormatIndicator = u8p(v)
		case propMessageExpiryInterval:
			v, err := decodeU32(sub)
			if err != nil {
				return p, err
			}
			p.MessageExpiryInterval = u32p(v)
		case propContentType:
			v, err := decodeUTF8[string](sub)
			if err != nil {
				return p, err
			}
			p.ContentType = v
		case propResponseTopic:
			v, err := decodeUTF8[string](sub)
			if err != nil {
				return p, err
			}
			p.ResponseTopic = v
		case propCorrelationData:
			v, err := decodeUTF8[[]byte](sub)
			if err != nil {
				return p, err
			}
			p.CorrelationData = v
		case propSubscriptionIdentifier:
			v, err := decodeLength(sub)
			if err != nil {
				return p, err
			}
			if v == 0 {
				return p, ErrMalformedProperty
			}
			p.SubscriptionIdentifiers = append(p.SubscriptionIdentifiers, v)
		case propSessionExpiryInterval:
			v, err := decodeU32(sub)
			if err != nil {
				return p, err
			}
			p.SessionExpiryInterval = u32p(v)
		case propAssignedClientIdentifier:
			v, err := decodeUTF8[string](sub)
			if err != nil {
				return p, err
			}
			p.AssignedClientIdentifier = v
		case propServerKeepAlive:
			v, err := decodeU16(sub)
			if err != nil {
				return p, err
			}
			p.ServerKeepAlive = u16p(v)
		case propAuthenticationMethod:
			v, err := decodeUTF8[string](sub)
			if err != nil {
				return p, err
			}
			p.AuthenticationMethod = v
		case propAuthenticationData:
			v, err := decodeUTF8[[]byte](sub)
			if err != nil {
				return p, err
			}
			p.AuthenticationData = v
		case propRequestProblemInformation:
			v, err := decodeU8(sub)
			if err != nil {
				return p, err
			}
			p.RequestProblemInformation = u8p(v)
		case propWillDelayInterval:
			v, err := decodeU32(sub)
			if err != nil {
				return p, err
			}
			p.WillDelayInterval = u32p(v)
		case propRequestResponseInformation:
			v, err := decodeU8(sub)
			if err != nil {
				return p, err
			}
			p.RequestResponseInformation = u8p(v)
		case propResponseInformation:
			v, err := decodeUTF8[string](sub)
			if err != nil {
				return p, err
			}
			p.ResponseInformation = v
		case propServerReference:
			v, err := decodeUTF8[string](sub)
			if err != nil {
				return p, err
			}
			p.ServerReference = v
		case propReasonString:
			v, err := decodeUTF8[string](sub)
			if err != nil {
				return p, err
			}
			p.ReasonString = v
		case propReceiveMaximum:
			v, err := decodeU16(sub)
			if err != nil {
				return p, err
			}
			if v == 0 {
				return p, ErrProtocolErr
			}
			p.ReceiveMaximum = u16p(v)
		case propTopicAliasMaximum:
			v, err := decodeU16(sub)
			if err != nil {
				return p, err
			}
			p.TopicAliasMaximum = u16p(v)
		case propTopicAlias:
			v, err := decodeU16(sub)
			if err != nil {
				return p, err
			}
			p.TopicAlias = u16p(v)
		case propMaximumQoS:
			v, err := decodeU8(sub)
			if err != nil {
				return p, err
			}
			if v > 1 {
				return p, ErrProtocolErr
			}
			p.MaximumQoS = u8p(v)
		case propRetainAvailable:
			v, err := decodeU8(sub)
			if err != nil {
				return p, err
			}
			p.RetainAvailable = u8p(v)
		case propUserProperty:
			name, err := decodeUTF8[string](sub)
			if err != nil {
				return p, err
			}
			value, err := decodeUTF8[string](sub)
			if err != nil {
				return p, err
			}
			p.UserProperties = append(p.UserProperties, UserProperty{Name: name, Value: value})
		case propMaximumPacketSize:
			v, err := decodeU32(sub)
			if err != nil {
				return p, err
			}
			if v == 0 {
				return p, ErrProtocolErr
			}
			p.MaximumPacketSize = u32p(v)
		case propWildcardSubscriptionAvailable:
			v, err := decodeU8(sub)
			if err != nil {
				return p, err
			}
			p.WildcardSubscriptionAvailable = u8p(v)
		case propSubscriptionIdentifiersAvailable:
			v, err := decodeU8(sub)
			if err != nil {
				return p, err
			}
			p.SubscriptionIdentifiersAvail = u8p(v)
		case propSharedSubscriptionAvailable:
			v, err := decodeU8(sub)
			if err != nil {
				return p, err
			}
			p.SharedSubscriptionAvailable = u8p(v)
		default:
			return p, ErrMalformedProperty
		}
	}
	return p, nil
}

// encode serialises the set properties (nil/empty fields are omitted)
// into a length-prefixed block ready to be appended to a packet's
// variable header.
func (p Properties) encode() []byte {
	var body bytes.Buffer
	if p.PayloadFormatIndicator != nil {
		body.WriteByte(propPayloadFormatIndicator)
		body.WriteByte(*p.PayloadFormatIndicator)
	}
	if p.MessageExpiryInterval != nil {
		body.WriteByte(propMessageExpiryInterval)
		body.Write(i4b(*p.MessageExpiryInterval))
	}
	if p.ContentType != "" {
		body.WriteByte(propContentType)
		body.Write(encodeUTF8(p.ContentType))
	}
	if p.ResponseTopic != "" {
		body.WriteByte(propResponseTopic)
		body.Write(encodeUTF8(p.ResponseTopic))
	}
	if len(p.CorrelationData) > 0 {
		body.WriteByte(propCorrelationData)
		body.Write(encodeUTF8(p.CorrelationData))
	}
	for _, id := range p.SubscriptionIdentifiers {
		body.WriteByte(propSubscriptionIdentifier)
		enc, _ := encodeLength(id)
		body.Write(enc)
	}
	if p.SessionExpiryInterval != nil {
		body.WriteByte(propSessionExpiryInterval)
		body.Write(i4b(*p.SessionExpiryInterval))
	}
	if p.AssignedClientIdentifier != "" {
		body.WriteByte(propAssignedClientIdentifier)
		body.Write(encodeUTF8(p.AssignedClientIdentifier))
	}
	if p.ServerKeepAlive != nil {
		body.WriteByte(propServerKeepAlive)
		body.Write(i2b(*p.ServerKeepAlive))
	}
	if p.AuthenticationMethod != "" {
		body.WriteByte(propAuthenticationMethod)
		body.Write(encodeUTF8(p.AuthenticationMethod))
	}
	if len(p.AuthenticationData) > 0 {
		body.WriteByte(propAuthenticationData)
		body.Write(encodeUTF8(p.AuthenticationData))
	}
	if p.RequestProblemInformation != nil {
		body.WriteByte(propRequestProblemInformation)
		body.WriteByte(*p.RequestProblemInformation)
	}
	if p.WillDelayInterval != nil {
		body.WriteByte(propWillDelayInterval)
		body.Write(i4b(*p.WillDelayInterval))
	}
	if p.RequestResponseInformation != nil {
		body.WriteByte(propRequestResponseInformation)
		body.WriteByte(*p.RequestResponseInformation)
	}
	if p.ResponseInformation != "" {
		body.WriteByte(propResponseInformation)
		body.Write(encodeUTF8(p.ResponseInformation))
	}
	if p.ServerReference != "" {
		body.WriteByte(propServerReference)
		body.Write(encodeUTF8(p.ServerReference))
	}
	if p.ReasonString != "" {
		body.WriteByte(propReasonString)
		body.Write(encodeUTF8(p.ReasonString))
	}
	if p.ReceiveMaximum != nil {
		body.WriteByte(propReceiveMaximum)
		body.Write(i2b(*p.ReceiveMaximum))
	}
	if p.TopicAliasMaximum != nil {
		body.WriteByte(propTopicAliasMaximum)
		body.Write(i2b(*p.TopicAliasMaximum))
	}
	if p.TopicAlias != nil {
		body.WriteByte(propTopicAlias)
		body.Write(i2b(*p.TopicAlias))
	}
	if p.MaximumQoS != nil {
		body.WriteByte(propMaximumQoS)
		body.WriteByte(*p.MaximumQoS)
	}
	if p.RetainAvailable != nil {
		body.WriteByte(propRetainAvailable)
		body.WriteByte(*p.RetainAvailable)
	}
	for _, up := range p.UserProperties {
		body.WriteByte(propUserProperty)
		body.Write(encodeUTF8(up.Name))
		body.Write(encodeUTF8(up.Value))
	}
	if p.MaximumPacketSize != nil {
		body.WriteByte(propMaximumPacketSize)
		body.Write(i4b(*p.MaximumPacketSize))
	}
	if p.WildcardSubscriptionAvailable != nil {
		body.WriteByte(propWildcardSubscriptionAvailable)
		body.WriteByte(*p.WildcardSubscriptionAvailable)
	}
	if p.SubscriptionIdentifiersAvail != nil {
		body.WriteByte(propSubscriptionIdentifiersAvailable)
		body.WriteByte(*p.SubscriptionIdentifiersAvail)
	}
	if p.SharedSubscriptionAvailable != nil {
		body.WriteByte(propSharedSubscriptionAvailable)
		body.WriteByte(*p.SharedSubscriptionAvailable)
	}

	out, _ := encodeLength(body.Len())
	return append(out, body.Bytes()...)
}
