package simulator

import "time"

// Connection mirrors the host connectivity descriptor.
type Connection struct {
	Type          string        `json:"type"`
	EffectiveType string        `json:"effective_type"`
	Downlink      float64       `json:"downlink"` // Mbit/s
	RTT           time.Duration `json:"rtt"`
	SaveData      bool          `json:"save_data"`
}

type networkProfile struct {
	downlink float64
	rtt      time.Duration
}

const fallbackEffectiveType = "4g"

var networkProfiles = map[string]networkProfile{
	"slow-2g": {downlink: 0.05, rtt: 2000 * time.Millisecond},
	"2g":      {downlink: 0.25, rtt: 1400 * time.Millisecond},
	"3g":      {downlink: 1.5, rtt: 400 * time.Millisecond},
	"4g":      {downlink: 10, rtt: 100 * time.Millisecond},
}

// connectionFor builds a Connection for an effective type. ok is false when the
// effective type is unknown and the 4g values were used instead.
func connectionFor(typ, effectiveType string) (conn Connection, ok bool) {
	np, ok := networkProfiles[effectiveType]
	if !ok {
		effectiveType = fallbackEffectiveType
		np = networkProfiles[fallbackEffectiveType]
	}
	return Connection{
		Type:          typ,
		EffectiveType: effectiveType,
		Downlink:      np.downlink,
		RTT:           np.rtt,
	}, ok
}
