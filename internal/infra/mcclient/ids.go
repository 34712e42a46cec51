package mcclient

// protoConfigState is the first version with a configuration phase between
// login and play (1.20.2).
const protoConfigState = 764

type configIDs struct {
	disconnect    int32
	keepAliveIn   int32
	keepAliveOut  int32
	knownPacksIn  int32
	knownPacksOut int32
	finishIn      int32
	finishOut     int32
}

type playIDs struct {
	disconnect   int32
	keepAliveIn  int32
	keepAliveOut int32
	updateHealth int32
}

type packetIDs struct {
	config configIDs
	play   playIDs
}

// 1.20.5 through 1.21.1 share these layouts.
var ids766 = &packetIDs{
	config: configIDs{
		disconnect:    0x02,
		keepAliveIn:   0x04,
		keepAliveOut:  0x04,
		knownPacksIn:  0x0E,
		knownPacksOut: 0x07,
		finishIn:      0x03,
		finishOut:     0x03,
	},
	play: playIDs{
		disconnect:   0x1D,
		keepAliveIn:  0x26,
		keepAliveOut: 0x18,
		updateHealth: 0x5D,
	},
}

var knownIDs = map[int]*packetIDs{
	766: ids766,
	767: ids766,
}

// lookupIDs returns nil for versions whose post-login layout is unknown; such
// sessions still log in but only drain packets afterwards.
func lookupIDs(proto int) *packetIDs {
	return knownIDs[proto]
}
