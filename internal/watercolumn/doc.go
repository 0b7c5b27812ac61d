// Package watercolumn estimates ocean currents over the depth of one glider
// dive from DVL velocity shear.
//
// Most pings carry only relative information: the shear between the vehicle
// and each along-beam cell. Bottom-track pings additionally anchor the
// absolute current at the vehicle. Each ping's cells become nodes in a
// propagation tree; known estimates flow forward to children as pings
// arrive, and an anchor resolves earlier unresolved chains by walking back
// through their parents.
//
// Key types: Engine, Ping, Node, Profile.
package watercolumn
