// Package domain models vehicle telemetry as it moves from the agent through
// the edge classifier to the store.
//
// # Agent Samples
//
// The agent emits one [AggregatedData] per tick. It bundles the raw readings
// gathered at that instant:
//
//	accelerometer  integer x, y, z counts; z at rest is roughly 16667
//	gps            WGS-84 latitude and longitude in decimal degrees
//	parking        optional free-space count at a nearby lot
//	rain           intensity, nominally in [0, 1]
//	temperature    degrees Celsius
//	timestamp      ISO-8601, naive timestamps are read as UTC
//	user_id        the producing vehicle; also the classifier session key
//
// # Road State
//
// Road surface is classified over a bounded window of the most recent
// accelerometer samples for one session (see [Window]). The newest sample is
// compared against every other sample still retained:
//
//	z rises past all of them by more than the threshold  ->  "Speeding bump"
//	z drops past all of them by more than the threshold  ->  "Pit"
//	otherwise                                            ->  "Even"
//	fewer than two samples retained                      ->  "Not enough data"
//
// A single retained sample that does not conform suppresses detection.
//
// # Rain State
//
// Rain intensity maps onto a fixed scale with left-exclusive buckets of
// width 0.2 (see [BucketRain]):
//
//	0            Clear
//	(0, 0.2]     Drizzle
//	(0.2, 0.4]   Sprinkle
//	(0.4, 0.6]   Shower
//	(0.6, 0.8]   Rain
//	(0.8, 1.0]   Downpour
//	other        Invalid
package domain
