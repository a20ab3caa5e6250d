// Package domain defines the core types of the presence engine.
//
// # Core Types
//
// Device is a registry record mapping a hardware address to the identity that
// owns it, together with a free-text description and a PrivacyLevel.
//
// Station is what a station source (wireless controller, router neighbour
// table, ARP sweep) reports as currently associated. Sighting is the
// timestamped form of a station that may be appended to the presence history.
//
// AggregationResult is the per-cycle summary that gets published: whether the
// space is occupied, how many registered devices were seen, how many distinct
// identities they belong to and the names that may be shown.
//
// # Privacy
//
// PrivacyLevel is a total order of five levels, most revealing first. The order
// drives three decisions: whether a device is counted at all (HideIdentity is
// not), which name is displayed (real name or the anonymous placeholder) and
// whether a sighting may be logged (NoLog never is). When an identity has
// several devices present, the lowest level wins.
//
// # Design Principles
//
// - No database or external dependencies
// - Pure domain logic without infrastructure concerns
package domain
