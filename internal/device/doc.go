// Package device models the read-only state snapshot the planner consumes:
// wallet, power, storage, camera, network and installed-application state. It
// defines the provider contract plus a composite that overlays live sections
// (for example chain-derived wallet balance and peer count) onto a base
// snapshot. Snapshots are immutable values for the duration of one planning
// call.
package device
