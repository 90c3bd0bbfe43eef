// Package engine contains the orchestrator that turns a user request into an
// execution plan. It coordinates intent recognition, device state capture,
// policy lookup, and the planning pipeline, and hands the finished plan to
// any registered observer extensions.
package engine
