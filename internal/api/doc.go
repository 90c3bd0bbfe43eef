// Package api exposes the REST surface for submitting plan requests, polling
// their progress, previewing plans synchronously, and recording confirmation
// decisions for gated plans.
package api
