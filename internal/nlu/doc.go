// Package nlu contains adapters for turning natural-language utterances into
// typed intent actions. It abstracts away provider-specific APIs so the
// engine can run against a hosted model, a local bridge process, or no
// recognizer at all when callers submit pre-typed actions.
package nlu
