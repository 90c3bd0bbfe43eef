// Package intent defines the typed action model produced by the intent
// source: the device layer taxonomy, the closed operation catalogue, and the
// parameter conventions shared by the recognizer, the planner, and the API.
package intent
