// Package flows records discovery flows: the unit of "a matched device was
// found and an integration should be offered it". A flow is keyed by
// (integration domain, unique ID), where the unique ID is the advertising
// device's USN, so repeated alive advertisements for a known device are
// no-ops.
//
// Flows persist in SQLite through Repository; Store layers an in-memory
// seen-set on top so the hot path (one call per matched domain per
// advertisement) normally never touches the database.
package flows
