// Package repository reads the durable catalog and booking records owned
// by the external CRUD system.  The seat cache reconciles toward what
// these queries return, never the other way around; nothing in this
// package writes.
package repository

import "errors"

// ErrEventNotFound is returned when the requested event does not exist in
// the durable catalog.  Handlers should translate this into an HTTP 404
// response.
var ErrEventNotFound = errors.New("event not found")
