// Package repository holds the MySQL access for facts that outlive a
// booking attempt: which seats are sold and what state each booking is
// in.  The sentinel values below let higher layers tell failure kinds
// apart without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update cannot be applied because the
// row is in a state that forbids it, such as cancelling a booking that
// was already confirmed.  Handlers should translate this into an HTTP
// 409 response.
var ErrConflict = errors.New("conflict")
