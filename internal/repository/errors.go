package repository

import "errors"

// Sentinel errors surfaced by repositories so services can map them onto API
// error codes without inspecting SQL state.
var (
	ErrTransitionNotAllowed = errors.New("term status transition not allowed")
	ErrTermAlreadyOpen      = errors.New("another term is already open")
	ErrNoOpenTerm           = errors.New("no open term")
	ErrInsufficientCredit   = errors.New("insufficient credit balance")
	ErrDuplicateReference   = errors.New("payment reference already recorded")
	ErrAlreadyReversed      = errors.New("payment already reversed")
)
