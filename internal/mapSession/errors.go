package mapSession

import "errors"

var (
	ErrSurfaceNotReady   = errors.New("map surface not ready")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrUnknownMarker     = errors.New("unknown marker")
	ErrEmptyAddress      = errors.New("empty address")
	ErrSessionClosed     = errors.New("session closed")
	ErrUnknownSession    = errors.New("unknown session")
)
