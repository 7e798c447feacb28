package router

import "errors"

// ErrDuplicateHandler means a handler is already registered for the type.
var ErrDuplicateHandler = errors.New("handler already registered")
