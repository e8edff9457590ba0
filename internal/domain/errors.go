package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrAlreadyExists = errors.New("already exists")
var ErrInvalidMagnet = errors.New("invalid magnet uri")
var ErrMetadataTimeout = errors.New("metadata timeout")
