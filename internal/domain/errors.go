package domain

import "errors"

// ErrNotFound indicates the requested record does not exist
var ErrNotFound = errors.New("not found")

// ErrNotDownloaded indicates the book has no complete local file
var ErrNotDownloaded = errors.New("book is not downloaded")

// ErrInvalidInput indicates a blank or malformed argument
var ErrInvalidInput = errors.New("invalid input")

// ErrCatalogUnavailable indicates neither the backend nor the snapshot cache could answer
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// ErrUnauthorized indicates the auth provider rejected the credentials
var ErrUnauthorized = errors.New("unauthorized")
