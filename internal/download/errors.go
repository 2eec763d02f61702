package download

import "errors"

var (
	ErrInvalidKey     = errors.New("invalid key")
	ErrNotReady       = errors.New("download not finished")
	ErrArchiveMissing = errors.New("zip file not found")
	ErrEmptyURL       = errors.New("url is required")
)
