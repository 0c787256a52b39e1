package repository

import "github.com/pkg/errors"

var (
	ErrAnchorAlreadyStored = errors.New("anchor record already stored")
	ErrAnchorNotFound      = errors.New("anchor record not found")
)
