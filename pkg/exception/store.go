package exception

import "github.com/yanun0323/errors"

// Store errors
var (
	ErrStoreNotFound       = errors.New("store: record not found")
	ErrStoreDuplicateGoing = errors.New("store: conversation already has a going game")
	ErrStoreEmptyRoster    = errors.New("store: empty roster")
	ErrStoreEmptyCatalog   = errors.New("store: empty security catalog")
)
