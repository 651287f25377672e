package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// The message is safe to show to end users and does not enable account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailAlreadyExists       = errors.New("email already exists")
	ErrNameRequired             = errors.New("name required")

	ErrTitleAndAuthorRequired = errors.New("title and author required")
	ErrInvalidReadingStatus   = errors.New("invalid reading status")
	ErrInvalidProgress        = errors.New("progress must be between 0 and 100")
	ErrShelfEntryNotFound     = errors.New("shelf entry not found")

	ErrSpaceNameRequired = errors.New("space name required")
	ErrSpaceNotFound     = errors.New("space not found")
	ErrNotSpaceMember    = errors.New("not a space member")
	ErrEmptyMessage      = errors.New("message content required")

	ErrAvatarTooLarge   = errors.New("avatar exceeds the size limit")
	ErrAvatarNotAnImage = errors.New("avatar must be an image")
)
