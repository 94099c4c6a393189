package repositories

import "errors"

type ErrNotFound struct {
	Room string
}

func (e *ErrNotFound) Error() string {
	if e.Room == "" {
		return "not found"
	}
	return "room " + e.Room + " not found"
}

func IsNotFound(err error) bool {
	var notFound *ErrNotFound
	return errors.As(err, &notFound)
}
