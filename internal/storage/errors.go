package storage

import "fmt"

// PersistenceError reports a failed read or write of a stored file.
// The host logs it and keeps running on its in-memory state.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Path: path, Err: err}
}
