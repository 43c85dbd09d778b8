package repository

import "errors"

// ErrJobNotFound indicates no finished job has the given id
var ErrJobNotFound = errors.New("batch job not found")
