package repository

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrNotAuthor    = errors.New("not the author")
	ErrTopicExpired = errors.New("topic expired")
)
