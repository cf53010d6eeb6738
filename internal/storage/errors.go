package storage

import "errors"

var (
	// ErrMovieNotFound is returned when no movie has the requested id.
	ErrMovieNotFound = errors.New("movie not found")
	// ErrMovieExists is returned when adding a movie that is already listed.
	ErrMovieExists = errors.New("movie already added")
	// ErrTitleRequired is returned when a movie would have an empty title.
	ErrTitleRequired = errors.New("title is required")

	// ErrUserNotFound is returned when no user has the requested name.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned by Authenticate for any mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUsernameRequired is returned for an empty username.
	ErrUsernameRequired = errors.New("username is required")
	// ErrPasswordRequired is returned for an empty password.
	ErrPasswordRequired = errors.New("password is required")

	// ErrSubscriptionNotFound is returned when no push subscription matches.
	ErrSubscriptionNotFound = errors.New("push subscription not found")
)
