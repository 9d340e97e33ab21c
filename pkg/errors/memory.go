package errors

var (
	// ErrNotFound is returned when a node, chunk or snapshot does not exist.
	ErrNotFound = New("not found")

	// ErrInvalidConfig marks a static configuration that cannot be used.
	ErrInvalidConfig = New("invalid configuration")

	// ErrForeignUser is returned when data owned by another user is handed
	// to a manager scoped to a different identity.
	ErrForeignUser = New("data belongs to a different user")

	// ErrUnavailable marks a remote backend that could not be reached.
	ErrUnavailable = New("backend unavailable")

	// ErrEmptyContent rejects ingestion of blank text.
	ErrEmptyContent = New("content cannot be empty")

	// ErrInvalidFeedback rejects a feedback type the scorer does not know.
	ErrInvalidFeedback = New("unknown feedback type")
)
