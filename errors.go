package nelgraph

import "errors"

var (
	// ErrEntityNotFound is returned when a name or id resolves to no entity.
	ErrEntityNotFound = errors.New("nelgraph: entity not found")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("nelgraph: invalid configuration")

	// ErrUnsupportedFormat is returned for input files no parser handles.
	ErrUnsupportedFormat = errors.New("nelgraph: unsupported document format")

	// ErrEmptyText is returned when there is no text to process.
	ErrEmptyText = errors.New("nelgraph: empty text")

	// ErrTaggerUnavailable is returned when the configured tagger cannot be
	// built, e.g. the llm tagger without a chat provider.
	ErrTaggerUnavailable = errors.New("nelgraph: tagger unavailable")

	// ErrStoreClosed is returned when operating on a closed engine.
	ErrStoreClosed = errors.New("nelgraph: store is closed")

	// ErrExportDisabled is returned by Push when no Neo4j URI is configured.
	ErrExportDisabled = errors.New("nelgraph: neo4j export not configured")
)
