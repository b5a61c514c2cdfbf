package ir

// Version constants for persisted formats and the tool itself.
const (
	// MappingFormatVersion is the version of the serialized mapping record set.
	MappingFormatVersion = 1

	// Version is the velora release.
	Version = "0.3.0"
)
