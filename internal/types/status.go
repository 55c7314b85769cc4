package types

// Status is a type for the lifecycle status of a persisted resource.
// This is used to track soft deletion and to determine if a row should
// be included in queries by default.
type Status string

const (
	StatusPublished Status = "published"
	StatusDeleted   Status = "deleted"
	StatusArchived  Status = "archived"
)

func (s Status) String() string {
	return string(s)
}
