package world

const (
	ActivityStreamsContext = "https://www.w3.org/ns/activitystreams"
	SecurityContext        = "https://w3id.org/security/v1"

	ActivityJSONType = "application/activity+json"
	LDJSONType       = "application/ld+json"
	JRDJSONType      = "application/jrd+json"

	// Accept header sent when fetching remote actor documents.
	FetchAccept = "application/activity+json,application/ld+json"
)

const (
	// InboxQueue is the redis list ingestion pushes new entry IDs onto and
	// the background worker pops from.
	InboxQueue = "atrium:inbox:queue"
)
