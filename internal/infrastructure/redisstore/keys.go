package redisstore

// All keys are prefixed with "listingconverter:stream:" to avoid collisions.
const keyPrefix = "listingconverter:stream:"

// jobKey returns the key holding an encoded job: listingconverter:stream:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// queueKey returns the list key of a job's event queue.
func queueKey(id string) string { return keyPrefix + "queue:" + id }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"
