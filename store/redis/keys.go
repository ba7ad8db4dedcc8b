package redis

// Redis key naming conventions for ferry data.
// All keys are prefixed with "ferry:" to avoid collisions.

const keyPrefix = "ferry:"

// recordKey returns the key for a failed job record: ferry:failed_job:{id}
func recordKey(id string) string { return keyPrefix + "failed_job:" + id }

// recordIDsKey is the Set tracking all record IDs for enumeration.
const recordIDsKey = keyPrefix + "failed_job_ids"
