package redis

// Redis key naming conventions.
// All keys are prefixed with "delayed:" to avoid collisions.

const keyPrefix = "delayed:"

// jobKeyPrefix prefixes every job hash. Scripts append the job ID to it.
const jobKeyPrefix = keyPrefix + "job:"

// jobKey returns the key for a job hash: delayed:job:{id}
func jobKey(id string) string { return jobKeyPrefix + id }

// indexKey is the Sorted Set of all job IDs scored by run_at.
const indexKey = keyPrefix + "jobs"
