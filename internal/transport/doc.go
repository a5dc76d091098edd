/*
Package transport is the upstream HTTP client used by the relay daemon.

It wraps resty over a retryable transport with client-side retries
disabled: the request queue owns retry policy, backoff, and rate-limit
cool-downs, so the transport's job is a single attempt plus honest
classification of what came back. Responses map onto the queue's error
taxonomy:

  - network errors and 5xx are transient
  - 429 is rate-limited, carrying the parsed Retry-After window
  - other 4xx are fatal (retrying an invalid request cannot help)
*/
package transport
