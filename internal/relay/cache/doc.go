// Package cache provides short-TTL memoization of upstream responses keyed
// by request identity (method + endpoint + canonicalized params). Expired
// entries are logically absent on lookup; an optional janitor sweeps them
// for memory bounding.
package cache
