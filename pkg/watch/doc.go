// Package watch runs periodic condition checks and forwards their alert
// messages, suppressing repeats: a message set is only sent when it differs
// from the last one sent. Each scheduler owns its own interval and its own
// dedup state; the state lives in memory and resets on restart.
package watch
