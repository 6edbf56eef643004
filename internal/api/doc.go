// Package api exposes the backup engine over HTTP: manual jobs, process
// locks, downloads, the schedule document and the scheduler tick.
package api
