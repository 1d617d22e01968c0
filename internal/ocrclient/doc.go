// Package ocrclient talks to the extraction sidecar.
//
// The sidecar exposes two extraction endpoints that accept a multipart image
// upload and return the seven certificate fields, plus a health check that
// reports whether the Gemini backend is configured. Every call is one-shot:
// retrying is the run controller's job.
package ocrclient
