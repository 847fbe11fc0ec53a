// Package api exposes the REST surface for invoking toolchain commands,
// submitting asynchronous invocations, and inspecting their status. It also
// serves the health and metrics endpoints.
package api
