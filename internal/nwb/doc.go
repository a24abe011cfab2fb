// Package nwb writes neurophysiology container files from session data.
//
// An Input is parsed and validated before anything touches the output path.
// A Serializer turns the session data into an in-memory Container, an Encoder
// persists that container, and Writer ties the two together with an atomic
// temp-file-and-rename so a failed write never leaves a file at the target.
package nwb
