// Package release reads a published project metadata release.
//
// A release is a tree of JSON documents:
//
//	project_metadata/behavior_session_table.json
//	project_metadata/ophys_session_table.json
//	project_metadata/ophys_experiment_table.json
//	project_metadata/behavior_stage_parameters.json
//	session_data/<id>.json
//
// The tree is read through a Bucket, either an unpacked directory on local
// disk (DirBucket) or an S3-compatible object store (S3Bucket).
package release
