// Package fileutil provides atomic file replacement and content hashing.
package fileutil
