// Package vitalscope captures live camera frames and feeds them through a
// GPU compute pipeline for real-time video motion magnification.
//
// # Overview
//
// The root package defines the Frame value that flows through the system and
// the FrameBus that decouples the capture loop from its consumers. Camera
// access lives in the capture package; GPU context, resource, and dispatch
// management live in the gpu package.
//
// Data flow:
//
//	capture.Loop -> FrameBus -> { display consumer, gpu.Engine -> output consumer }
//
// Frames are immutable after publication. Producers hand a fresh pixel copy
// to the bus on every capture; consumers may retain a Frame indefinitely
// without blocking or corrupting later captures.
//
// # Pixel format
//
// Every boundary in the system speaks one pixel wire format: row-major,
// uncompressed, 8-bit-per-channel RGBA, no row padding.
package vitalscope

// Version information
const (
	// Version is the current version of the library
	Version = "0.3.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 3

	// VersionPatch is the patch version
	VersionPatch = 0
)
