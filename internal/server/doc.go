// Package server implements the MCP (Model Context Protocol) server for
// reading photographed answer sheets.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Template:
//   - omr_validate_template: Parse metadata and summarize it
//
// Alignment:
//   - omr_detect_markers: Find fiducial markers in a photo
//   - omr_align: Rectify a photo and report capture quality
//
// Reading:
//   - omr_read: Full read (questions, quality summary, auxiliary blocks)
//   - omr_annotate: Read and draw bubble states on the aligned sheet
//
// External reading:
//   - omr_prepare_external_crop: Enhanced main block crop as JPEG
//   - omr_read_external: Turn external answers into a report
//
// Misc:
//   - omr_backend_info: Detector, OCR backend and effective configuration
//
// # Errors
//
// A failed tool call returns code -32000 with data {"kind", "error"}, where
// kind is the read failure kind ("invalid_metadata", "capture_quality", ...).
// Malformed tools/call params return -32602.
//
// # Caching
//
// Photos are cached by path for the server's lifetime. Templates are cached
// by path and reloaded when the file's size or modification time changes.
package server
