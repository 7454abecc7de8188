// Package server implements the MCP (Model Context Protocol) server for the
// probe tag resolver.
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
// Tag resolution:
//   - tag_extract: Resolve the probe tag of a DICOM file or frame export
//   - tag_extract_fields: Read depth, gain, gestational age and obesity fields
//
// Inspection:
//   - tag_preprocess: Return the candidate images the resolver tries
//   - tag_box_overlay: Outline the tag box on the frame
//   - tag_suggest_box: Propose tag boxes for a model that has none
//
// Configuration:
//   - tag_models: List models with a tag box and the field table
//   - tag_vocabulary: List accepted tags and sentinels
//
// # Instance Caching
//
// Decoded instances are cached by path for the lifetime of the server, so
// calling tag_preprocess after tag_extract does not parse the file again.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A frame that cannot be tagged is not an error: tag_extract reports Unknown,
// Undecided or No tag.
//
// # Usage
//
//	srv := server.New(service, server.WithLogger(logger))
//	if err := srv.Run(ctx); err != nil {
//	    logger.Error("server stopped", "error", err)
//	}
package server
