// Package awmkit implements the authenticated tag/message codec, key
// store, evidence recorder, clone-check, and watermark orchestrator behind
// an audio watermarking system's foreign-function boundary.
package awmkit
