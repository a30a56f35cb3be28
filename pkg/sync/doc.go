// Package sync implements the staged catalog synchronization engine.
//
// A sync run moves through three stages in strict order: procedure taxonomy
// sync, manifest build, and case processing. The first two stages are quick
// and run to completion in one invocation; the third consumes the manifest
// in checkpointed batches and can suspend at any batch boundary, either on a
// cooperative stop request or when a soft time or memory limit trips. A
// suspended run is resumed by a later invocation from its persisted
// checkpoint, so no single invocation ever has to process the full catalog.
//
// All engine state lives in the key/value store: the run record, the stored
// procedure set, the per-run manifest, the Stage 3 checkpoint and the case
// records themselves. Restarting the process loses nothing.
package sync
