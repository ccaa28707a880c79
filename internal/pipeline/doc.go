// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline runs video jobs through ordered chains of remote stages.
//
// A StageRunner executes one stage: it opens a frame source on the job's
// current file, streams it to a backend while collecting the responses, and
// persists the collected output as the stage's artifact. A Chain interprets a
// Spec as a sequential loop over stages that stops at the first failure. The
// Service admits jobs, bounds how many run at once and records each job's
// lifecycle in a job.Store.
package pipeline
