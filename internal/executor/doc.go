// Package executor implements the Task Executor (C4): given a task and
// a worker, it reads the source document, calls the upstream TTS
// endpoint, classifies the outcome, and settles the task — updating the
// worker pool, the adaptive controller, and the registry exactly once
// per execution.
//
// Grounded on the teacher's internal/executor.DefaultExecutor
// (Execute/executeWithRetry/sendProgressEvent), generalized from
// shell-command execution with a parser registry to HTTP-call execution
// with outcome classification, and on async_text_to_speech in
// original_source/app.py for the exact classification predicates.
package executor
