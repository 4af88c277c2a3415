// Package task schedules background generation work inside one process.
//
// Tasks wait in a FIFO queue and are admitted to execution through a
// weighted semaphore, so no more than the configured number ever run at
// once. Each execution races its handler against a fixed deadline. A timed
// out task fails for good; any other failure of an auto-generated task gets
// exactly one more attempt at the back of the queue. Failures are summarized
// per subject in a FailureCache that outlives the tasks themselves.
//
// Only queued tasks can be canceled. Work that already holds an execution
// slot always runs to completion.
package task
