// Package generation defines the boundary between the task scheduler and the
// external language model that writes study content. The Generator interface
// turns a subject's material into flashcard or quiz drafts; drafts become
// domain entities only after the caller validates and schedules them.
package generation
