// Package domain contains the core entities of the study engine: subjects,
// generated study content (flashcards and quiz questions), the scheduling
// slice of a reviewable item, and generation locks. It has no dependencies
// on storage or transport.
package domain
