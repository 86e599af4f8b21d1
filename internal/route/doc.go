// Package route classifies files by extension and decides how each one is
// handled downstream.
//
// Types:
//   - Category (text, code, document, database, archive, image, html,
//     video, audio, unknown)
//   - Decision, a closed set of five variants: Passthrough, Skill, Archive,
//     Skip, Unsupported
//
// Functions:
//   - Ext(name) → normalized extension, compound suffixes first
//   - Classify(ext) → Category
//   - Decide(ext) → Decision
//     Precedence: skip-set → passthrough-set → skill table → Unsupported.
//   - Priority(decision, category) → default queue priority
//
// Everything here is table-driven and free of I/O so that routing is
// reproducible in tests.
package route
