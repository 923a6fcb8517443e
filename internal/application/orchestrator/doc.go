// Package orchestrator implements the core conversion pipeline.
//
// The orchestrator advances each conversion task through its state machine by:
//   - Pulling leased pending tasks from the task store every cycle
//   - Validating the proposed artifact name against the naming registry
//   - Converting legacy graph markup through the conversion service
//   - Committing the converted markup back to the wiki with conflict detection
//
// All external-client failures are classified at the stage boundary before a
// transition is written; nothing unclassified escapes a stage handler.
package orchestrator
