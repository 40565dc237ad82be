// Package domain holds the shared value types of the workflow navigation
// engine: todo items, observability events, session state snapshots, and
// the sentinel errors of the traversal contract. It has no behavior beyond
// validation and summarization so every layer can depend on it freely.
package domain
