/*
Package sopnav is a Mermaid workflow graph engine for driving LLM agents
through standard operating procedures one validated step at a time.

A workflow is authored as an AGENTS.md document: YAML frontmatter, prose
sections, a flowchart TD mermaid block, and per-node prompt sections.
The engine parses the flowchart into a directed graph with shape
semantics (stadium = completion point, rhombus = decision, parallelogram
= input/output annotation), then tracks per-session traversal state and
validates every requested move against the graph's edges.

# Concept

The agent's system prompt carries only the flowchart; full instructions
for each step are delivered progressively when the agent moves onto a
node. Three tool operations drive the loop:

  - load_graph resolves and parses a workflow document, registers it as
    the session's current graph, and returns a structural summary plus
    the synthesized system prompt.
  - goto_node validates a move against the current position (entry node,
    self-loop, direct successor, or branch-out from a completion node in
    strict mode), advances the path trace, and returns the node's
    instructions, tool hints, examples, and outgoing edges.
  - todo replaces the session's structured task list.

Sessions are keyed by the protocol connection identity, serialized per
session, and snapshotted to durable storage after every mutating call so
a restart rehydrates all traversal state and event history.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/sopnav/sopnav"
	)

	func main() {
		eng, err := sopnav.New("./mermaid-agents",
			sopnav.WithStrictMode(true),
			sopnav.WithSessionsDir("./data/sessions"),
		)
		if err != nil {
			log.Fatal(err)
		}
		if err := eng.LoadPersisted(context.Background()); err != nil {
			log.Fatal(err)
		}
		if err := eng.MCPServer().ServeStdio(); err != nil {
			log.Fatal(err)
		}
	}

The pkg/mermaid package can also be used standalone for parsing,
layout, and round-trip serialization of flowchart TD sources.
*/
package sopnav
