/*
Package scenario loads and replays YAML demo scenarios against the
simulation engine. A scenario declares processes by name, connections
between them, and a sequence of send/consume steps; running one clears
the current simulation first.
*/
package scenario
