/*
Package events provides a publish/subscribe broker for simulation events.

The engine publishes every state transition (transfers, blocks, releases,
deadlocks) as a types.Event. Subscribers receive events over buffered
channels; a subscriber that falls behind has events dropped rather than
stalling the simulation.
*/
package events
