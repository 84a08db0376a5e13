/*
Package ports defines the driven ports (interfaces) of the Weave orchestrator.

These interfaces decouple the orchestration logic from external implementations:
child processes, persistence backends, message queues and platform status endpoints.

# Key Interfaces

  - CommandRunner: Runs a platform shell command and captures its output.
  - StateStore: Persists per-platform status and last synchronization time.
  - DistributedLocker: Serializes builds of one platform across orchestrator replicas.
  - TriggerSource: Yields pending integration events for realtime channels.
  - StatusReporter: Answers synchronization status for polling channels.
  - SignalSource: Reports external deployment signals (e.g. critical patches).
  - Deduplicator: Remembers delivered event ids so duplicates are handled once.
  - EventPublisher, SignalPublisher: The producing side of TriggerSource and SignalSource,
    used by webhooks and the HTTP API.
*/
package ports
