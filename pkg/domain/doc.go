/*
Package domain contains the core models of the Weave orchestrator.

It defines the platforms that consume the shared library, the change events produced
by file watching, deployment pipelines and integration events. This package is kept
free of I/O and persistence so every other package can depend on it.

# Key Entities

  - Platform: A cooperating project (web, mobile, desktop, cloud, extension) with its commands.
  - ChangeEvent: A single filesystem change observed by a synchronizer.
  - Pipeline: An ordered list of deployment steps with optional rollback.
  - IntegrationEvent: A domain event carried by an integration channel.
  - ShutdownReport: The final state flushed when the orchestrator stops.
*/
package domain
