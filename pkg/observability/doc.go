/*
Package observability turns orchestrator lifecycle hooks into Prometheus
metrics and structured audit logs.

Hooks from several sources can be combined with Chain and handed to the
orchestrator through weave.WithHooks.
*/
package observability
