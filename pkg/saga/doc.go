// Package saga implements the orchestration core of the distributed saga
// pattern for microservice transactions: a linear sequence of local and
// remote steps executed with compensation-based rollback.
//
// A Definition lists the steps of one saga type. An Instance binds a
// Definition to a correlation id (saga_id) and a Broker used to publish
// outbound messages for async steps. Execute drives the instance forward
// until it completes, suspends at an async step awaiting a broker reply,
// or fails and triggers compensation of all previously completed steps.
//
// Reply messages from remote step handlers are routed back into a fresh
// Instance of the same type by Router, keyed on (saga_id, reply task
// name) — the orchestrator never keeps a suspended saga resident in
// memory.
//
// Design Influences:
//   - absent1706/saga-framework (Celery-based Python saga orchestrator)
//   - Microservices.io Saga Pattern
package saga
