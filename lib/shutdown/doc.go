/*
Package shutdown contains the Supervisor, the single circuit breaker for storage
safety violations.

Every component that writes to durable storage reports failures to the supervisor.
Once OnUnsafeStorage was called:

  - CheckWrite refuses every write (MetaStoreDamaged), no later write is reported as successful
  - CheckRead still allows reads if the in-memory state was reported consistent
  - Done is closed, the server uses it to terminate in order

Observe classifies errors: MetaStoreDamaged escalates immediately, BadBytes and
SerdeJsonError are counted and escalate once the configured threshold is reached.
*/
package shutdown
