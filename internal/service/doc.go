// Package service contains the application-specific use cases and business
// logic. It orchestrates interactions between domain objects and repositories
// (defined in internal/store) to fulfill application features.
//
// The package is the seam between the HTTP surface and the job machinery:
// the API handlers call JobService for submission, inspection, and
// cancellation, while execution stays with the runner, which works the
// store directly on its own schedule.
//
// Key responsibilities:
//
// 1. Submission:
//   - Resolve the job type in the registry and validate the payload
//     against its schema before anything is persisted
//   - Create the pending job row and emit the submission event that
//     nudges local workers
//
// 2. Inspection and cancellation:
//   - Fetch, list, and cancel jobs through the repository interface,
//     translating store-level errors to service-level sentinels
//
// 3. Error Handling:
//   - Contract errors (unknown type, rejected payload, not cancellable)
//     pass through unwrapped so the API layer can map them with errors.Is
//   - Unexpected failures are wrapped in JobServiceError with the
//     operation that failed
//
// The service layer depends on domain entities and repository interfaces
// (from store), but never on specific infrastructure implementations.
package service
