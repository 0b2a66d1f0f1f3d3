// Package domain contains the core business entities, value objects, and
// domain logic of the job system: the Job record, its status state
// machine, and the invariants the rest of the application relies on. It
// is independent of any specific infrastructure or delivery mechanism.
package domain
