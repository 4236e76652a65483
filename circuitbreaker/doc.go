// Package circuitbreaker guards remote operations with a persisted
// circuit breaker state machine. Breakers open on consecutive failures or
// an elevated error rate, probe recovery with a single in-flight request,
// and persist their state to an external store so a restarted process
// resumes where it left off.
package circuitbreaker
