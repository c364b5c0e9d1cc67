// Package admin exposes the gateway's operational read surface: aggregate
// readiness, the full service registry with health and circuit snapshots,
// a manual health-check trigger, and a gateway info endpoint. Everything
// here is a point-in-time copy composed from the owning components; the
// handlers never mutate routing state beyond the explicit probe trigger.
package admin
