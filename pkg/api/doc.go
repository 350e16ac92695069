// Package api provides the HTTP surface of the checkbook service.
//
// All routes live under /api/v1 and use bearer token authentication
// except user registration. Handlers delegate every authorization
// decision to the permissions package and translate its typed errors
// onto HTTP statuses: not-found 404, access-denied 403, invariant
// violations 409.
package api
