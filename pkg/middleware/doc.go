// Package middleware provides HTTP middleware for the checkbook API:
// bearer token authentication, request correlation IDs, and structured
// request logging.
package middleware
