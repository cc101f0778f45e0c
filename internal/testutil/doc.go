// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing tool metadata, function tools and
// decompositions. These helpers are intentionally minimal and are not
// intended for production usage.
package testutil
