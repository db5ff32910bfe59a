// Package testutil contains helper builders used across tests to reduce
// boilerplate when scripting canonical event sequences and observing tool
// invocations. They are not intended for production usage.
package testutil
