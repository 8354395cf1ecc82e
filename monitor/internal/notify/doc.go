// Package notify delivers formatted alert messages.
//
// Console prints "[ALERT] <message>" lines; Webhook POSTs {"text": message}
// with a fixed 5 second timeout; Multi fans out. New(url, w) builds the
// console-only sink when url is empty, console + webhook otherwise.
//
// Every delivery failure is a *DispatchError. Callers log it and move on;
// nothing here retries.
package notify
