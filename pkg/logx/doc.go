// Package logx is the structured logger used across artebot.
//
// Components receive a Logger value tagged with comp=<name> and add typed
// fields per line. The Service behind it writes pretty console lines or JSON,
// optionally to a file, and can be reconfigured while running.
package logx
