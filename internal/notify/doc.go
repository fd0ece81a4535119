// Package notify is the notification dispatch core.
//
// A dispatch runs a short linear pipeline:
//
//	policy gate (SettingsResolver) -> recipient (RecipientResolver) -> text (Formatter) -> Channel
//
// The Dispatcher is the public entry point. It never panics and never returns
// an error: every outcome, including policy suppression and delivery faults,
// is reported as a Result whose Success flag callers inspect.
//
// # Collaborators
//
// Settings and recipients are read through SettingsSource and RecipientSource
// (implemented by internal/storage). The Channel performs the actual delivery
// (WhatsApp, Telegram, ...) and is injected at construction; the core owns no
// transport and holds no lock while calling it.
package notify
