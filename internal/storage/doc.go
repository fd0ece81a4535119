// Package storage persists the notification service's relational state in
// SQLite: tenant notification settings and WhatsApp credentials, contacts,
// conversations with their outgoing messages, approval requests, daily
// activity stats and the delivery audit log.
//
// The store implements notify.SettingsSource and notify.RecipientSource, so
// the dispatch core reads it directly.
package storage
