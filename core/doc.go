// Package core contains the notification domain: recipient credentials,
// verified webhook events, the subscription transition table and the service
// that applies events and sends notifications. Adapters depend on this
// package; core must not depend on storage or transport adapters.
package core
