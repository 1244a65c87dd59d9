// Package webhooks verifies signed Mini App webhook bodies and hands the
// decoded events to the dispatcher.
//
// Processing order is fixed: size check, signature and app key
// verification, then dispatch. Nothing is mutated before verification
// succeeds.
package webhooks
