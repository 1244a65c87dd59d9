// Package security seals notification tokens at rest.
package security
