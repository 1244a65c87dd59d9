// Package delivery sends notifications to Mini App client push endpoints.
package delivery
