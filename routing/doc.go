// Package routing selects an outbound provider per channel. Entries are
// ordered by priority, then name. A send walks that order after the selected
// entry until one provider accepts the message.
package routing
