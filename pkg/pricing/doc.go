// Package pricing supplies the spot price snapshot each sweep bids against.
package pricing
