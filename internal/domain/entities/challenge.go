package entities

import "time"

// ChallengeTTL is how long an issued challenge remains valid for use.
const ChallengeTTL = 10 * time.Minute

// UsedNonceTTL is how long a consumed nonce is remembered to prevent replay.
const UsedNonceTTL = time.Hour

// Challenge is the value stored under a nonce key in the backing store
// (not a durable-store row): a one-shot message a reward claimant signs to
// prove wallet possession before a reward call executes.
type Challenge struct {
	Wallet    string    `json:"wallet"`
	OfferID   string    `json:"offerId"`
	OfferSlug string    `json:"offerSlug"`
	Nonce     string    `json:"nonce"`
	Timestamp time.Time `json:"timestamp"`
}

// Expired reports whether the challenge is older than the TTL as of now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.Sub(c.Timestamp) > ChallengeTTL
}

// CanonicalString rebuilds the human-readable string the claimant signed,
// so the server can re-derive and verify the signature against it rather
// than trusting a client-supplied copy.
func (c *Challenge) CanonicalString() string {
	return "blinkgate-reward-challenge:" +
		c.OfferSlug + ":" + c.Wallet + ":" + c.Nonce + ":" + c.Timestamp.UTC().Format(time.RFC3339)
}
