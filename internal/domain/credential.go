package domain

// LocationCredential is the read-only attestation written by the location
// verifier for a trader.
type LocationCredential struct {
	Owner           Address  `json:"owner"`
	IsVerified      bool     `json:"is_verified"`
	Region          RegionID `json:"region"`
	LastVerifiedSeq uint64   `json:"last_verified_seq"`
	Nullifier       Hash     `json:"nullifier"`
}

// Authorize checks that the credential admits trading in region.
func (c LocationCredential) Authorize(region RegionID) error {
	if !c.IsVerified {
		return ErrLocationNotVerified
	}
	if c.Region != region {
		return ErrWrongRegion
	}
	return nil
}
