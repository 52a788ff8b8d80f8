package vs

import (
	"crypto/sha256"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

// CID expresses k as a CIDv1 with the raw codec and a sha2-256 multihash.
func (k Key) CID() (gocid.Cid, error) {
	mh, err := multihash.Encode(k[:], multihash.SHA2_256)
	if err != nil {
		return gocid.Undef, errors.Wrap(err, "encoding multihash")
	}
	return gocid.NewCidV1(gocid.Raw, mh), nil
}

// KeyFromCID extracts the Key from a CID,
// which must carry a sha2-256 multihash.
func KeyFromCID(c gocid.Cid) (Key, error) {
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return Zero, errors.Wrap(err, "decoding multihash")
	}
	if dec.Code != multihash.SHA2_256 {
		return Zero, errors.Errorf("unsupported multihash code 0x%x", dec.Code)
	}
	if len(dec.Digest) != sha256.Size {
		return Zero, errors.Errorf("digest length %d, want %d", len(dec.Digest), sha256.Size)
	}
	return KeyFromBytes(dec.Digest), nil
}

// ParseKey parses s as either a hex-encoded key or a CID string.
func ParseKey(s string) (Key, error) {
	if len(s) == 2*sha256.Size {
		if k, err := KeyFromHex(s); err == nil {
			return k, nil
		}
	}
	c, err := gocid.Decode(s)
	if err != nil {
		return Zero, errors.Wrapf(err, "parsing key %s", s)
	}
	return KeyFromCID(c)
}
