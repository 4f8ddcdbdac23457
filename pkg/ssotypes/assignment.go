package ssotypes

import (
	"crypto/md5"
	"encoding/hex"
	"math/big"
	"strings"
)

// Assignment is the 4-tuple binding a principal to a permission set in a
// target, within one instance. SourceOU carries provenance the caller may
// want for diagnostics (the OU a fanned-out account came from) but never
// participates in the fingerprint.
type Assignment struct {
	Instance       InstanceRef
	Principal      Principal
	PermissionSet  PermissionSet
	Target         Target
	SourceOU       string
}

// Fingerprint returns the MD5 digest of the concatenation of the hash keys
// of the assignment's four components, as raw bytes; FingerprintSuffix
// renders it as hex.
func (a Assignment) Fingerprint() [16]byte {
	h := md5.New()
	h.Write([]byte(a.Instance.HashKey()))
	h.Write([]byte(a.Principal.HashKey()))
	h.Write([]byte(a.PermissionSet.HashKey()))
	h.Write([]byte(a.Target.HashKey()))
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// FingerprintSuffix returns the stable 6-hex-character, uppercased resource
// name suffix derived from the fingerprint.
func (a Assignment) FingerprintSuffix() string {
	sum := a.Fingerprint()
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:6]
}

// ResourceName returns "<prefix>Assignment<FINGERPRINT>", a pure function
// of the assignment's four components so that duplicate assignments always
// collapse onto the same template resource name.
func (a Assignment) ResourceName(prefix string) string {
	return prefix + "Assignment" + a.FingerprintSuffix()
}

// ShardIndex returns the deterministic shard assignment for this record
// given a shard count N: the big-endian integer value of the full 16-byte
// fingerprint modulo N. Used by the template planner to distribute
// assignments across child stacks with a stable, roughly uniform hash.
func (a Assignment) ShardIndex(numShards int) int {
	if numShards <= 0 {
		return 0
	}
	sum := a.Fingerprint()
	v := new(big.Int).SetBytes(sum[:])
	return int(v.Mod(v, big.NewInt(int64(numShards))).Int64())
}

// HashKey returns the stable string used inside an InstanceRef's assignment
// fingerprints: the instance ARN alone identifies the instance for this
// purpose, matching the data model's four-component fingerprint definition.
func (i InstanceRef) HashKey() string {
	return "instance#" + i.InstanceArn
}
