// Package idhash derives deterministic identifiers for simulation runs.
package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// ComputeRunID computes a deterministic run_id.
// Formula: base58(SHA256(deal_id|path_id|inputs_digest))
// Re-running the same path against the same deal yields the same id.
func ComputeRunID(dealID, pathID, inputsDigest string) string {
	data := fmt.Sprintf("%s|%s|%s", dealID, pathID, inputsDigest)
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
