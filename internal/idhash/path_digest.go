package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// ComputePathDigest computes a deterministic digest of a scenario path's inputs.
// Formula: SHA256(path_id|n ; period|cpr|psa|cdr|severity|delinquency|k=v,... per input)
// Fixings are sorted by index name. Returns hex-encoded hash (64 characters).
func ComputePathDigest(path domain.ScenarioPath) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d", path.ID, len(path.Inputs))

	for _, in := range path.Inputs {
		b.WriteString(";")
		fmt.Fprintf(&b, "%d|%s|%s|%s|%s|%s|",
			in.Period,
			formatFloat(in.CPR),
			formatFloat(in.PSA),
			formatFloat(in.CDR),
			formatFloat(in.Severity),
			formatFloat(in.Delinquency),
		)

		names := make([]string, 0, len(in.IndexFixings))
		for name := range in.IndexFixings {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "%s=%s", name, formatFloat(in.IndexFixings[name]))
		}
	}

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}
