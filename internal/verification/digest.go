package verification

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// Digest hashes a PeriodState sequence into a hex SHA-256 string.
// States are encoded as msgpack with sorted map keys and decimals in their
// canonical string form, so equal states always digest equally.
func Digest(states []*domain.PeriodState) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)

	if err := enc.EncodeArrayLen(len(states)); err != nil {
		return "", err
	}
	for _, s := range states {
		if s == nil {
			return "", fmt.Errorf("digest: nil state")
		}
		if err := enc.Encode(canonical(s)); err != nil {
			return "", fmt.Errorf("digest period %d: %w", s.Period, err)
		}
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

type stateRecord struct {
	Period     int                `msgpack:"period"`
	Collateral []string           `msgpack:"collateral"`
	Rates      []float64          `msgpack:"rates"`
	Loans      [][]string         `msgpack:"loans"`
	Variables  map[string]float64 `msgpack:"variables"`
	Tranches   [][]string         `msgpack:"tranches"`
	Fees       [][]string         `msgpack:"fees"`
	Reserve    string             `msgpack:"reserve"`
	Triggers   [][]string         `msgpack:"triggers"`
}

func canonical(s *domain.PeriodState) stateRecord {
	c := s.Collateral
	rec := stateRecord{
		Period: s.Period,
		Collateral: []string{
			dec(c.Balance), dec(c.OriginalBalance), dec(c.CumulativeLoss),
			dec(c.CumulativePaydown), dec(c.CumulativeDefaults),
		},
		Rates:     []float64{c.WAC, c.NetWAC},
		Variables: s.Variables,
		Reserve:   dec(s.Reserve),
	}
	for _, l := range s.Loans {
		rec.Loans = append(rec.Loans, []string{
			l.ID, dec(l.Balance), dec(l.OriginalBalance),
			flt(l.NoteRate), flt(l.ServicingRate),
			strconv.Itoa(l.RemainingTerm), strconv.Itoa(l.Age),
		})
	}
	for _, t := range s.Tranches {
		rec.Tranches = append(rec.Tranches, []string{
			t.ID, dec(t.Balance), dec(t.InterestShortfall), dec(t.Writedown), strconv.FormatBool(t.Accreting),
		})
	}
	for _, f := range s.Fees {
		rec.Fees = append(rec.Fees, []string{f.ID, dec(f.Unpaid)})
	}
	for _, t := range s.Triggers {
		rec.Triggers = append(rec.Triggers, []string{
			t.TriggerID, string(t.Status), strconv.Itoa(t.ConsecutivePasses), strconv.Itoa(t.MonthsBreached),
		})
	}
	return rec
}

func dec(d decimal.Decimal) string {
	return d.String()
}

func flt(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
