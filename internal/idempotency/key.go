// Package idempotency derives the references that make retried transaction
// requests collide instead of duplicating their financial effect.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/punchamoorthee/vtuledger/internal/domain"
)

// MaxReferenceLength bounds caller-supplied references.
const MaxReferenceLength = 128

const (
	derivedPrefix = "vtu_"
	depositPrefix = "dep_"
)

var ErrReferenceTooLong = errors.New("reference exceeds 128 characters")

// Input is the semantic content of a transaction attempt.
type Input struct {
	OwnerID         string
	Kind            domain.Kind
	Amount          int64
	Recipient       string
	CallerReference string
}

// Derive returns the caller's reference verbatim when one is given, otherwise a
// hash of owner, kind, amount and recipient. No time component goes into the
// hash: identical logical requests must produce the same reference.
func Derive(in Input) string {
	if ref := strings.TrimSpace(in.CallerReference); ref != "" {
		return ref
	}
	h := sha256.New()
	for _, field := range []string{
		in.OwnerID,
		string(in.Kind),
		strconv.FormatInt(in.Amount, 10),
		NormalizeRecipient(in.Recipient),
	} {
		// length prefix keeps ("ab","c") and ("a","bc") apart
		h.Write([]byte(strconv.Itoa(len(field))))
		h.Write([]byte{':'})
		h.Write([]byte(field))
	}
	return derivedPrefix + hex.EncodeToString(h.Sum(nil))
}

// Validate checks a caller-supplied reference.
func Validate(ref string) error {
	if len(strings.TrimSpace(ref)) > MaxReferenceLength {
		return ErrReferenceTooLong
	}
	return nil
}

// IsDerived reports whether ref was produced by Derive rather than supplied by a caller.
func IsDerived(ref string) bool {
	return strings.HasPrefix(ref, derivedPrefix) && len(ref) == len(derivedPrefix)+sha256.Size*2
}

// NormalizeRecipient folds formatting differences out of phone numbers,
// smartcard and meter numbers so they hash identically.
func NormalizeRecipient(r string) string {
	r = strings.ToLower(strings.TrimSpace(r))
	r = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(r)
	switch {
	case strings.HasPrefix(r, "+234"):
		r = "0" + r[4:]
	case strings.HasPrefix(r, "234") && len(r) == 13:
		r = "0" + r[3:]
	}
	return r
}

// DepositReference is the processor reference issued for a deposit. The
// caller's key is hashed with the owner so two owners can never hold the
// same processor reference.
func DepositReference(ownerID, callerKey string) string {
	h := sha256.New()
	for _, field := range []string{ownerID, strings.TrimSpace(callerKey)} {
		h.Write([]byte(strconv.Itoa(len(field))))
		h.Write([]byte{':'})
		h.Write([]byte(field))
	}
	return depositPrefix + hex.EncodeToString(h.Sum(nil))[:32]
}

// RefundReference is the ledger reference of the compensating credit for txID.
func RefundReference(txID string) string {
	return "refund:" + txID
}
