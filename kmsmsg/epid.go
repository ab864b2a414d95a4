package kmsmsg

import (
	"encoding/binary"
	"fmt"

	"github.com/relaykms/kmsgate/crypto"
)

// DeriveEPID builds the response EPID string per the "otherwise build"
// branch: kms_pid_prefix (5 digits) + "05" + a random 6-digit segment +
// "03" + lcid (5 digits) + "." + a 10-digit FILETIME-derived date.
//
// The 10-digit date segment is the low 10 decimal digits of the request's
// FILETIME value itself; the spec does not name a calendar transform, and
// this keeps the derivation a pure function of (prefix, lcid, requestTime)
// without inventing one.
func DeriveEPID(pidPrefix string, lcid int, requestTime uint64) (string, error) {
	if len(pidPrefix) != 5 {
		return "", fmt.Errorf("kmsmsg: pid prefix must be 5 digits, got %q", pidPrefix)
	}
	segment, err := randomDigits(6)
	if err != nil {
		return "", err
	}
	dateDigits := requestTime % 10000000000
	return fmt.Sprintf("%s05%s03%05d.%010d", pidPrefix, segment, lcid, dateDigits), nil
}

// randomDigits returns a cryptographically random decimal string of
// exactly n digits (zero-padded).
func randomDigits(n int) (string, error) {
	b, err := crypto.RandomBytes(4)
	if err != nil {
		return "", err
	}
	max := uint32(1)
	for i := 0; i < n; i++ {
		max *= 10
	}
	v := binary.BigEndian.Uint32(b) % max
	return fmt.Sprintf("%0*d", n, v), nil
}

// FormatOverrideEPID truncates or pads an operator-supplied override to
// exactly 16 wide characters (32 bytes), matching the "truncated/padded
// to 16 wchars" rule for epid_override.
func FormatOverrideEPID(s string) string {
	r := []rune(s)
	if len(r) > 16 {
		return string(r[:16])
	}
	for len(r) < 16 {
		r = append(r, 0)
	}
	return string(r)
}
