package service

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newAccountID returns an id of the form xtr_1a2b3c4d.
func newAccountID() string {
	return "xtr_" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// newTxID returns an id of the form TX_0A1B2C3D4E5F.
func newTxID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TX_" + strings.ToUpper(raw[:12])
}

// codeEncoding drops characters that are easy to misread.
var codeEncoding = base32.NewEncoding("ABCDEFGHJKLMNPQRSTUVWXYZ23456789").WithPadding(base32.NoPadding)

// newActivationCode returns 10 characters (50 bits) of crypto/rand output.
func newActivationCode() (string, error) {
	b := make([]byte, 7)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return codeEncoding.EncodeToString(b)[:10], nil
}

// storageClock returns UTC now at millisecond precision, the finest that
// every store keeps. Checkpoints derived from it survive a round trip intact.
func storageClock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
