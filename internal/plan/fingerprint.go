package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
)

// FingerprintOps hashes the source paths and sizes of a set of operations.
// Lines are sorted before hashing so the fingerprint is independent of op
// order.
func FingerprintOps(ops []Op) string {
	lines := make([]string, 0, len(ops))
	for _, op := range ops {
		lines = append(lines, fmt.Sprintf("%s|%d", op.Src, op.SrcSize))
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// VerifyFingerprint re-derives the stored fingerprint from current source
// file state. An already-moved source is scored with its recorded size when
// the destination carries the expected provenance, so re-running a partially
// applied plan does not read as stale.
func (p *Plan) VerifyFingerprint() error {
	lines := make([]string, 0, len(p.Ops))
	for _, op := range p.Ops {
		size, ok := effectiveSize(op)
		if !ok {
			return fmt.Errorf("source %s missing with no completed destination", op.Src)
		}
		lines = append(lines, fmt.Sprintf("%s|%d", op.Src, size))
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	if got := hex.EncodeToString(sum[:]); got != p.Fingerprint {
		return fmt.Errorf("fingerprint mismatch: plan %s, current %s", p.Fingerprint, got)
	}
	return nil
}

// effectiveSize returns the size to score op's source with. A present source
// reports its current size. A missing source whose destination exists with
// the recorded size counts as already moved.
func effectiveSize(op Op) (int64, bool) {
	if info, err := os.Stat(op.Src); err == nil {
		return info.Size(), true
	}
	if info, err := os.Stat(op.Dst); err == nil && info.Size() == op.SrcSize {
		return op.SrcSize, true
	}
	return 0, false
}

// Completed reports whether op already ran: the destination exists with the
// recorded source size and the source is gone.
func (op Op) Completed() bool {
	if _, err := os.Stat(op.Src); err == nil {
		return false
	}
	info, err := os.Stat(op.Dst)
	return err == nil && info.Size() == op.SrcSize
}
