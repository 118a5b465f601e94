package cache

import (
	"fmt"

	"github.com/bytedance/sonic"
	"golang.org/x/crypto/blake2b"
)

// canonicalJSON keeps map keys sorted so semantically-equal values always
// serialize to the same bytes.
var canonicalJSON = sonic.Config{SortMapKeys: true}.Froze()

const fingerprintBytes = 8

// Fingerprint digests a value's canonical JSON form with BLAKE2b, truncated
// to 16 hex chars. Values that cannot be serialized fall back to their plain
// textual representation, so the function never fails. Equal fingerprints on
// write turn the write into a timestamp-only refresh.
func Fingerprint(value interface{}) string {
	data, err := canonicalJSON.Marshal(value)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", value))
	}

	sum := blake2b.Sum256(data)
	return fmt.Sprintf("%x", sum[:fingerprintBytes])
}
