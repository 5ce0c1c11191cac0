//go:build !opus

package export

import "fmt"

func newOpusEncoder() (Encoder, error) {
	return nil, fmt.Errorf("%w: opus support not compiled in (build with -tags opus)", ErrUnknownEncoder)
}
