package otp

import (
	"context"

	qrcode "github.com/skip2/go-qrcode"
)

// qrSize is the side length in pixels of the generated image.
const qrSize = 256

// RevealQR reveals the order's pickup code and renders it as a PNG QR
// image for pickup counters that scan instead of reading digits. The
// same one-time semantics apply: this goes through Reveal, so a second
// call is rejected locally.
func (g *Gate) RevealQR(ctx context.Context, orderID int64) ([]byte, error) {
	code, err := g.Reveal(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(code, qrcode.Medium, qrSize)
}
