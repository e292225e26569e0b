package qrimg

import qrcode "github.com/skip2/go-qrcode"

const size = 256

// EncodePNG renders the redemption URL as a QR glyph.
func EncodePNG(url string) ([]byte, error) {
	return qrcode.Encode(url, qrcode.Medium, size)
}
